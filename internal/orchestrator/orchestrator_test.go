package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/statarb/engine/internal/alertmgr"
	"github.com/statarb/engine/internal/broadcast"
	"github.com/statarb/engine/internal/buffer"
	"github.com/statarb/engine/internal/decimalx"
	"github.com/statarb/engine/internal/model"
	"github.com/statarb/engine/internal/resample"
	"github.com/statarb/engine/internal/ticksource"
)

func dial(t *testing.T, server *httptest.Server, topic broadcast.Topic) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + string(topic)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", topic, err)
	}
	return conn
}

func mustTick(t *testing.T, symbol string, price float64, at time.Time) model.Tick {
	t.Helper()
	d, err := decimalx.ParsePositive(strconv.FormatFloat(price, 'f', -1, 64))
	if err != nil {
		t.Fatalf("decimal from float %v: %v", price, err)
	}
	return model.Tick{Symbol: symbol, Price: d, Quantity: d, TradeTime: at}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *httptest.Server) {
	t.Helper()
	src := ticksource.New("", []string{"BTCUSDT", "ETHUSDT"})
	buf := buffer.New(1000)
	rs := resample.New(1000)
	fz := resample.NewFinalizer(rs, time.Hour)
	alerts := alertmgr.New(100, time.Minute)
	hub := broadcast.New()

	initial := model.ConfigSnapshot{
		SelectedSymbols: []string{"BTCUSDT", "ETHUSDT"},
		Timeframe:       "1s",
		WindowSize:      5,
		RegressionKind:  model.RegressionOLS,
		ZScoreThreshold: 2.0,
		IsLive:          true,
	}
	o := New(src, buf, rs, fz, alerts, hub, time.Hour, initial)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		topic := broadcast.Topic(strings.TrimPrefix(r.URL.Path, "/ws/"))
		hub.Serve(topic, w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return o, server
}

func TestTickPublishesPricesAndAnalytics(t *testing.T) {
	o, server := newTestOrchestrator(t)

	pricesConn := dial(t, server, broadcast.TopicPrices)
	defer pricesConn.Close()
	analyticsConn := dial(t, server, broadcast.TopicAnalytics)
	defer analyticsConn.Close()

	waitForCount(t, o, broadcast.TopicPrices, 1)
	waitForCount(t, o, broadcast.TopicAnalytics, 1)

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		o.onTick(mustTick(t, "BTCUSDT", 100+float64(i), at))
		o.onTick(mustTick(t, "ETHUSDT", 10+float64(i), at))
	}

	o.tick(base.Add(10 * time.Second))

	pricesConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := pricesConn.ReadMessage()
	if err != nil {
		t.Fatalf("read prices frame: %v", err)
	}
	var frame broadcast.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal prices frame: %v", err)
	}
	if frame.Type != "prices" {
		t.Fatalf("frame.Type = %q, want prices", frame.Type)
	}

	analyticsConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = analyticsConn.ReadMessage()
	if err != nil {
		t.Fatalf("read analytics frame: %v", err)
	}
	var af broadcast.AnalyticsFrame
	if err := json.Unmarshal(data, &af); err != nil {
		t.Fatalf("unmarshal analytics frame: %v", err)
	}
	if af.Prices["BTCUSDT"] == 0 {
		t.Fatal("expected a non-zero BTCUSDT price in the analytics frame")
	}
}

func TestTickWithInsufficientHistoryStillPublishesAnalyticsFallback(t *testing.T) {
	o, server := newTestOrchestrator(t)
	analyticsConn := dial(t, server, broadcast.TopicAnalytics)
	defer analyticsConn.Close()
	waitForCount(t, o, broadcast.TopicAnalytics, 1)

	// One tick per symbol gives latest prices but only one aligned row, too
	// few for any analytics.
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	o.onTick(mustTick(t, "BTCUSDT", 100, at))
	o.onTick(mustTick(t, "ETHUSDT", 10, at))

	o.tick(at.Add(time.Second))

	analyticsConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := analyticsConn.ReadMessage()
	if err != nil {
		t.Fatalf("expected an analytics frame even with too little history: %v", err)
	}
	var af broadcast.AnalyticsFrame
	if err := json.Unmarshal(data, &af); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if af.ZScore != 0 || af.Spread != 0 {
		t.Fatalf("expected zeroed fallback analytics, got %+v", af)
	}
}

func waitForCount(t *testing.T, o *Orchestrator, topic broadcast.Topic, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.Hub().Count(topic) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Count(%s) never reached %d", topic, want)
}
