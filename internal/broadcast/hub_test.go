package broadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestValidTopic(t *testing.T) {
	if !ValidTopic("prices") {
		t.Fatal("expected prices to be a valid topic")
	}
	if ValidTopic("bogus") {
		t.Fatal("expected bogus to be an invalid topic")
	}
}

func waitForCount(t *testing.T, h *Hub, topic Topic, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Count(topic) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Count(%s) never reached %d, last was %d", topic, want, h.Count(topic))
}

func TestBroadcastDropsFailedSubscriber(t *testing.T) {
	hub := New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(TopicAnalytics, w, r)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	firstConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial first subscriber: %v", err)
	}
	secondConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial second subscriber: %v", err)
	}
	defer secondConn.Close()

	waitForCount(t, hub, TopicAnalytics, 2)

	// Sever the first subscriber's transport so its next write fails, then
	// publish to both.
	firstConn.Close()
	time.Sleep(50 * time.Millisecond)

	hub.Publish(TopicAnalytics, AnalyticsFrame{Timestamp: "2024-01-01T09:00:00Z", Spread: 1.5})

	waitForCount(t, hub, TopicAnalytics, 1)

	secondConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := secondConn.ReadMessage()
	if err != nil {
		t.Fatalf("expected second subscriber to still receive the message: %v", err)
	}
	if !strings.Contains(string(data), "2024-01-01T09:00:00Z") {
		t.Fatalf("unexpected message payload: %s", data)
	}
}
