package ticksource

import (
	"testing"
	"time"

	"github.com/statarb/engine/internal/decimalx"
	"github.com/statarb/engine/internal/model"
)

func TestHandleMessageNormalizesTick(t *testing.T) {
	c := New("", []string{"BTCUSDT"})

	var got model.Tick
	var received bool
	c.Subscribe(func(tick model.Tick) {
		got = tick
		received = true
	})

	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"67521.45","q":"0.1","T":1700000000000,"X":"MARKET"}}`)
	c.handleMessage(raw)

	if !received {
		t.Fatal("expected a tick to be dispatched")
	}
	if got.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %q, want BTCUSDT", got.Symbol)
	}
	if decimalx.Float64(got.Price) != 67521.45 {
		t.Fatalf("price = %v, want 67521.45", decimalx.Float64(got.Price))
	}
	if decimalx.Float64(got.Quantity) != 0.1 {
		t.Fatalf("quantity = %v, want 0.1", decimalx.Float64(got.Quantity))
	}
	wantTime := time.UnixMilli(1700000000000).UTC()
	if !got.TradeTime.Equal(wantTime) {
		t.Fatalf("trade time = %v, want %v", got.TradeTime, wantTime)
	}
}

func TestHandleMessageRejectsUntrackedSymbol(t *testing.T) {
	c := New("", []string{"ETHUSDT"})
	var received bool
	c.Subscribe(func(model.Tick) { received = true })

	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"100","q":"1","T":1700000000000}}`)
	c.handleMessage(raw)

	if received {
		t.Fatal("expected an untracked symbol to be dropped")
	}
}

func TestHandleMessageIgnoresNonTradeEvents(t *testing.T) {
	c := New("", []string{"BTCUSDT"})
	var received bool
	c.Subscribe(func(model.Tick) { received = true })

	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"depthUpdate","s":"BTCUSDT","p":"100","q":"1","T":1700000000000}}`)
	c.handleMessage(raw)

	if received {
		t.Fatal("expected a non-trade event to be dropped")
	}
}

func TestHandleMessageIgnoresNAFlag(t *testing.T) {
	c := New("", []string{"BTCUSDT"})
	var received bool
	c.Subscribe(func(model.Tick) { received = true })

	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"100","q":"1","T":1700000000000,"X":"NA"}}`)
	c.handleMessage(raw)

	if received {
		t.Fatal("expected an X=NA frame to be ignored")
	}
}

func TestHandleMessageRejectsNonPositivePrice(t *testing.T) {
	c := New("", []string{"BTCUSDT"})
	var received bool
	c.Subscribe(func(model.Tick) { received = true })

	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"0","q":"1","T":1700000000000}}`)
	c.handleMessage(raw)

	if received {
		t.Fatal("expected a non-positive price to be rejected")
	}
}

func TestStreamURLBuildsCombinedEndpoint(t *testing.T) {
	c := New("wss://fstream.binance.com/stream", []string{"BTCUSDT"})
	url := c.streamURL()
	want := "wss://fstream.binance.com/stream?streams=btcusdt@trade"
	if url != want {
		t.Fatalf("streamURL = %q, want %q", url, want)
	}
}
