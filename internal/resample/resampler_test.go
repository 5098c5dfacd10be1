package resample

import (
	"testing"
	"time"

	"github.com/statarb/engine/internal/model"
)

func tickAt(symbol string, hh, mm, ss int) model.Tick {
	return model.Tick{
		Symbol:    symbol,
		TradeTime: time.Date(2024, 1, 1, hh, mm, ss, 0, time.UTC),
	}
}

func TestMinuteBoundaryClose(t *testing.T) {
	r := New(100)

	type step struct {
		hh, mm, ss int
		price      float64
	}
	steps := []step{
		{9, 0, 10, 100},
		{9, 0, 30, 102},
		{9, 0, 59, 101},
		{9, 1, 5, 105},
	}
	for _, s := range steps {
		tick := tickAt("BTCUSDT", s.hh, s.mm, s.ss)
		r.ProcessTick(tick, s.price, 1)
	}

	finalized := r.finalized[barKey{symbol: "BTCUSDT", interval: model.Interval1m}]
	if len(finalized) != 1 {
		t.Fatalf("len(finalized) = %d, want 1", len(finalized))
	}
	bar := finalized[0]
	wantBucket := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !bar.BucketStart.Equal(wantBucket) {
		t.Fatalf("finalized bucket = %v, want %v", bar.BucketStart, wantBucket)
	}
	if bar.Open != 100 || bar.High != 102 || bar.Low != 100 || bar.Close != 101 || bar.Volume != 3 {
		t.Fatalf("finalized bar = %+v, want o=100 h=102 l=100 c=101 v=3", bar)
	}

	cur := r.current[barKey{symbol: "BTCUSDT", interval: model.Interval1m}]
	if cur == nil {
		t.Fatal("expected a current 1m bar")
	}
	wantCurBucket := time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC)
	if !cur.BucketStart.Equal(wantCurBucket) {
		t.Fatalf("current bucket = %v, want %v", cur.BucketStart, wantCurBucket)
	}
	if cur.Open != 105 || cur.High != 105 || cur.Low != 105 || cur.Close != 105 || cur.Volume != 1 {
		t.Fatalf("current bar = %+v, want o=c=h=l=105 v=1", cur)
	}
}

func TestFinalizerClosesSilentBar(t *testing.T) {
	r := New(100)
	steps := []struct {
		hh, mm, ss int
		price      float64
	}{
		{9, 0, 10, 100},
		{9, 0, 30, 102},
		{9, 0, 59, 101},
		{9, 1, 5, 105},
	}
	for _, s := range steps {
		r.ProcessTick(tickAt("BTCUSDT", s.hh, s.mm, s.ss), s.price, 1)
	}

	wallClock := time.Date(2024, 1, 1, 9, 2, 6, 0, time.UTC)
	finalized := r.finalizeIfStale("BTCUSDT", wallClock)
	if !finalized {
		t.Fatal("expected the silent 09:01:00 bar to be finalized")
	}

	key := barKey{symbol: "BTCUSDT", interval: model.Interval1m}
	if r.current[key] != nil {
		t.Fatal("expected current 1m bar to be cleared after finalization")
	}
	list := r.finalized[key]
	if len(list) != 2 {
		t.Fatalf("len(finalized) = %d, want 2", len(list))
	}
	last := list[len(list)-1]
	if last.Open != 105 || last.Close != 105 || last.Volume != 1 {
		t.Fatalf("finalized silent bar = %+v, want o=c=105 v=1", last)
	}
}

func TestLateTickDropped(t *testing.T) {
	r := New(100)
	r.ProcessTick(tickAt("BTCUSDT", 9, 1, 0), 105, 1)
	r.ProcessTick(tickAt("BTCUSDT", 9, 0, 30), 999, 1) // late, must be dropped

	cur := r.current[barKey{symbol: "BTCUSDT", interval: model.Interval1m}]
	if cur == nil || cur.Close != 105 {
		t.Fatalf("late tick must not rewrite the current bar, got %+v", cur)
	}
}

func TestArchiveDeduplicatesByBucketStart(t *testing.T) {
	r := New(100)
	key := barKey{symbol: "BTCUSDT", interval: model.Interval1m}
	bucket := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	r.archive(key, model.Bar{Symbol: "BTCUSDT", Interval: model.Interval1m, BucketStart: bucket, Close: 1})
	r.archive(key, model.Bar{Symbol: "BTCUSDT", Interval: model.Interval1m, BucketStart: bucket, Close: 2})

	if len(r.finalized[key]) != 1 {
		t.Fatalf("expected archive to dedup by bucket-start, got %d entries", len(r.finalized[key]))
	}
}

func TestPriceHistoryPositionalAlignment(t *testing.T) {
	r := New(100)
	r.ProcessTick(tickAt("BTCUSDT", 9, 0, 10), 100, 1)
	r.ProcessTick(tickAt("BTCUSDT", 9, 0, 11), 101, 1)
	r.ProcessTick(tickAt("BTCUSDT", 9, 0, 12), 102, 1)

	r.ProcessTick(tickAt("ETHUSDT", 9, 0, 10), 10, 1)
	r.ProcessTick(tickAt("ETHUSDT", 9, 0, 11), 11, 1)

	rows := r.PriceHistory([]string{"BTCUSDT", "ETHUSDT"}, model.Interval1s, 60)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (min of 3 and 2 bars)", len(rows))
	}
	// ETHUSDT only has 2 bars total (1 finalized + 1 current) so the
	// aligned rows take BTCUSDT's *last two* bars by tail offset, not by
	// matching timestamps.
	if rows[1].Close["BTCUSDT"] != 102 {
		t.Fatalf("last row BTCUSDT close = %v, want 102", rows[1].Close["BTCUSDT"])
	}
	if rows[1].Close["ETHUSDT"] != 11 {
		t.Fatalf("last row ETHUSDT close = %v, want 11", rows[1].Close["ETHUSDT"])
	}
}
