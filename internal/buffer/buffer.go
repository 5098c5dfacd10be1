// Package buffer implements the ingestion buffer: a per-symbol bounded
// FIFO of recently ingested ticks, concurrent-safe, exposing latest-N,
// range and latest-price queries. Modeled on the teacher's
// datapipeline.DataIngester buffer bookkeeping, simplified to the
// single-buffer-per-symbol contract this system requires (no
// deduplication or out-of-order rejection here — the tick source already
// validated the tick before it reaches the buffer).
package buffer

import (
	"sync"
	"time"

	"github.com/statarb/engine/internal/model"
)

const DefaultCapacity = 10000

// symbolBuffer is a bounded ring-backed FIFO for one symbol.
type symbolBuffer struct {
	mu       sync.RWMutex
	capacity int
	ticks    []model.Tick
}

func newSymbolBuffer(capacity int) *symbolBuffer {
	return &symbolBuffer{
		capacity: capacity,
		ticks:    make([]model.Tick, 0, capacity),
	}
}

func (b *symbolBuffer) ingest(t model.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticks = append(b.ticks, t)
	if len(b.ticks) > b.capacity {
		overflow := len(b.ticks) - b.capacity
		b.ticks = b.ticks[overflow:]
	}
}

func (b *symbolBuffer) latestN(n int) []model.Tick {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || len(b.ticks) == 0 {
		return nil
	}
	if n > len(b.ticks) {
		n = len(b.ticks)
	}
	out := make([]model.Tick, n)
	copy(out, b.ticks[len(b.ticks)-n:])
	return out
}

func (b *symbolBuffer) all() []model.Tick {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Tick, len(b.ticks))
	copy(out, b.ticks)
	return out
}

func (b *symbolBuffer) timeRange(t0, t1 time.Time) []model.Tick {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []model.Tick
	for _, t := range b.ticks {
		if !t.TradeTime.Before(t0) && !t.TradeTime.After(t1) {
			out = append(out, t)
		}
	}
	return out
}

func (b *symbolBuffer) latestPrice() (model.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ticks) == 0 {
		return model.Tick{}, false
	}
	return b.ticks[len(b.ticks)-1], true
}

func (b *symbolBuffer) size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ticks)
}

// Buffer is the ingestion buffer: one symbolBuffer per tracked symbol.
// Buffers are created lazily on the first Ingest, LatestN, All or Range
// call for a symbol; the set of
// symbol buffers itself is guarded by its own mutex, independent of any
// individual symbolBuffer's mutex — no cross-component lock is ever held
// while calling into another component.
type Buffer struct {
	capacity int

	mu      sync.RWMutex
	symbols map[string]*symbolBuffer
}

// New creates an ingestion buffer with the given per-symbol capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		symbols:  make(map[string]*symbolBuffer),
	}
}

func (buf *Buffer) bufferFor(symbol string) *symbolBuffer {
	buf.mu.RLock()
	sb, ok := buf.symbols[symbol]
	buf.mu.RUnlock()
	if ok {
		return sb
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	if sb, ok = buf.symbols[symbol]; ok {
		return sb
	}
	sb = newSymbolBuffer(buf.capacity)
	buf.symbols[symbol] = sb
	return sb
}

// Ingest appends t under its symbol's own mutex. Eviction is strictly
// oldest-first once the buffer reaches capacity.
func (buf *Buffer) Ingest(t model.Tick) {
	buf.bufferFor(t.Symbol).ingest(t)
}

// LatestN returns up to the n most recent ticks for symbol, oldest first,
// as an immutable copy.
func (buf *Buffer) LatestN(symbol string, n int) []model.Tick {
	return buf.bufferFor(symbol).latestN(n)
}

// All returns every retained tick for symbol, oldest first.
func (buf *Buffer) All(symbol string) []model.Tick {
	return buf.bufferFor(symbol).all()
}

// Range returns every retained tick for symbol with trade-time in
// [t0, t1], inclusive.
func (buf *Buffer) Range(symbol string, t0, t1 time.Time) []model.Tick {
	return buf.bufferFor(symbol).timeRange(t0, t1)
}

// LatestPrice returns the most recently ingested tick for symbol, if any.
func (buf *Buffer) LatestPrice(symbol string) (model.Tick, bool) {
	buf.mu.RLock()
	sb, ok := buf.symbols[symbol]
	buf.mu.RUnlock()
	if !ok {
		return model.Tick{}, false
	}
	return sb.latestPrice()
}

// Size returns the current occupancy of symbol's buffer.
func (buf *Buffer) Size(symbol string) int {
	buf.mu.RLock()
	sb, ok := buf.symbols[symbol]
	buf.mu.RUnlock()
	if !ok {
		return 0
	}
	return sb.size()
}
