package resample

import (
	"log"
	"sync/atomic"
	"time"
)

const DefaultCheckInterval = time.Second

// Finalizer is the periodic sweeper (component D): it finalizes minute
// bars whose wall-clock minute has elapsed even if no closing tick ever
// arrives, absorbing late ticks for the just-closed minute with a 5s
// guard. Grounded on the original minute_bar_finalizer.py sweep loop and
// styled like the teacher's OHLCEngine.barClosingWorker ticker loop.
type Finalizer struct {
	resampler     *Resampler
	checkInterval time.Duration
	running       atomic.Bool
}

// NewFinalizer creates a finalizer bound to resampler.
func NewFinalizer(resampler *Resampler, checkInterval time.Duration) *Finalizer {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	return &Finalizer{resampler: resampler, checkInterval: checkInterval}
}

// Run blocks, sweeping every checkInterval until done is closed.
func (f *Finalizer) Run(done <-chan struct{}) {
	f.running.Store(true)
	defer f.running.Store(false)

	ticker := time.NewTicker(f.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Println("[Resampler] finalizer stopped")
			return
		case now := <-ticker.C:
			f.sweep(now)
		}
	}
}

func (f *Finalizer) sweep(now time.Time) {
	for _, symbol := range f.resampler.Symbols1mWithCurrent() {
		if f.resampler.finalizeIfStale(symbol, now) {
			log.Printf("[Resampler] finalized stale 1m bar for %s", symbol)
		}
	}
}

// Running reports whether the finalizer's sweep loop is active.
func (f *Finalizer) Running() bool {
	return f.running.Load()
}
