// Package orchestrator implements the orchestrator (component H): it
// wires A->B->C, C->E, E->F->G and drives the periodic 1Hz analytics
// tick. Grounded on the teacher's datapipeline.MarketDataPipeline wiring
// pattern (construct-then-wire, Start/Stop over a root context), reduced
// to the five components this system actually has.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/statarb/engine/internal/alertmgr"
	"github.com/statarb/engine/internal/analytics"
	"github.com/statarb/engine/internal/broadcast"
	"github.com/statarb/engine/internal/buffer"
	"github.com/statarb/engine/internal/decimalx"
	"github.com/statarb/engine/internal/metrics"
	"github.com/statarb/engine/internal/model"
	"github.com/statarb/engine/internal/resample"
	"github.com/statarb/engine/internal/ticksource"
)

const DefaultCadence = time.Second
const priceHistoryN = 60

// Orchestrator holds owned references to every component and the
// replace-whole-struct configuration snapshot.
type Orchestrator struct {
	tickSource *ticksource.Client
	buffer     *buffer.Buffer
	resampler  *resample.Resampler
	finalizer  *resample.Finalizer
	alerts     *alertmgr.Manager
	hub        *broadcast.Hub

	cadence time.Duration

	cfgMu sync.RWMutex
	cfg   model.ConfigSnapshot
}

// New wires the five core components together. initial is the starting
// configuration snapshot.
func New(src *ticksource.Client, buf *buffer.Buffer, rs *resample.Resampler, fz *resample.Finalizer, alerts *alertmgr.Manager, hub *broadcast.Hub, cadence time.Duration, initial model.ConfigSnapshot) *Orchestrator {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	o := &Orchestrator{
		tickSource: src,
		buffer:     buf,
		resampler:  rs,
		finalizer:  fz,
		alerts:     alerts,
		hub:        hub,
		cadence:    cadence,
		cfg:        initial,
	}
	src.Subscribe(o.onTick)
	return o
}

// ReplaceConfig atomically swaps the configuration snapshot. Readers take
// a local copy at the start of each periodic iteration, so an in-flight
// iteration always finishes against the snapshot it started with.
func (o *Orchestrator) ReplaceConfig(cfg model.ConfigSnapshot) {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()
	o.cfg = cfg
}

// Config returns the current configuration snapshot.
func (o *Orchestrator) Config() model.ConfigSnapshot {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// Buffer, Resampler, Alerts and Hub expose the owned components for the
// HTTP surface, which needs read access without re-wiring the pipeline.
func (o *Orchestrator) Buffer() *buffer.Buffer        { return o.buffer }
func (o *Orchestrator) Resampler() *resample.Resampler { return o.resampler }
func (o *Orchestrator) Alerts() *alertmgr.Manager      { return o.alerts }
func (o *Orchestrator) Hub() *broadcast.Hub            { return o.hub }
func (o *Orchestrator) TickSource() *ticksource.Client { return o.tickSource }

// onTick is A's per-tick callback: ingest into B, then fold into C. This
// is the synchronous A->B->C handoff the control-flow model requires.
func (o *Orchestrator) onTick(t model.Tick) {
	o.buffer.Ingest(t)
	metrics.TicksIngested.WithLabelValues(t.Symbol).Inc()
	o.resampler.ProcessTick(t, decimalx.Float64(t.Price), decimalx.Float64(t.Quantity))
}

// Run starts the tick source, the bar finalizer, and the periodic
// analytics tick, blocking until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) {
	finalizerDone := make(chan struct{})
	go func() {
		o.finalizer.Run(ctx.Done())
		close(finalizerDone)
	}()

	go o.tickSource.Run(ctx)

	ticker := time.NewTicker(o.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-finalizerDone
			log.Println("[Orchestrator] stopped")
			return
		case now := <-ticker.C:
			o.tick(now)
		}
	}
}

// tick is the periodic 1Hz job: snapshot latest prices, pull aligned
// price history, run analytics, evaluate alerts, and broadcast.
func (o *Orchestrator) tick(now time.Time) {
	start := time.Now()
	defer func() { metrics.AnalyticsTickDuration.Observe(time.Since(start).Seconds()) }()

	cfg := o.Config()
	metrics.UpstreamConnected.Set(boolToFloat(o.tickSource.IsConnected()))

	latest := make(map[string]float64, len(cfg.SelectedSymbols))
	for _, sym := range cfg.SelectedSymbols {
		if t, ok := o.buffer.LatestPrice(sym); ok {
			latest[sym] = decimalx.Float64(t.Price)
		}
	}

	rows := o.resampler.PriceHistory(cfg.SelectedSymbols, model.Interval1s, priceHistoryN)

	var (
		correlation   float64
		correlationOK bool
		summary       []model.SymbolChange
		summaryOK     bool
		spread        float64
		zscore        float64
		rollMean      float64
		rollVol       float64
		spreadOK      bool
	)

	// Per spec.md §4.H: correlation and summary are independent actions
	// gated only on >=2 aligned rows; spread/z-score have their own
	// validity gate inside Analyze (insufficient rows for cfg.WindowSize),
	// matching the source's per-metric fallback rather than an all-or-
	// nothing analytics result.
	if len(rows) >= 2 && len(cfg.SelectedSymbols) >= 2 {
		base, hedge := cfg.SelectedSymbols[0], cfg.SelectedSymbols[1]
		baseSeries := make([]float64, len(rows))
		hedgeSeries := make([]float64, len(rows))
		for i, row := range rows {
			baseSeries[i] = row.Close[base]
			hedgeSeries[i] = row.Close[hedge]
		}

		correlation, correlationOK = analytics.Correlation(baseSeries, hedgeSeries, defaultCorrelationWindow)

		prevRow := rows[len(rows)-2]
		previous := make(map[string]float64, len(cfg.SelectedSymbols))
		for sym, px := range prevRow.Close {
			previous[sym] = px
		}
		summary = analytics.Summary(latest, previous, cfg.SelectedSymbols)
		summaryOK = true

		spreadResult := analytics.Analyze(baseSeries, hedgeSeries, cfg.ZScoreThreshold, cfg.RegressionKind, cfg.WindowSize, now)
		if spreadResult.Valid {
			spreadSeries, _ := analytics.Spread(hedgeSeries, baseSeries, cfg.RegressionKind)
			spread, zscore = spreadResult.Spread, spreadResult.ZScore
			rollMean, _ = analytics.RollingMean(spreadSeries, cfg.WindowSize)
			rollVol, _ = analytics.RollingVolatility(spreadSeries, cfg.WindowSize)
			spreadOK = true
		}

		snap := model.AnalyticsSnapshot{
			Instant:           now,
			Spread:            spread,
			ZScore:            zscore,
			Correlation:       correlation,
			RollingMean:       rollMean,
			RollingVolatility: rollVol,
			Symbols:           summary,
		}
		for _, alert := range o.alerts.EvaluateSnapshot(base, snap, cfg.ZScoreThreshold, now) {
			metrics.AlertsFired.WithLabelValues(string(alert.Kind)).Inc()
			o.hub.Publish(broadcast.TopicAlerts, broadcast.Frame{Type: "alert", Data: alert, TimestampMs: now.UnixMilli()})
		}
	}

	if len(latest) == 0 {
		o.publishSubscriberGauges()
		return
	}

	o.hub.Publish(broadcast.TopicPrices, broadcast.Frame{Type: "prices", Data: latest, TimestampMs: now.UnixMilli()})

	if spreadOK {
		o.hub.Publish(broadcast.TopicSpread, broadcast.Frame{Type: "spread", Data: spread, TimestampMs: now.UnixMilli()})
	}
	if correlationOK {
		o.hub.Publish(broadcast.TopicCorrelation, broadcast.Frame{Type: "correlation", Data: correlation, TimestampMs: now.UnixMilli()})
	}
	if summaryOK {
		o.hub.Publish(broadcast.TopicSummary, broadcast.Frame{Type: "summary", Data: summary, TimestampMs: now.UnixMilli()})
	}

	o.hub.Publish(broadcast.TopicAnalytics, broadcast.AnalyticsFrame{
		Timestamp:   now.UTC().Format(time.RFC3339),
		Prices:      latest,
		Spread:      spread,
		ZScore:      zscore,
		Correlation: correlation,
	})

	o.publishSubscriberGauges()
}

const defaultCorrelationWindow = analytics.DefaultCorrelationWindow

func (o *Orchestrator) publishSubscriberGauges() {
	for _, t := range []broadcast.Topic{
		broadcast.TopicPrices, broadcast.TopicSpread, broadcast.TopicCorrelation,
		broadcast.TopicSummary, broadcast.TopicAlerts, broadcast.TopicAnalytics,
	} {
		metrics.ActiveSubscribers.WithLabelValues(string(t)).Set(float64(o.hub.Count(t)))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
