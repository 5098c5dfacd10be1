// Package model holds the shared value types passed between components:
// Tick, Bar, PriceHistoryRow, AnalyticsSnapshot, Alert and the
// configuration snapshot. Every type here is a plain value — components
// hand these across their API boundary by copy, never by shared pointer
// into a mutable collection.
package model

import (
	"time"

	"github.com/govalues/decimal"
)

// Interval is a resampling granularity.
type Interval string

const (
	Interval1s Interval = "1s"
	Interval1m Interval = "1m"
)

// Duration returns the wall-clock bucket width of the interval.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1s:
		return time.Second
	case Interval1m:
		return time.Minute
	default:
		return time.Second
	}
}

// Tick is a single normalized trade off the upstream feed. Immutable once
// constructed.
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	TradeTime time.Time
}

// Bar is an OHLCV summary over one bucket of one interval for one symbol.
type Bar struct {
	Symbol      string
	Interval    Interval
	BucketStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// PriceHistoryRow is a positionally-aligned row across a symbol set,
// produced on demand by the resampler — never stored.
type PriceHistoryRow struct {
	BucketStart time.Time
	Close       map[string]float64
}

// SymbolChange is a per-symbol latest/previous price comparison.
type SymbolChange struct {
	Symbol        string
	Price         float64
	AbsoluteChange float64
	PctChange     float64
}

// SpreadResult is the output of the analytics engine's spread-analysis
// entry point.
type SpreadResult struct {
	Valid          bool
	Instant        time.Time
	TimeString     string
	Spread         float64
	ZScore         float64
	UpperThreshold float64
	LowerThreshold float64
}

// StationarityResult is the output of the ADF test.
type StationarityResult struct {
	ADFStatistic    float64
	PValue          float64
	Stationary      bool
	CriticalValues  map[string]float64
	Error           string
}

// AnalyticsSnapshot is the combined per-tick analytics result produced by
// the orchestrator's periodic job. Not stored.
type AnalyticsSnapshot struct {
	Instant           time.Time
	Spread            float64
	ZScore            float64
	Correlation       float64
	RollingMean       float64
	RollingVolatility float64
	Symbols           []SymbolChange
}

// AlertKind is the opaque enum of alert severities. Casing is mixed
// deliberately to match the upstream contract ("warning" vs "ALERT").
type AlertKind string

const (
	AlertKindInfo    AlertKind = "info"
	AlertKindWarning AlertKind = "warning"
	AlertKindDanger  AlertKind = "danger"
	AlertKindALERT   AlertKind = "ALERT"
)

// Direction is the side of a threshold an alert fired on.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Alert is a single fired alert, retained in the alert manager's bounded
// ring.
type Alert struct {
	ID          string    `json:"id"`
	Kind        AlertKind `json:"kind"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	DisplayTime string    `json:"display_time"`
	Symbol      string    `json:"symbol"`
	Value       float64   `json:"value"`
	Metric      string    `json:"metric"`
	Threshold   float64   `json:"threshold"`
	Direction   Direction `json:"direction"`
}

// RegressionKind selects how the hedge ratio / spread is fit.
type RegressionKind string

const (
	RegressionOLS   RegressionKind = "ols"
	RegressionRobust RegressionKind = "robust"
)

// ConfigSnapshot is the mutable, atomically-replaced configuration the
// orchestrator and analytics engine read at the start of each periodic
// iteration.
type ConfigSnapshot struct {
	SelectedSymbols []string       `json:"selectedSymbols"`
	Timeframe       string         `json:"timeframe"`
	WindowSize      int            `json:"windowSize"`
	RegressionKind  RegressionKind `json:"regressionType"`
	ZScoreThreshold float64        `json:"zScoreThreshold"`
	IsLive          bool           `json:"isLive"`
}

// DefaultConfigSnapshot matches the documented external defaults.
func DefaultConfigSnapshot() ConfigSnapshot {
	return ConfigSnapshot{
		SelectedSymbols: []string{"BTCUSDT", "ETHUSDT"},
		Timeframe:       "1m",
		WindowSize:      20,
		RegressionKind:  RegressionOLS,
		ZScoreThreshold: 2.0,
		IsLive:          true,
	}
}
