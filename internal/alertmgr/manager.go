// Package alertmgr implements the alert manager (component F): threshold
// rules evaluated against an analytics snapshot, per-key cooldown, a
// bounded ring of fired alerts, and fan-out to registered subscriber
// callbacks. Grounded on original_source/BackEnd/app/alerts.py's
// AlertManager (cooldown keying, alert-key format, rule thresholds) and
// styled like the teacher's features.AlertService subscriber-callback
// pattern.
package alertmgr

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/statarb/engine/internal/model"
)

const (
	DefaultMaxAlerts             = 100
	DefaultCooldown              = 60 * time.Second
	DefaultMinCorrelation        = 0.5
	DefaultMaxVolatility         = 500.0
	zScoreApproachFraction       = 0.8
)

// Callback is invoked for every fired alert. A panic or long block inside
// a callback must not be allowed to take down the manager; Emit recovers
// individual callback panics and logs them, matching the source's
// per-callback exception isolation.
type Callback func(model.Alert)

// Manager owns the alert ring and cooldown registry.
type Manager struct {
	maxAlerts      int
	cooldown       time.Duration
	minCorrelation float64
	maxVolatility  float64

	mu        sync.Mutex
	ring      []model.Alert
	lastFire  map[string]time.Time
	callbacks []Callback
}

// New creates an alert manager with the given ring capacity and cooldown.
func New(maxAlerts int, cooldown time.Duration) *Manager {
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Manager{
		maxAlerts:      maxAlerts,
		cooldown:       cooldown,
		minCorrelation: DefaultMinCorrelation,
		maxVolatility:  DefaultMaxVolatility,
		lastFire:       make(map[string]time.Time),
	}
}

// Subscribe registers a callback invoked on every fired alert.
func (m *Manager) Subscribe(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func cooldownKey(kind model.AlertKind, title, symbol string) string {
	return fmt.Sprintf("%s:%s:%s", kind, title, symbol)
}

// shouldFire reports whether key has cleared its cooldown as of now.
// Caller holds m.mu.
func (m *Manager) shouldFire(key string, now time.Time) bool {
	last, seen := m.lastFire[key]
	if !seen {
		return true
	}
	return now.Sub(last) >= m.cooldown
}

// emit appends an alert with a fresh id, refreshes the cooldown entry,
// and invokes every subscriber. Caller holds m.mu; emit releases it while
// the callbacks run, so they never run under the lock, and reacquires it
// before returning.
func (m *Manager) emit(kind model.AlertKind, title, message, symbol string, value, threshold float64, metric string, direction model.Direction, now time.Time) model.Alert {
	alert := model.Alert{
		ID:          uuid.NewString(),
		Kind:        kind,
		Title:       title,
		Message:     message,
		DisplayTime: now.Format("15:04:05"),
		Symbol:      symbol,
		Value:       value,
		Metric:      metric,
		Threshold:   threshold,
		Direction:   direction,
	}

	m.ring = append(m.ring, alert)
	if len(m.ring) > m.maxAlerts {
		m.ring = m.ring[len(m.ring)-m.maxAlerts:]
	}
	m.lastFire[cooldownKey(kind, title, symbol)] = now

	callbacks := append([]Callback{}, m.callbacks...)
	m.mu.Unlock()
	for _, cb := range callbacks {
		invokeSafely(cb, alert)
	}
	m.mu.Lock()
	return alert
}

func invokeSafely(cb Callback, alert model.Alert) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Alerts] subscriber callback panicked: %v", r)
		}
	}()
	cb(alert)
}

// EvaluateZScore fires the z-score breach/approach rules for symbol.
// Returns the alert if one fired, or ok=false if cooldown suppressed it
// or no rule matched.
func (m *Manager) EvaluateZScore(symbol string, zScore, threshold float64, now time.Time) (model.Alert, bool) {
	absZ := math.Abs(zScore)

	var kind model.AlertKind
	var title string
	var effThreshold float64
	var direction model.Direction

	switch {
	case absZ > threshold:
		kind, title, effThreshold = model.AlertKindALERT, "Z-Score Breach", threshold
	case absZ > threshold*zScoreApproachFraction:
		kind, title, effThreshold = model.AlertKindWarning, "Z-Score Approaching Threshold", threshold*zScoreApproachFraction
	default:
		return model.Alert{}, false
	}
	if zScore >= 0 {
		direction = model.DirectionAbove
	} else {
		direction = model.DirectionBelow
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := cooldownKey(kind, title, symbol)
	if !m.shouldFire(key, now) {
		return model.Alert{}, false
	}
	message := fmt.Sprintf("%s z-score %.4f crossed threshold %.4f", symbol, zScore, effThreshold)
	return m.emit(kind, title, message, symbol, zScore, effThreshold, "z_score", direction, now), true
}

// EvaluateCorrelation fires the low-correlation warning rule.
func (m *Manager) EvaluateCorrelation(symbol string, correlation float64, now time.Time) (model.Alert, bool) {
	if math.Abs(correlation) >= m.minCorrelation {
		return model.Alert{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	title := "Low Correlation"
	key := cooldownKey(model.AlertKindWarning, title, symbol)
	if !m.shouldFire(key, now) {
		return model.Alert{}, false
	}
	message := fmt.Sprintf("%s correlation %.4f fell below %.4f", symbol, correlation, m.minCorrelation)
	return m.emit(model.AlertKindWarning, title, message, symbol, correlation, m.minCorrelation, "correlation", model.DirectionBelow, now), true
}

// EvaluateVolatility fires the high-volatility warning rule.
func (m *Manager) EvaluateVolatility(symbol string, volatility float64, now time.Time) (model.Alert, bool) {
	if volatility <= m.maxVolatility {
		return model.Alert{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	title := "High Volatility"
	key := cooldownKey(model.AlertKindWarning, title, symbol)
	if !m.shouldFire(key, now) {
		return model.Alert{}, false
	}
	message := fmt.Sprintf("%s volatility %.4f exceeded %.4f", symbol, volatility, m.maxVolatility)
	return m.emit(model.AlertKindWarning, title, message, symbol, volatility, m.maxVolatility, "volatility", model.DirectionAbove, now), true
}

// EvaluateSnapshot runs all three rules against snap for the given
// symbol label (the pair's base symbol, by convention), in the order the
// source evaluates them.
func (m *Manager) EvaluateSnapshot(symbol string, snap model.AnalyticsSnapshot, zScoreThreshold float64, now time.Time) []model.Alert {
	var fired []model.Alert
	if a, ok := m.EvaluateZScore(symbol, snap.ZScore, zScoreThreshold, now); ok {
		fired = append(fired, a)
	}
	if a, ok := m.EvaluateCorrelation(symbol, snap.Correlation, now); ok {
		fired = append(fired, a)
	}
	if a, ok := m.EvaluateVolatility(symbol, snap.RollingVolatility, now); ok {
		fired = append(fired, a)
	}
	return fired
}

// List returns a copy of the ring, newest-first, truncated to limit (0
// means no limit).
func (m *Manager) List(limit int) []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.ring)
	out := make([]model.Alert, n)
	for i := 0; i < n; i++ {
		out[i] = m.ring[n-1-i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
