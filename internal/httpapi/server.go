// Package httpapi implements the ambient HTTP surface referenced by
// spec.md §6: health, settings, alerts and export. Styled on the
// teacher's api.Server (manual net/http handlers, explicit CORS headers,
// json.NewDecoder/NewEncoder) rather than a router library, since the
// teacher never reaches for one either.
package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/statarb/engine/internal/analytics"
	"github.com/statarb/engine/internal/auth"
	"github.com/statarb/engine/internal/broadcast"
	"github.com/statarb/engine/internal/metrics"
	"github.com/statarb/engine/internal/model"
	"github.com/statarb/engine/internal/orchestrator"
)

// Server holds the dependencies the HTTP surface reads from.
type Server struct {
	orch *orchestrator.Orchestrator
	auth *auth.Service
	mux  *http.ServeMux
}

// New builds the HTTP surface and registers its routes, including the
// broadcast fabric's six websocket endpoints.
func New(orch *orchestrator.Orchestrator, authSvc *auth.Service) *Server {
	s := &Server{orch: orch, auth: authSvc, mux: http.NewServeMux()}

	s.mux.HandleFunc("/api/health", s.withCORS(s.handleHealth))
	s.mux.HandleFunc("/api/settings/token", s.withCORS(s.handleIssueToken))
	s.mux.HandleFunc("/api/settings", s.withCORS(s.handleSettings))
	s.mux.HandleFunc("/api/alerts", s.withCORS(s.handleAlerts))
	s.mux.HandleFunc("/export/", s.withCORS(s.handleExport))
	s.mux.Handle("/metrics", metrics.Handler())

	for _, t := range []broadcast.Topic{
		broadcast.TopicPrices, broadcast.TopicSpread, broadcast.TopicCorrelation,
		broadcast.TopicSummary, broadcast.TopicAlerts, broadcast.TopicAnalytics,
	} {
		topic := t
		s.mux.HandleFunc("/ws/"+string(topic), func(w http.ResponseWriter, r *http.Request) {
			orch.Hub().Serve(topic, w, r)
		})
	}

	return s
}

// Handler returns the assembled http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

type healthResponse struct {
	Status             string `json:"status"`
	UpstreamConnected  bool   `json:"upstream_connected"`
	LastTickAgeMs      int64  `json:"last_tick_age_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.orch.TickSource().IsConnected()
	status := "healthy"
	if !connected {
		status = "degraded"
	}
	resp := healthResponse{Status: status, UpstreamConnected: connected}
	var lastTick time.Time
	for _, sym := range s.orch.Config().SelectedSymbols {
		if t, ok := s.orch.Buffer().LatestPrice(sym); ok && t.TradeTime.After(lastTick) {
			lastTick = t.TradeTime
		}
	}
	if !lastTick.IsZero() {
		resp.LastTickAgeMs = time.Since(lastTick).Milliseconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

type tokenRequest struct {
	Passphrase string `json:"passphrase"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	token, err := s.auth.IssueToken(req.Passphrase)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.orch.Config())
	case http.MethodPost:
		if _, err := s.requireToken(r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var snap model.ConfigSnapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		s.orch.ReplaceConfig(snap)
		writeJSON(w, http.StatusOK, snap)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) requireToken(r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, fmt.Errorf("missing bearer token")
	}
	return s.auth.ValidateToken(parts[1])
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.orch.Alerts().List(limit))
}

// handleExport serves /export/{csv|json|parquet}?symbol=&limit=. Rows
// are derived from the latest N 1m bars and the most recent analytics
// result; per the documented source quirk, the spread/z-score/
// correlation columns repeat the same per-request values across every
// row rather than being recomputed per bar. The parquet format renders
// the same CSV body, only under the application/x-parquet content type.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.TrimPrefix(r.URL.Path, "/export/")
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	bars := s.orch.Resampler().GetBars(symbol, model.Interval1m, limit)
	cfg := s.orch.Config()

	spread, zscore, correlation := 0.0, 0.0, 0.0
	if rows := s.orch.Resampler().PriceHistory(cfg.SelectedSymbols, model.Interval1s, 60); len(rows) >= 2 && len(cfg.SelectedSymbols) >= 2 {
		base, hedge := cfg.SelectedSymbols[0], cfg.SelectedSymbols[1]
		baseSeries := make([]float64, len(rows))
		hedgeSeries := make([]float64, len(rows))
		for i, row := range rows {
			baseSeries[i] = row.Close[base]
			hedgeSeries[i] = row.Close[hedge]
		}
		sr := analytics.Analyze(baseSeries, hedgeSeries, cfg.ZScoreThreshold, cfg.RegressionKind, cfg.WindowSize, time.Now())
		if sr.Valid {
			spreadSeries, _ := analytics.Spread(hedgeSeries, baseSeries, cfg.RegressionKind)
			corr, _ := analytics.Correlation(baseSeries, hedgeSeries, analytics.DefaultCorrelationWindow)
			spread, zscore, correlation = spreadSeries[len(spreadSeries)-1], sr.ZScore, corr
		}
	}

	rows := make([]exportRow, len(bars))
	for i, bar := range bars {
		rows[i] = exportRow{
			BucketStart: bar.BucketStart.UTC().Format(time.RFC3339),
			Open:        bar.Open, High: bar.High, Low: bar.Low, Close: bar.Close, Volume: bar.Volume,
			Spread: spread, ZScore: zscore, Correlation: correlation,
		}
	}

	switch format {
	case "json":
		writeJSON(w, http.StatusOK, rows)
	case "csv", "parquet":
		if format == "parquet" {
			w.Header().Set("Content-Type", "application/x-parquet")
		} else {
			w.Header().Set("Content-Type", "text/csv")
		}
		writeCSV(w, rows)
	default:
		http.Error(w, "unsupported export format", http.StatusBadRequest)
	}
}

type exportRow struct {
	BucketStart string  `json:"bucket_start"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	Spread      float64 `json:"spread"`
	ZScore      float64 `json:"z_score"`
	Correlation float64 `json:"correlation"`
}

func writeCSV(w http.ResponseWriter, rows []exportRow) {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	cw.Write([]string{"bucket_start", "open", "high", "low", "close", "volume", "spread", "z_score", "correlation"})
	for _, row := range rows {
		cw.Write([]string{
			row.BucketStart,
			strconv.FormatFloat(row.Open, 'f', -1, 64),
			strconv.FormatFloat(row.High, 'f', -1, 64),
			strconv.FormatFloat(row.Low, 'f', -1, 64),
			strconv.FormatFloat(row.Close, 'f', -1, 64),
			strconv.FormatFloat(row.Volume, 'f', -1, 64),
			strconv.FormatFloat(row.Spread, 'f', -1, 64),
			strconv.FormatFloat(row.ZScore, 'f', -1, 64),
			strconv.FormatFloat(row.Correlation, 'f', -1, 64),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
