// Package metrics provides Prometheus instrumentation for the copy-trading ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerRuns counts ledger batches by result (ok, empty, error, rejected).
	LedgerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_ledger_runs_total",
		Help: "Ledger batches executed, by result",
	}, []string{"result"})

	// RunsCoalesced counts triggers folded into an already queued run.
	RunsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polycopy_runs_coalesced_total",
		Help: "Run triggers coalesced while a run was in flight or queued",
	})

	// RunDuration tracks ledger batch duration.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polycopy_ledger_run_duration_seconds",
		Help:    "Ledger batch duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// TradesProcessed counts leader trades consumed by the ledger, by outcome
	// (filled or the skip reason).
	TradesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_trades_processed_total",
		Help: "Leader trades consumed by the ledger, by outcome",
	}, []string{"outcome"})

	// InvariantViolations counts trades rejected by the position ledger.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polycopy_invariant_violations_total",
		Help: "Leader trades rejected with the cursor withheld",
	})

	// FillNotional accumulates follower fill notional in USDC by side.
	FillNotional = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_fill_notional_usdc_total",
		Help: "Cumulative follower fill notional in USDC",
	}, []string{"side"})

	// LastTradeID exposes the processing cursor; a flat line means a stall.
	LastTradeID = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polycopy_cursor_last_trade_id",
		Help: "Last leader trade id consumed by the ledger",
	})

	// Equity, Cash, Unrealized and Realized mirror the last snapshot.
	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polycopy_equity_usdc",
		Help: "Follower equity at the last snapshot",
	})
	Cash = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polycopy_cash_usdc",
		Help: "Follower cash at the last snapshot",
	})
	Unrealized = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polycopy_unrealized_usdc",
		Help: "Unrealized P&L at the last snapshot",
	})
	Realized = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polycopy_realized_usdc",
		Help: "Realized P&L at the last snapshot",
	})
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polycopy_open_positions",
		Help: "Open follower positions",
	})

	// TradesIngested counts new trade log rows by source (poll, rtds).
	TradesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_trades_ingested_total",
		Help: "New leader trades written to the trade log, by source",
	}, []string{"source"})

	// IngestErrors counts failed ingestion attempts by source.
	IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_ingest_errors_total",
		Help: "Failed ingestion attempts, by source",
	}, []string{"source"})

	// FeedMessages counts RTDS messages by kind (trade, ignored, parse_error).
	FeedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_feed_messages_total",
		Help: "Live feed messages received, by kind",
	}, []string{"kind"})

	// FeedReconnects counts live feed reconnections.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polycopy_feed_reconnects_total",
		Help: "Live feed reconnections",
	})

	// LiveSubmissions counts live executor results by status.
	LiveSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_live_submissions_total",
		Help: "Live submissions, by status",
	}, []string{"status"})

	// EquityLookups counts leader equity lookups by source (cache, api, error).
	EquityLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_leader_equity_lookups_total",
		Help: "Leader equity lookups, by source",
	}, []string{"source"})

	// TrackerPolls counts leader position polls by result (ok, error).
	TrackerPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_tracker_polls_total",
		Help: "Leader position polls, by result",
	}, []string{"result"})

	// TrackedPositions is the number of open leader positions kept by the tracker.
	TrackedPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polycopy_tracked_positions",
		Help: "Open leader positions kept by the tracker",
	})

	// IntentsGenerated counts copy intents written by follow rules.
	IntentsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polycopy_intents_generated_total",
		Help: "Copy intents generated by follow rules",
	})

	// HTTPRequestsTotal counts dashboard requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_http_requests_total",
		Help: "Total dashboard HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks dashboard request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polycopy_http_request_duration_seconds",
		Help:    "Dashboard HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern, not raw path, to keep label cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
