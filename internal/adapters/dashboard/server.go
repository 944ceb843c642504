// Package dashboard expone el ledger paper como API HTTP de solo lectura.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alejandrodnm/polycopy/internal/application/report"
	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 1000
	defaultIntervalSec = 300 // 5m
	defaultEquityLimit = 288 // ~24h a 5m
)

// Server sirve la API del dashboard.
type Server struct {
	rm      ports.ReadModel
	tracker ports.TrackerReader
	now     func() time.Time
}

func NewServer(rm ports.ReadModel) *Server {
	return &Server{rm: rm, now: time.Now}
}

// WithTracker habilita /api/tracked.
func (s *Server) WithTracker(t ports.TrackerReader) *Server {
	s.tracker = t
	return s
}

// Router monta las rutas con los middlewares de chi y las métricas HTTP.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/portfolio", s.portfolio)
		r.Get("/positions", s.positions)
		r.Get("/fills", s.fills)
		r.Get("/closed", s.closed)
		r.Get("/equity", s.equity)
		r.Get("/state", s.state)
		r.Get("/live-fills", s.liveFills)
		r.Get("/rejections", s.rejections)
		r.Get("/tracked", s.tracked)
	})
	return r
}

// ListenAndServe bloquea hasta que ctx se cancela y luego cierra con gracia.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashboard listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- DTOs ---

type portfolioResponse struct {
	Equity        decimal.Decimal `json:"equity"`
	Cash          decimal.Decimal `json:"cash"`
	PositionValue decimal.Decimal `json:"position_value"`
	Unrealized    decimal.Decimal `json:"unrealized"`
	Realized      decimal.Decimal `json:"realized"`
	OpenPositions int             `json:"open_positions"`
	Timestamp     int64           `json:"timestamp"`
}

type positionResponse struct {
	LeaderWallet string          `json:"leader_wallet"`
	ConditionID  string          `json:"condition_id"`
	Outcome      string          `json:"outcome"`
	Title        string          `json:"title,omitempty"`
	Size         decimal.Decimal `json:"size"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	MarkPrice    decimal.Decimal `json:"mark_price"`
	Notional     decimal.Decimal `json:"notional"`
	Unrealized   decimal.Decimal `json:"unrealized"`
	UpdatedAt    int64           `json:"updated_at"`
}

type fillResponse struct {
	ID            int64           `json:"id"`
	LeaderTradeID int64           `json:"leader_trade_id"`
	LeaderWallet  string          `json:"leader_wallet"`
	ConditionID   string          `json:"condition_id"`
	Outcome       string          `json:"outcome"`
	Side          domain.Side     `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	Notional      decimal.Decimal `json:"notional"`
	Timestamp     int64           `json:"timestamp"`
	Title         string          `json:"title,omitempty"`
}

type snapshotResponse struct {
	Timestamp  int64           `json:"timestamp"`
	Equity     decimal.Decimal `json:"equity"`
	Cash       decimal.Decimal `json:"cash"`
	Unrealized decimal.Decimal `json:"unrealized"`
	Realized   decimal.Decimal `json:"realized"`
}

type stateResponse struct {
	Initialized     bool  `json:"initialized"`
	LastTradeID     int64 `json:"last_trade_id"`
	MaxTradeID      int64 `json:"max_trade_id"`
	Backlog         int64 `json:"backlog"`
	EpochStart      int64 `json:"epoch_start"`
	LastSnapshotAt  int64 `json:"last_snapshot_at,omitempty"`
	PendingRejected int   `json:"pending_rejections"`
}

type liveFillResponse struct {
	LeaderTradeID int64                  `json:"leader_trade_id"`
	LeaderWallet  string                 `json:"leader_wallet"`
	ConditionID   string                 `json:"condition_id"`
	Side          domain.Side            `json:"side"`
	Price         decimal.Decimal        `json:"price"`
	Size          decimal.Decimal        `json:"size"`
	Notional      decimal.Decimal        `json:"notional"`
	Status        domain.ExecutionStatus `json:"status"`
	Reference     string                 `json:"reference,omitempty"`
	Error         string                 `json:"error,omitempty"`
	SubmittedAt   int64                  `json:"submitted_at"`
}

type rejectionResponse struct {
	LeaderTradeID int64  `json:"leader_trade_id"`
	Reason        string `json:"reason"`
	RejectedAt    int64  `json:"rejected_at"`
}

type trackedPositionResponse struct {
	ConditionID string          `json:"condition_id"`
	Outcome     string          `json:"outcome"`
	Title       string          `json:"title,omitempty"`
	Slug        string          `json:"slug,omitempty"`
	EventSlug   string          `json:"event_slug,omitempty"`
	Category    string          `json:"category,omitempty"`
	TotalSize   decimal.Decimal `json:"total_size"`
	MarkPrice   decimal.Decimal `json:"mark_price"`
	TotalUSD    decimal.Decimal `json:"total_usd"`
	WalletCount int             `json:"wallet_count"`
	Holders     []string        `json:"holders"`
	LastUpdated int64           `json:"last_updated"`
	FirstSeen   int64           `json:"first_seen"`
	ReviewedAt  int64           `json:"reviewed_at,omitempty"`
	Reviewed    bool            `json:"reviewed"`
	Unread      bool            `json:"unread"`
}

type trackedResponse struct {
	LastSuccess     int64                     `json:"last_success,omitempty"`
	FirstSeenCutoff int64                     `json:"first_seen_cutoff,omitempty"`
	Unread          int                       `json:"unread"`
	Positions       []trackedPositionResponse `json:"positions"`
}

// --- handlers ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "service": "polycopy"})
}

// portfolio recalcula con los marks actuales en vez de leer el último snapshot.
func (s *Server) portfolio(w http.ResponseWriter, r *http.Request) {
	p, err := report.Build(r.Context(), s.rm)
	if err != nil {
		s.fail(w, "portfolio", err)
		return
	}
	v := p.Valuation
	writeJSON(w, portfolioResponse{
		Equity:        v.Equity,
		Cash:          v.Cash,
		PositionValue: v.PositionValue,
		Unrealized:    v.Unrealized,
		Realized:      v.Realized,
		OpenPositions: len(p.Positions),
		Timestamp:     s.now().UnixMilli(),
	})
}

func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	positions, err := s.rm.Positions(ctx)
	if err != nil {
		s.fail(w, "positions", err)
		return
	}
	marks, err := s.rm.LatestMarks(ctx)
	if err != nil {
		s.fail(w, "positions", err)
		return
	}
	titles, err := s.rm.MarketTitles(ctx)
	if err != nil {
		s.fail(w, "positions", err)
		return
	}

	views := report.PositionViews(positions, marks, titles)
	out := make([]positionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, positionResponse{
			LeaderWallet: v.Leader,
			ConditionID:  v.ConditionID,
			Outcome:      v.Outcome,
			Title:        v.Title,
			Size:         v.Size,
			AvgPrice:     v.AvgPrice,
			MarkPrice:    v.MarkPrice,
			Notional:     v.Notional,
			Unrealized:   v.Unrealized,
			UpdatedAt:    v.UpdatedAt.UnixMilli(),
		})
	}
	writeJSON(w, out)
}

func (s *Server) fills(w http.ResponseWriter, r *http.Request) {
	s.writeFills(w, r, "")
}

// closed lista los SELL: reducen o cierran posiciones.
func (s *Server) closed(w http.ResponseWriter, r *http.Request) {
	s.writeFills(w, r, domain.SideSell)
}

func (s *Server) writeFills(w http.ResponseWriter, r *http.Request, side domain.Side) {
	limit, ok := intParam(w, r, "limit", defaultListLimit)
	if !ok {
		return
	}
	fills, err := s.rm.Fills(r.Context(), side, min(limit, maxListLimit))
	if err != nil {
		s.fail(w, "fills", err)
		return
	}
	out := make([]fillResponse, 0, len(fills))
	for _, f := range fills {
		out = append(out, fillResponse{
			ID:            f.ID,
			LeaderTradeID: f.SourceTradeID,
			LeaderWallet:  f.Leader,
			ConditionID:   f.ConditionID,
			Outcome:       f.Outcome,
			Side:          f.Side,
			Price:         f.Price,
			Size:          f.Size,
			Notional:      f.Size.Mul(f.Price),
			Timestamp:     f.Timestamp.UnixMilli(),
			Title:         f.Title,
		})
	}
	writeJSON(w, out)
}

func (s *Server) equity(w http.ResponseWriter, r *http.Request) {
	interval, ok := intParam(w, r, "intervalSec", defaultIntervalSec)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", defaultEquityLimit)
	if !ok {
		return
	}
	series, err := s.rm.EquitySeries(r.Context(), int64(interval), limit)
	if err != nil {
		s.fail(w, "equity", err)
		return
	}
	out := make([]snapshotResponse, 0, len(series))
	for _, p := range series {
		out = append(out, snapshotResponse{
			Timestamp:  p.Timestamp.UnixMilli(),
			Equity:     p.Equity,
			Cash:       p.Cash,
			Unrealized: p.Unrealized,
			Realized:   p.Realized,
		})
	}
	writeJSON(w, out)
}

// state expone cursor y epoch para detectar un ledger parado.
func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok, err := s.rm.LoadState(ctx)
	if err != nil {
		s.fail(w, "state", err)
		return
	}
	maxID, err := s.rm.MaxTradeID(ctx)
	if err != nil {
		s.fail(w, "state", err)
		return
	}
	rej, err := s.rm.Rejections(ctx, 0)
	if err != nil {
		s.fail(w, "state", err)
		return
	}

	resp := stateResponse{
		Initialized:     ok,
		LastTradeID:     st.LastTradeID,
		MaxTradeID:      maxID,
		PendingRejected: len(rej),
	}
	if maxID > st.LastTradeID {
		resp.Backlog = maxID - st.LastTradeID
	}
	if ok {
		resp.EpochStart = st.EpochStart.UnixMilli()
	}
	if snap, found, err := s.rm.LatestSnapshot(ctx); err == nil && found {
		resp.LastSnapshotAt = snap.Timestamp.UnixMilli()
	}
	writeJSON(w, resp)
}

func (s *Server) liveFills(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", defaultListLimit)
	if !ok {
		return
	}
	fills, err := s.rm.LiveFills(r.Context(), min(limit, maxListLimit))
	if err != nil {
		s.fail(w, "live-fills", err)
		return
	}
	out := make([]liveFillResponse, 0, len(fills))
	for _, f := range fills {
		out = append(out, liveFillResponse{
			LeaderTradeID: f.SourceTradeID,
			LeaderWallet:  f.Leader,
			ConditionID:   f.ConditionID,
			Side:          f.Side,
			Price:         f.Price,
			Size:          f.Size,
			Notional:      f.Notional,
			Status:        f.Result.Status,
			Reference:     f.Result.Reference,
			Error:         f.Result.Error,
			SubmittedAt:   f.Result.SubmittedAt.UnixMilli(),
		})
	}
	writeJSON(w, out)
}

func (s *Server) rejections(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", defaultListLimit)
	if !ok {
		return
	}
	rej, err := s.rm.Rejections(r.Context(), min(limit, maxListLimit))
	if err != nil {
		s.fail(w, "rejections", err)
		return
	}
	out := make([]rejectionResponse, 0, len(rej))
	for _, x := range rej {
		out = append(out, rejectionResponse{
			LeaderTradeID: x.TradeID,
			Reason:        x.Reason,
			RejectedAt:    x.RejectedAt.UnixMilli(),
		})
	}
	writeJSON(w, out)
}

func (s *Server) tracked(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeError(w, "tracker not configured", http.StatusNotFound)
		return
	}
	view, err := s.tracker.View(r.Context())
	if err != nil {
		s.fail(w, "tracked", err)
		return
	}
	resp := trackedResponse{
		LastSuccess:     unixMilliOrZero(view.LastSuccess),
		FirstSeenCutoff: unixMilliOrZero(view.FirstSeenCutoff),
		Unread:          view.Unread,
		Positions:       make([]trackedPositionResponse, 0, len(view.Positions)),
	}
	for _, p := range view.Positions {
		resp.Positions = append(resp.Positions, trackedPositionResponse{
			ConditionID: p.ConditionID,
			Outcome:     p.Outcome,
			Title:       p.Title,
			Slug:        p.Slug,
			EventSlug:   p.EventSlug,
			Category:    p.Category,
			TotalSize:   p.TotalSize,
			MarkPrice:   p.MarkPrice,
			TotalUSD:    p.TotalUSD,
			WalletCount: p.WalletCount,
			Holders:     p.Holders,
			LastUpdated: unixMilliOrZero(p.LastUpdated),
			FirstSeen:   unixMilliOrZero(p.FirstSeen),
			ReviewedAt:  unixMilliOrZero(p.ReviewedAt),
			Reviewed:    p.Reviewed,
			Unread:      p.Unread,
		})
	}
	writeJSON(w, resp)
}

// --- helpers ---

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}


// intParam lee un entero positivo de la query; escribe 400 si es inválido.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (s *Server) fail(w http.ResponseWriter, endpoint string, err error) {
	slog.Error("dashboard query failed", "endpoint", endpoint, "err", err)
	writeError(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
