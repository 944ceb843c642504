// Package ledger aplica el trade log de los leaders al portfolio follower.
//
// Un run toma los trades pendientes (id > cursor, timestamp >= epoch) en orden
// de id, dimensiona cada uno, y confirma posición, fill, cash y cursor en una
// sola transacción por trade. Tras el batch guarda un snapshot.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultBatchLimit = 5000
	ruleLabelPaper    = "paper"
)

// Config es la configuración estática del engine.
type Config struct {
	Leaders     []string
	StartEquity decimal.Decimal
	Sizing      domain.SizingPolicy
	BatchLimit  int // máximo de trades por run, <= 0 usa el default
}

// Engine es el único escritor del ledger. No es seguro llamarlo en paralelo:
// Worker serializa los runs.
type Engine struct {
	cfg      Config
	tracked  map[string]struct{}
	trades   ports.TradeLog
	store    ports.LedgerStore
	equity   ports.LeaderEquityProvider
	executor ports.FillExecutor
	live     ports.LiveStorage
	notifier ports.Notifier
	now      func() time.Time

	lastRejected int64 // evita registrar el mismo rechazo en cada run
}

// Option configura colaboradores opcionales del engine.
type Option func(*Engine)

// WithLeaderEquity habilita el sizing LEADER_PCT con el valor real del leader.
func WithLeaderEquity(p ports.LeaderEquityProvider) Option {
	return func(e *Engine) { e.equity = p }
}

// WithExecutor replica cada fill confirmado en el CLOB y guarda el resultado.
func WithExecutor(x ports.FillExecutor, live ports.LiveStorage) Option {
	return func(e *Engine) {
		e.executor = x
		e.live = live
	}
}

// WithNotifier publica el resumen de cada run.
func WithNotifier(n ports.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock sustituye time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(cfg Config, trades ports.TradeLog, store ports.LedgerStore, opts ...Option) *Engine {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	tracked := make(map[string]struct{}, len(cfg.Leaders))
	for _, w := range cfg.Leaders {
		tracked[domain.NormalizeWallet(w)] = struct{}{}
	}
	e := &Engine{
		cfg:     cfg,
		tracked: tracked,
		trades:  trades,
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State carga el estado, inicializándolo en el primer arranque con cursor 0 y
// epoch = ahora.
func (e *Engine) State(ctx context.Context) (domain.LedgerState, error) {
	st, ok, err := e.store.LoadState(ctx)
	if err != nil {
		return domain.LedgerState{}, fmt.Errorf("ledger.State: %w", err)
	}
	if ok {
		return st, nil
	}

	now := e.now()
	st = domain.NewLedgerState(e.cfg.StartEquity, 0, now)
	if err := e.store.InitState(ctx, st, domain.Value(st, nil, nil).Snapshot(now)); err != nil {
		return domain.LedgerState{}, fmt.Errorf("ledger.State: init: %w", err)
	}
	slog.Info("ledger initialized", "start_equity", e.cfg.StartEquity.String(), "epoch", now.UTC().Format(time.RFC3339))
	// Releer: si otro proceso inicializó antes, InitState no pisó nada.
	st, _, err = e.store.LoadState(ctx)
	if err != nil {
		return domain.LedgerState{}, fmt.Errorf("ledger.State: reload: %w", err)
	}
	return st, nil
}

// RunOnce procesa el batch pendiente. Un InvariantViolation detiene el batch
// con el cursor en el trade anterior; cualquier otro error deja el cursor
// donde quedó el último commit y el siguiente run reintenta.
func (e *Engine) RunOnce(ctx context.Context) (domain.RunSummary, error) {
	started := e.now()
	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Skips:     make(map[domain.SkipReason]int),
	}

	err := e.run(ctx, &summary)
	summary.Duration = e.now().Sub(started)
	metrics.RunDuration.Observe(summary.Duration.Seconds())

	switch {
	case err == nil:
		metrics.LedgerRuns.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrInvariantViolation):
		metrics.LedgerRuns.WithLabelValues("rejected").Inc()
	default:
		metrics.LedgerRuns.WithLabelValues("error").Inc()
		return summary, err
	}

	if e.notifier != nil {
		if nerr := e.notifier.NotifyRun(ctx, summary); nerr != nil {
			slog.Warn("notify run failed", "err", nerr)
		}
	}
	return summary, err
}

func (e *Engine) run(ctx context.Context, summary *domain.RunSummary) error {
	st, err := e.State(ctx)
	if err != nil {
		return err
	}
	summary.LastTradeID = st.LastTradeID

	pending, err := e.trades.PendingTrades(ctx, st.LastTradeID, st.EpochStart, e.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("ledger.RunOnce: pending trades: %w: %w", domain.ErrTransientSource, err)
	}

	positions, err := e.store.Positions(ctx)
	if err != nil {
		return fmt.Errorf("ledger.RunOnce: positions: %w", err)
	}
	marks, err := e.trades.LatestMarks(ctx)
	if err != nil {
		return fmt.Errorf("ledger.RunOnce: marks: %w", err)
	}

	if len(pending) == 0 {
		summary.Valuation = domain.Value(st, positions, marks)
		e.observe(summary.Valuation, st, len(positions))
		return nil
	}

	book := newBook(positions)
	// La asignación por leader se fija al inicio del batch.
	allocation := domain.PerLeaderAllocation(domain.Value(st, positions, marks).Equity, len(e.tracked))
	leaderEquity := make(map[string]decimal.Decimal)

	slog.Debug("ledger batch",
		"pending", len(pending),
		"cursor", st.LastTradeID,
		"allocation", allocation.StringFixed(2),
	)

	var runErr error
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		out, err := e.decide(ctx, t, st, book, allocation, leaderEquity)
		if err != nil {
			if errors.Is(err, domain.ErrInvariantViolation) {
				e.reject(ctx, t, err, summary)
			}
			runErr = err
			break
		}

		if err := e.store.ApplyTrade(ctx, out); err != nil {
			if errors.Is(err, domain.ErrAlreadyApplied) {
				// otro proceso avanzó el cursor: paramos y el próximo run relee
				slog.Warn("trade already applied, stopping batch", "trade_id", t.ID)
				break
			}
			runErr = fmt.Errorf("ledger.RunOnce: apply trade %d: %w", t.ID, err)
			break
		}

		st = out.State
		book.commit(out)
		summary.Processed++
		summary.LastTradeID = st.LastTradeID
		metrics.LastTradeID.Set(float64(st.LastTradeID))

		if !out.Filled() {
			summary.Skips[out.Skip]++
			metrics.TradesProcessed.WithLabelValues(string(out.Skip)).Inc()
			continue
		}

		summary.Filled++
		summary.Fills = append(summary.Fills, *out.Fill)
		metrics.TradesProcessed.WithLabelValues("filled").Inc()
		metrics.FillNotional.WithLabelValues(string(out.Fill.Side)).Add(out.Fill.SignedNotional.Abs().InexactFloat64())
		slog.Info("paper fill",
			"trade_id", t.ID,
			"leader", t.Wallet,
			"market", t.ConditionID,
			"outcome", t.Outcome,
			"side", t.Side,
			"size", out.Fill.Size.StringFixed(4),
			"price", out.Fill.Price.StringFixed(4),
			"realized", out.Realized.StringFixed(4),
		)
		e.submitLive(ctx, *out.Fill)
	}

	if summary.Processed > 0 {
		if err := e.snapshot(ctx, st, summary); err != nil && runErr == nil {
			runErr = err
		}
	} else {
		summary.Valuation = domain.Value(st, book.list(), marks)
	}
	return runErr
}

// decide dimensiona un trade y calcula el resultado sin tocar el store.
func (e *Engine) decide(ctx context.Context, t domain.LeaderTrade, st domain.LedgerState, book *book, allocation decimal.Decimal, leaderEquity map[string]decimal.Decimal) (domain.TradeOutcome, error) {
	skip := func(reason domain.SkipReason) domain.TradeOutcome {
		next := st
		next.LastTradeID = t.ID
		return domain.TradeOutcome{TradeID: t.ID, Skip: reason, Key: t.Key(), State: next, Realized: decimal.Zero}
	}

	if err := t.Validate(); err != nil {
		slog.Warn("invalid trade skipped", "trade_id", t.ID, "err", err)
		// queda registrado para inspección, pero no bloquea el cursor
		rej := domain.Rejection{TradeID: t.ID, Reason: err.Error(), RejectedAt: e.now()}
		if rerr := e.store.RecordRejection(ctx, rej); rerr != nil {
			slog.Error("record rejection failed", "trade_id", t.ID, "err", rerr)
		}
		return skip(domain.SkipInvalidTrade), nil
	}
	if _, ok := e.tracked[domain.NormalizeWallet(t.Wallet)]; !ok {
		return skip(domain.SkipUntrackedLeader), nil
	}
	if !st.Accepts(t) {
		return skip(domain.SkipBeforeEpoch), nil
	}

	key := t.Key()
	prev := book.get(key)
	in := domain.SizingInput{
		Trade:               t,
		PerLeaderAllocation: allocation,
		Exposure:            decimal.Zero,
		HeldSize:            decimal.Zero,
		Cash:                st.Cash,
	}
	if prev != nil {
		in.Exposure = prev.Notional()
		in.HeldSize = prev.Size
	}
	if e.cfg.Sizing.Mode == domain.SizeLeaderPct {
		in.LeaderEquity = e.leaderEquity(ctx, key.Leader, leaderEquity)
	}

	d := e.cfg.Sizing.Size(in)
	if d.Skipped() {
		return skip(d.Skip), nil
	}

	change, err := domain.ApplyFill(prev, key, t.ID, t.Side, d.CopySize, d.FillPrice, t.Timestamp)
	if err != nil {
		return domain.TradeOutcome{}, err
	}

	fill := domain.NewFill(t, d, ruleLabelPaper, e.now())
	next := st
	next.Cash = st.Cash.Add(domain.CashDelta(t.Side, d.CopySize, d.FillPrice))
	next.Realized = st.Realized.Add(change.Realized)
	next.LastTradeID = t.ID
	if next.Cash.IsNegative() {
		return domain.TradeOutcome{}, &domain.InvariantError{TradeID: t.ID, Key: key, Detail: "cash would go negative: " + next.Cash.String()}
	}

	return domain.TradeOutcome{
		TradeID:  t.ID,
		Fill:     &fill,
		Change:   change,
		Key:      key,
		State:    next,
		Realized: change.Realized,
	}, nil
}

// leaderEquity consulta el valor del leader una vez por batch. Un fallo no
// aborta el run: el sizing usa la fracción de fallback.
func (e *Engine) leaderEquity(ctx context.Context, wallet string, memo map[string]decimal.Decimal) decimal.Decimal {
	if v, ok := memo[wallet]; ok {
		return v
	}
	v := decimal.Zero
	if e.equity != nil {
		got, err := e.equity.LeaderEquity(ctx, wallet)
		if err != nil {
			slog.Warn("leader equity lookup failed, using fallback fraction", "wallet", wallet, "err", err)
		} else {
			v = got
		}
	}
	memo[wallet] = v
	return v
}

func (e *Engine) reject(ctx context.Context, t domain.LeaderTrade, cause error, summary *domain.RunSummary) {
	rej := domain.Rejection{TradeID: t.ID, Reason: cause.Error(), RejectedAt: e.now()}
	summary.Rejected = &rej
	if t.ID == e.lastRejected {
		return
	}
	e.lastRejected = t.ID
	metrics.InvariantViolations.Inc()
	slog.Error("trade rejected, cursor held",
		"trade_id", t.ID,
		"leader", t.Wallet,
		"market", t.ConditionID,
		"err", cause,
	)
	if err := e.store.RecordRejection(ctx, rej); err != nil {
		slog.Error("record rejection failed", "trade_id", t.ID, "err", err)
	}
}

// submitLive replica el fill. Se ejecuta después del commit: un FAILED queda
// registrado pero nunca deshace el ledger paper.
func (e *Engine) submitLive(ctx context.Context, fill domain.Fill) {
	if e.executor == nil {
		return
	}
	res := e.executor.SubmitFill(ctx, fill)
	if e.live == nil {
		return
	}
	if err := e.live.SaveLiveFill(ctx, domain.NewLiveFill(fill, res, e.now())); err != nil {
		slog.Error("save live fill failed", "trade_id", fill.SourceTradeID, "err", err)
	}
}

func (e *Engine) snapshot(ctx context.Context, st domain.LedgerState, summary *domain.RunSummary) error {
	positions, err := e.store.Positions(ctx)
	if err != nil {
		return fmt.Errorf("ledger.snapshot: positions: %w", err)
	}
	marks, err := e.trades.LatestMarks(ctx)
	if err != nil {
		return fmt.Errorf("ledger.snapshot: marks: %w", err)
	}
	v := domain.Value(st, positions, marks)
	summary.Valuation = v
	e.observe(v, st, len(positions))
	if err := e.store.AppendSnapshot(ctx, v.Snapshot(e.now())); err != nil {
		return fmt.Errorf("ledger.snapshot: %w", err)
	}
	return nil
}

func (e *Engine) observe(v domain.Valuation, st domain.LedgerState, open int) {
	metrics.Equity.Set(v.Equity.InexactFloat64())
	metrics.Cash.Set(v.Cash.InexactFloat64())
	metrics.Unrealized.Set(v.Unrealized.InexactFloat64())
	metrics.Realized.Set(v.Realized.InexactFloat64())
	metrics.OpenPositions.Set(float64(open))
	metrics.LastTradeID.Set(float64(st.LastTradeID))
}

// Reset empieza una epoch nueva: cursor al último trade del log y epoch =
// ahora, de modo que el histórico no se reproduce.
func (e *Engine) Reset(ctx context.Context) (domain.LedgerState, error) {
	maxID, err := e.trades.MaxTradeID(ctx)
	if err != nil {
		return domain.LedgerState{}, fmt.Errorf("ledger.Reset: max trade id: %w", err)
	}
	now := e.now()
	st := domain.NewLedgerState(e.cfg.StartEquity, maxID, now)
	if err := e.store.Reset(ctx, st, domain.Value(st, nil, nil).Snapshot(now)); err != nil {
		return domain.LedgerState{}, fmt.Errorf("ledger.Reset: %w", err)
	}
	e.observe(domain.Value(st, nil, nil), st, 0)
	slog.Info("ledger reset", "cursor", maxID, "epoch", now.UTC().Format(time.RFC3339), "cash", st.Cash.String())
	return st, nil
}

// book es la vista en memoria de las posiciones durante un batch.
type book struct {
	positions map[domain.PositionKey]domain.FollowerPosition
}

func newBook(positions []domain.FollowerPosition) *book {
	b := &book{positions: make(map[domain.PositionKey]domain.FollowerPosition, len(positions))}
	for _, p := range positions {
		b.positions[p.Key] = p
	}
	return b
}

func (b *book) get(key domain.PositionKey) *domain.FollowerPosition {
	p, ok := b.positions[key]
	if !ok {
		return nil
	}
	return &p
}

func (b *book) commit(o domain.TradeOutcome) {
	if !o.Filled() {
		return
	}
	if o.Change.Closed() {
		delete(b.positions, o.Key)
		return
	}
	b.positions[o.Key] = *o.Change.Next
}

func (b *book) list() []domain.FollowerPosition {
	out := make([]domain.FollowerPosition, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out
}
