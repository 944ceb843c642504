// Package live replica los fills del ledger paper en el CLOB real.
//
// El executor nunca toca el ledger: devuelve un ExecutionResult que el caller
// persiste en live_fills. Un FAILED no se reintenta.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const disabledError = "LIVE_TRADING_DISABLED"

// Config controla el modo de ejecución real.
type Config struct {
	Enabled         bool
	DryRun          bool
	MinBalanceMATIC decimal.Decimal
	MaxGasGwei      decimal.Decimal // cero = sin límite
}

// Executor implementa ports.FillExecutor.
type Executor struct {
	cfg    Config
	placer ports.OrderPlacer
	gas    ports.GasChecker
	now    func() time.Time
}

// NewExecutor crea el executor. placer y gas pueden ser nil si Enabled=false.
func NewExecutor(cfg Config, placer ports.OrderPlacer, gas ports.GasChecker) *Executor {
	return &Executor{cfg: cfg, placer: placer, gas: gas, now: time.Now}
}

// SubmitFill envía el fill al CLOB según la configuración.
func (e *Executor) SubmitFill(ctx context.Context, fill domain.Fill) domain.ExecutionResult {
	res := e.submit(ctx, fill)
	metrics.LiveSubmissions.WithLabelValues(string(res.Status)).Inc()
	if res.Status == domain.ExecFailed {
		slog.Warn("live: submission failed", "trade_id", fill.SourceTradeID, "side", fill.Side, "err", res.Error)
	} else {
		slog.Info("live: submission", "trade_id", fill.SourceTradeID, "status", res.Status, "ref", res.Reference)
	}
	return res
}

func (e *Executor) submit(ctx context.Context, fill domain.Fill) domain.ExecutionResult {
	res := domain.ExecutionResult{Fee: decimal.Zero, SubmittedAt: e.now()}

	if !e.cfg.Enabled {
		res.Status = domain.ExecDisabled
		res.Error = disabledError
		return res
	}
	if !e.cfg.DryRun && (e.placer == nil || e.gas == nil) {
		res.Status = domain.ExecFailed
		res.Error = "live executor not configured"
		return res
	}
	// en dry-run sin wallet configurada no hay saldo que comprobar
	if e.gas != nil {
		if err := e.checkGas(ctx); err != nil {
			res.Status = domain.ExecFailed
			res.Error = err.Error()
			return res
		}
	}

	if e.cfg.DryRun {
		res.Status = domain.ExecDryRun
		res.Reference = "dry-" + uuid.NewString()
		return res
	}

	tokenID := fill.Asset
	if tokenID == "" {
		tokenID = fill.ConditionID
	}
	negRisk, err := e.placer.IsNegRisk(ctx, tokenID)
	if err != nil {
		// El exchange normal es el caso común; el CLOB rechaza la firma si no lo es.
		slog.Debug("live: neg-risk lookup failed, assuming standard exchange", "token", tokenID, "err", err)
	}

	placed, err := e.placer.PlaceOrder(ctx, domain.PlaceOrderRequest{
		TokenID: tokenID,
		Side:    fill.Side,
		Price:   fill.Price,
		Size:    fill.Size,
		NegRisk: negRisk,
	})
	res.SubmittedAt = e.now()
	if err != nil {
		res.Status = domain.ExecFailed
		res.Error = err.Error()
		return res
	}
	res.Status = domain.ExecPosted
	res.Reference = placed.CLOBOrderID
	return res
}

// checkGas exige saldo nativo mínimo y, si está configurado, un techo de gas.
func (e *Executor) checkGas(ctx context.Context) error {
	bal, err := e.gas.NativeBalance(ctx)
	if err != nil {
		return fmt.Errorf("gas balance: %w", err)
	}
	if bal.LessThan(e.cfg.MinBalanceMATIC) {
		return fmt.Errorf("insufficient MATIC for gas: balance %s < min %s", bal.StringFixed(4), e.cfg.MinBalanceMATIC.String())
	}
	if e.cfg.MaxGasGwei.IsPositive() {
		gwei, err := e.gas.GasPriceGwei(ctx)
		if err != nil {
			return fmt.Errorf("gas price: %w", err)
		}
		if gwei.GreaterThan(e.cfg.MaxGasGwei) {
			return fmt.Errorf("gas price %s gwei above max %s", gwei.StringFixed(1), e.cfg.MaxGasGwei.String())
		}
	}
	return nil
}

// Preflight valida la configuración antes de arrancar el daemon.
func (e *Executor) Preflight(ctx context.Context) error {
	if !e.cfg.Enabled {
		return nil
	}
	if e.cfg.DryRun && e.gas == nil {
		return nil
	}
	if e.placer == nil || e.gas == nil {
		return fmt.Errorf("live: trading enabled but no CLOB client configured")
	}
	if err := e.checkGas(ctx); err != nil {
		return fmt.Errorf("live: preflight: %w", err)
	}
	return nil
}
