package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
)

// Runner es lo que el worker necesita del engine.
type Runner interface {
	RunOnce(ctx context.Context) (domain.RunSummary, error)
}

// Worker serializa los runs del ledger. Los disparos llegan del ingest (trades
// nuevos) y del ticker; si ya hay un run en cola, el disparo se pliega en él.
type Worker struct {
	runner  Runner
	trigger chan struct{}
}

func NewWorker(r Runner) *Worker {
	return &Worker{runner: r, trigger: make(chan struct{}, 1)}
}

// Trigger pide un run. Nunca bloquea.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
		metrics.RunsCoalesced.Inc()
	}
}

// Run ejecuta un run al arrancar y luego en cada disparo o tick, hasta que ctx
// se cancela. interval <= 0 desactiva el ticker.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("ledger worker stopped")
			return ctx.Err()
		case <-tick:
			w.runOnce(ctx)
		case <-w.trigger:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	_, err := w.runner.RunOnce(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, domain.ErrInvariantViolation):
		// el trade queda bloqueando el cursor hasta intervención manual o reset
		slog.Error("ledger halted on rejected trade", "err", err)
	default:
		slog.Error("ledger run failed", "err", err)
	}
}
