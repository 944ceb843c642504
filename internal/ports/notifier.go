package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Notifier presenta el estado del ledger al usuario.
type Notifier interface {
	// NotifyRun muestra el resumen de un batch aplicado.
	NotifyRun(ctx context.Context, summary domain.RunSummary) error
}
