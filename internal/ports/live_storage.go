package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// LiveStorage persists live submissions.
type LiveStorage interface {
	SaveLiveFill(ctx context.Context, fill domain.LiveFill) error
	LiveFills(ctx context.Context, limit int) ([]domain.LiveFill, error)
}
