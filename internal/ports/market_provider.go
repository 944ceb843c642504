package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// MarketProvider obtiene metadata de mercados (slug, título, categoría) desde Gamma.
type MarketProvider interface {
	// FetchMarkets devuelve los mercados encontrados, indexados por condition id.
	// Los ids desconocidos simplemente no aparecen en el mapa.
	FetchMarkets(ctx context.Context, conditionIDs []string) (map[string]domain.Market, error)
}
