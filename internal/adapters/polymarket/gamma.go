package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

// FetchMarkets obtiene la metadata de Gamma para los condition ids dados, en
// batches de 20. Un batch que falla se salta: la metadata es solo cosmética.
// Implementa ports.MarketProvider.
func (c *Client) FetchMarkets(ctx context.Context, conditionIDs []string) (map[string]domain.Market, error) {
	result := make(map[string]domain.Market, len(conditionIDs))
	now := time.Now().UTC()
	failed := 0

	for i := 0; i < len(conditionIDs); i += gammaConditionMax {
		end := min(i+gammaConditionMax, len(conditionIDs))
		batch := conditionIDs[i:end]

		url := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("gamma.FetchMarkets: %w", ctx.Err())
			}
			failed++
			slog.Debug("gamma batch failed, skipping",
				"batch", fmt.Sprintf("%d-%d", i, end),
				"err", err,
			)
			continue
		}

		for _, gm := range resp {
			if gm.ConditionID == "" {
				continue
			}
			result[gm.ConditionID] = mapGammaMarket(gm, now)
		}
	}

	if failed > 0 && len(result) == 0 {
		return nil, fmt.Errorf("gamma.FetchMarkets: all %d batches failed: %w", failed, domain.ErrTransientSource)
	}
	return result, nil
}
