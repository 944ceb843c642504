package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	positionsPerPage  = 500
	positionsMaxPages = 10
)

// FetchLeaderPositions devuelve las posiciones abiertas de wallet con size >=
// sizeThreshold (GET /positions). Implementa ports.PositionSource.
func (c *Client) FetchLeaderPositions(ctx context.Context, wallet string, sizeThreshold decimal.Decimal) ([]domain.LeaderPosition, error) {
	if wallet == "" {
		return nil, fmt.Errorf("data-api.FetchLeaderPositions: wallet is required")
	}
	now := time.Now().UTC()

	var all []domain.LeaderPosition
	skipped := 0
	for page := 0; page < positionsMaxPages; page++ {
		q := url.Values{}
		q.Set("user", wallet)
		q.Set("sizeThreshold", sizeThreshold.String())
		q.Set("limit", strconv.Itoa(positionsPerPage))
		q.Set("offset", strconv.Itoa(page*positionsPerPage))

		var resp []rawPosition
		if err := c.get(ctx, c.dataLimiter, c.dataBase+"/positions?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("data-api.FetchLeaderPositions %s: %w", wallet, err)
		}
		for _, rp := range resp {
			p, err := mapPosition(rp, wallet, now)
			if err != nil {
				skipped++
				slog.Debug("skipping malformed position", "wallet", wallet, "err", err)
				continue
			}
			all = append(all, p)
		}
		if len(resp) < positionsPerPage {
			break
		}
	}

	if skipped > 0 {
		slog.Warn("malformed positions skipped", "wallet", wallet, "count", skipped)
	}
	return all, nil
}
