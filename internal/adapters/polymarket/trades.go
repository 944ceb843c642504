package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	defaultTradesPerPage  = 500
	defaultTradesMaxPages = 40
)

// TradePaging controla cuánto histórico se descarga por wallet y ciclo.
type TradePaging struct {
	PerPage  int
	MaxPages int
}

// WithTradePaging ajusta la paginación de FetchLeaderTrades.
func (c *Client) WithTradePaging(p TradePaging) *Client {
	c.paging = p
	return c
}

// FetchLeaderTrades obtiene los trades taker de una wallet con timestamp >= since.
// La Data API devuelve del más nuevo al más viejo, así que se pagina hasta
// encontrar un trade anterior a since. Los trades con timestamp igual a since
// se devuelven: el trade log los deduplica.
func (c *Client) FetchLeaderTrades(ctx context.Context, wallet string, since time.Time) ([]domain.LeaderTrade, error) {
	perPage, maxPages := c.paging.PerPage, c.paging.MaxPages
	if perPage <= 0 {
		perPage = defaultTradesPerPage
	}
	if maxPages <= 0 {
		maxPages = defaultTradesMaxPages
	}

	var all []domain.LeaderTrade
	skipped := 0

	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("user", wallet)
		q.Set("limit", strconv.Itoa(perPage))
		q.Set("offset", strconv.Itoa(page*perPage))
		q.Set("takerOnly", "true")

		var resp []rawDataTrade
		if err := c.get(ctx, c.dataLimiter, c.dataBase+"/trades?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("data-api.FetchLeaderTrades %s: %w", wallet, err)
		}
		if len(resp) == 0 {
			break
		}

		reachedSince := false
		for _, rt := range resp {
			t, err := mapDataTrade(rt)
			if err != nil {
				skipped++
				slog.Debug("skipping malformed trade", "wallet", wallet, "tx", rt.TransactionHash, "err", err)
				continue
			}
			if !since.IsZero() && t.Timestamp.Before(since) {
				reachedSince = true
				continue
			}
			if t.Wallet == "" {
				t.Wallet = domain.NormalizeWallet(wallet)
			}
			all = append(all, t)
		}

		slog.Debug("fetched trades page",
			"wallet", wallet,
			"page", page,
			"count", len(resp),
			"total", len(all),
		)

		if reachedSince || len(resp) < perPage {
			break
		}
	}

	if skipped > 0 {
		slog.Warn("malformed trades skipped", "wallet", wallet, "count", skipped)
	}
	return all, nil
}
