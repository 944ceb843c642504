package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultDataBase  = "https://data-api.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"
	defaultCLOBBase  = "https://clob.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// Data API /trades, /value: 200/10s → 120/10s → 12/s
	dataRatePerSec = 12
	// Gamma /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// CLOB general: 9000/10s → 5400/10s → 540/s
	clobRatePerSec = 540

	maxRetries = 3
)

// Client es el HTTP client de Polymarket con rate limiting y retries.
type Client struct {
	http         *http.Client
	dataBase     string
	gammaBase    string
	clobBase     string
	dataLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	clobLimiter  *rate.Limiter
	backoff      Backoff
	paging       TradePaging
}

// NewClient crea un Client con los base URLs dados.
// Los vacíos usan los URLs de producción.
func NewClient(dataBase, gammaBase, clobBase string) *Client {
	if dataBase == "" {
		dataBase = defaultDataBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		dataBase:     dataBase,
		gammaBase:    gammaBase,
		clobBase:     clobBase,
		dataLimiter:  rate.NewLimiter(dataRatePerSec, 5),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		clobLimiter:  rate.NewLimiter(clobRatePerSec, 50),
		backoff:      DefaultBackoff,
	}
}

// WithBackoff sustituye la política de retry (los tests usan esperas mínimas).
func (c *Client) WithBackoff(b Backoff) *Client {
	c.backoff = b
	return c
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial y jitter.
// Los errores agotados de red, 429 y 5xx se envuelven en domain.ErrTransientSource.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff.Sleep(ctx, attempt-1); err != nil {
				return err
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "attempt", attempt+1)
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: after %d retries: %v", domain.ErrTransientSource, maxRetries, lastErr)
}
