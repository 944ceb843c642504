package polymarket

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff es la política de espera compartida por el cliente HTTP (429/5xx) y
// por la reconexión del feed RTDS.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fracción del delay añadida aleatoriamente, 0 = sin jitter
}

// DefaultBackoff: 500ms, 1s, 2s, 4s... con techo de 30s y 20% de jitter.
var DefaultBackoff = Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2}

// Delay devuelve la espera para el intento dado (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	wait := time.Duration(math.Pow(2, float64(attempt))) * b.Base
	if b.Max > 0 && (wait > b.Max || wait <= 0) {
		wait = b.Max
	}
	if b.Jitter > 0 {
		wait += time.Duration(rand.Float64() * b.Jitter * float64(wait))
	}
	return wait
}

// Sleep espera Delay(attempt) respetando el contexto.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(b.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
