package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

// DefaultMarketTTL es la vida de la metadata de Gamma en cache.
const DefaultMarketTTL = 15 * time.Minute

// missingMarker marca un condition id que Gamma no conoce, para no
// preguntarlo en cada ciclo.
const missingMarker = "-"

// Markets implementa ports.MarketProvider con cache delante de Gamma.
type Markets struct {
	primary ports.MarketProvider
	backend Backend
	ttl     time.Duration
}

func NewMarkets(primary ports.MarketProvider, backend Backend, ttl time.Duration) *Markets {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &Markets{primary: primary, backend: backend, ttl: ttl}
}

// FetchMarkets devuelve lo cacheado y solo consulta los ids que faltan.
func (m *Markets) FetchMarkets(ctx context.Context, conditionIDs []string) (map[string]domain.Market, error) {
	out := make(map[string]domain.Market, len(conditionIDs))
	var miss []string
	for _, id := range conditionIDs {
		v, ok, err := m.backend.Get(ctx, marketKey(id))
		if err != nil || !ok {
			miss = append(miss, id)
			continue
		}
		if v == missingMarker {
			continue
		}
		var mk domain.Market
		if json.Unmarshal([]byte(v), &mk) != nil {
			miss = append(miss, id)
			continue
		}
		out[id] = mk
	}
	if len(miss) == 0 {
		return out, nil
	}

	fetched, err := m.primary.FetchMarkets(ctx, miss)
	if err != nil {
		if len(out) > 0 {
			return out, nil
		}
		return nil, err
	}
	for _, id := range miss {
		mk, ok := fetched[id]
		if !ok {
			_ = m.backend.Set(ctx, marketKey(id), missingMarker, m.ttl)
			continue
		}
		if data, err := json.Marshal(mk); err == nil {
			_ = m.backend.Set(ctx, marketKey(id), string(data), m.ttl)
		}
		out[id] = mk
	}
	return out, nil
}

func marketKey(conditionID string) string { return "market:" + conditionID }
