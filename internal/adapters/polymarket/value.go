package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

// LeaderEquity devuelve el valor total del portfolio de una wallet (GET /value).
// Implementa ports.LeaderEquityProvider. Cero significa desconocido.
func (c *Client) LeaderEquity(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if wallet == "" {
		return decimal.Zero, fmt.Errorf("data-api.LeaderEquity: wallet is required")
	}

	var raw json.RawMessage
	u := c.dataBase + "/value?" + url.Values{"user": {wallet}}.Encode()
	if err := c.get(ctx, c.dataLimiter, u, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("data-api.LeaderEquity %s: %w", wallet, err)
	}

	v, err := parseValue(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("data-api.LeaderEquity %s: %w", wallet, err)
	}
	return v, nil
}

// parseValue acepta [{"user":..,"value":..}], {"value":..} y {"data":{"value":..}}.
func parseValue(raw json.RawMessage) (decimal.Decimal, error) {
	var list []valueEntry
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return decimal.Zero, nil
		}
		return numberOrZero(list[0].Value)
	}

	var obj struct {
		Value json.Number `json:"value"`
		Data  *valueEntry `json:"data"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return decimal.Zero, fmt.Errorf("decode value: %w", err)
	}
	if obj.Value == "" && obj.Data != nil {
		return numberOrZero(obj.Data.Value)
	}
	return numberOrZero(obj.Value)
}

func numberOrZero(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("value %q: %w", n, err)
	}
	return v, nil
}
