package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
)

// mapDataTrade convierte un trade de la Data API a domain.LeaderTrade.
// El ID lo asigna el trade log al insertar.
func mapDataTrade(r rawDataTrade) (domain.LeaderTrade, error) {
	size, err := decimal.NewFromString(r.Size.String())
	if err != nil {
		return domain.LeaderTrade{}, fmt.Errorf("size %q: %w", r.Size, err)
	}
	price, err := decimal.NewFromString(r.Price.String())
	if err != nil {
		return domain.LeaderTrade{}, fmt.Errorf("price %q: %w", r.Price, err)
	}
	ts := parseTradeTimestamp(r.Timestamp)
	if ts.IsZero() {
		return domain.LeaderTrade{}, fmt.Errorf("timestamp %q", r.Timestamp)
	}

	t := domain.LeaderTrade{
		Wallet:      domain.NormalizeWallet(r.ProxyWallet),
		TxHash:      r.TransactionHash,
		ConditionID: r.ConditionID,
		Asset:       r.Asset,
		Outcome:     domain.NormalizeOutcome(r.Outcome),
		Side:        domain.ParseSide(r.Side),
		Size:        size,
		Price:       price,
		Timestamp:   ts,
		MarketSlug:  r.Slug,
		MarketTitle: r.Title,
	}
	if r.Market != nil {
		if t.MarketSlug == "" {
			t.MarketSlug = r.Market.Slug
		}
		if t.MarketTitle == "" {
			t.MarketTitle = r.Market.Question
		}
	}
	return t, nil
}

// mapRTDSTrade convierte el payload de un mensaje RTDS.
func mapRTDSTrade(raw json.RawMessage) (domain.LeaderTrade, error) {
	var r rtdsTrade
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.LeaderTrade{}, fmt.Errorf("decode trade: %w", err)
	}
	if r.ConditionID == "" {
		r.ConditionID = r.ConditionIDV2
	}
	for _, alias := range []string{r.AssetID, r.TokenID} {
		if r.Asset == "" {
			r.Asset = alias
		}
	}
	if r.Title == "" {
		r.Title = r.Question
	}
	if r.ProxyWallet == "" || r.ConditionID == "" || r.TransactionHash == "" {
		return domain.LeaderTrade{}, fmt.Errorf("incomplete trade payload")
	}
	return mapDataTrade(r.rawDataTrade)
}

// mapPosition convierte una posición de la Data API. Los importes que faltan
// cuentan como cero; size es obligatorio.
func mapPosition(r rawPosition, wallet string, now time.Time) (domain.LeaderPosition, error) {
	if r.ConditionID == "" {
		return domain.LeaderPosition{}, fmt.Errorf("position without conditionId")
	}
	size, err := decimal.NewFromString(r.Size.String())
	if err != nil {
		return domain.LeaderPosition{}, fmt.Errorf("size %q: %w", r.Size, err)
	}
	p := domain.LeaderPosition{
		Wallet:      domain.NormalizeWallet(r.ProxyWallet),
		ConditionID: r.ConditionID,
		Outcome:     domain.NormalizeOutcome(r.Outcome),
		Size:        size,
		Title:       r.Title,
		Slug:        r.Slug,
		EventSlug:   r.EventSlug,
		Category:    strings.ToLower(strings.TrimSpace(r.Category)),
		UpdatedAt:   now,
	}
	if p.Wallet == "" {
		p.Wallet = domain.NormalizeWallet(wallet)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		n   json.Number
	}{
		{&p.AvgPrice, r.AvgPrice},
		{&p.CurPrice, r.CurPrice},
		{&p.CurrentValue, r.CurrentValue},
	} {
		if v, err := numberOrZero(f.n); err == nil {
			*f.dst = v
		}
	}
	return p, nil
}

// mapGammaMarket convierte la metadata de Gamma a domain.Market.
func mapGammaMarket(gm gammaMarket, now time.Time) domain.Market {
	title := gm.Title
	if title == "" {
		title = gm.Question
	}
	end := parseISODate(gm.EndDateISO)
	if end.IsZero() {
		end = parseISODate(gm.EndDate)
	}
	return domain.Market{
		ConditionID: gm.ConditionID,
		Slug:        gm.Slug,
		Title:       title,
		Category:    gm.Category,
		EndDate:     end,
		UpdatedAt:   now,
	}
}

// parseTradeTimestamp acepta unix en segundos o milisegundos, con o sin
// decimales, o un ISO string.
func parseTradeTimestamp(n json.Number) time.Time {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return time.Time{}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f > 1e12 {
			return time.UnixMilli(int64(f)).UTC()
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	return parseISODate(s)
}

func parseISODate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z", "2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
