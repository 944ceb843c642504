package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FollowMode decide si una regla replica el side del leader o lo invierte.
type FollowMode string

const (
	FollowCopy    FollowMode = "COPY"
	FollowCounter FollowMode = "COUNTER"
)

// RuleSizeFixedUSDC es el único sizing de las reglas: un notional fijo por trade.
const RuleSizeFixedUSDC = "FIXED_USDC"

// IntentIntended es el estado inicial de un intent.
const IntentIntended = "INTENDED"

// FollowRule es una regla de simulación: qué wallets seguir, en qué sentido y
// con qué notional. No toca el ledger; solo genera CopyIntents.
type FollowRule struct {
	Label             string
	Wallets           []string
	Mode              FollowMode
	SizeMode          string
	FixedUSDC         decimal.Decimal
	MaxUSDCPerTrade   decimal.Decimal // cero = sin tope
	AllowedCategories []string        // vacío = todas
}

// Validate comprueba que la regla se puede aplicar.
func (r FollowRule) Validate() error {
	switch {
	case strings.TrimSpace(r.Label) == "":
		return fmt.Errorf("rule: label is required")
	case len(r.Wallets) == 0:
		return fmt.Errorf("rule %q: no wallets", r.Label)
	case r.Mode != FollowCopy && r.Mode != FollowCounter:
		return fmt.Errorf("rule %q: mode must be COPY or COUNTER, got %q", r.Label, r.Mode)
	case r.SizeMode != RuleSizeFixedUSDC:
		return fmt.Errorf("rule %q: sizeMode must be %s, got %q", r.Label, RuleSizeFixedUSDC, r.SizeMode)
	case !r.FixedUSDC.IsPositive():
		return fmt.Errorf("rule %q: fixedUsdc must be > 0", r.Label)
	case r.MaxUSDCPerTrade.IsNegative():
		return fmt.Errorf("rule %q: maxUsdcPerTrade must be >= 0", r.Label)
	}
	return nil
}

// Follows indica si la regla sigue a wallet.
func (r FollowRule) Follows(wallet string) bool {
	wallet = NormalizeWallet(wallet)
	for _, w := range r.Wallets {
		if NormalizeWallet(w) == wallet {
			return true
		}
	}
	return false
}

// Allows indica si la categoría del mercado pasa el filtro de la regla. Un
// mercado sin categoría solo pasa si la regla no filtra.
func (r FollowRule) Allows(category string) bool {
	if len(r.AllowedCategories) == 0 {
		return true
	}
	for _, c := range r.AllowedCategories {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(category)) {
			return true
		}
	}
	return false
}

// TargetNotional es el notional fijo acotado por el tope por trade.
func (r FollowRule) TargetNotional() decimal.Decimal {
	if r.MaxUSDCPerTrade.IsPositive() {
		return decimal.Min(r.FixedUSDC, r.MaxUSDCPerTrade)
	}
	return r.FixedUSDC
}

// Side devuelve el side del follower para un trade del leader.
func (r FollowRule) Side(leader Side) Side {
	if r.Mode != FollowCounter {
		return leader
	}
	if leader == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Intent genera el intent de la regla para t. ok=false si la regla no aplica.
func (r FollowRule) Intent(t LeaderTrade, category string, now time.Time) (CopyIntent, bool) {
	if !r.Follows(t.Wallet) || !r.Allows(category) {
		return CopyIntent{}, false
	}
	notional := r.TargetNotional()
	price := t.Price
	if !price.IsPositive() {
		price = decimal.NewFromInt(1)
	}
	return CopyIntent{
		LeaderTradeID:   t.ID,
		Wallet:          NormalizeWallet(t.Wallet),
		ConditionID:     t.ConditionID,
		Side:            r.Side(t.Side),
		DesiredSize:     notional.Div(price),
		DesiredNotional: notional,
		RuleLabel:       r.Label,
		Status:          IntentIntended,
		CreatedAt:       now,
	}, true
}

// CopyIntent es una orden que una regla habría enviado. Hay como mucho uno
// por (trade, regla).
type CopyIntent struct {
	ID              int64
	LeaderTradeID   int64
	Wallet          string
	ConditionID     string
	Side            Side
	DesiredSize     decimal.Decimal
	DesiredNotional decimal.Decimal
	RuleLabel       string
	Status          string
	CreatedAt       time.Time
}
