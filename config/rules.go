package config

import (
	"fmt"
	"os"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ruleEntry es una regla tal como aparece en follow-rules.json. JSON es YAML
// válido, así que el mismo decoder sirve para los dos formatos.
type ruleEntry struct {
	Label             string   `yaml:"label"`
	Wallets           []string `yaml:"wallets"`
	Mode              string   `yaml:"mode"`
	SizeMode          string   `yaml:"sizeMode"`
	FixedUSDC         float64  `yaml:"fixedUsdc"`
	MaxUSDCPerTrade   float64  `yaml:"maxUsdcPerTrade"`
	AllowedCategories []string `yaml:"allowedCategories"`
}

// LoadFollowRules lee y valida la lista de reglas de simulación.
func LoadFollowRules(path string) ([]domain.FollowRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadFollowRules: read %q: %w", path, err)
	}

	var entries []ruleEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("config.LoadFollowRules: parse %q: %w", path, err)
	}

	rules := make([]domain.FollowRule, 0, len(entries))
	for _, e := range entries {
		wallets := make([]string, 0, len(e.Wallets))
		for _, w := range e.Wallets {
			if w = domain.NormalizeWallet(w); w != "" {
				wallets = append(wallets, w)
			}
		}
		r := domain.FollowRule{
			Label:             e.Label,
			Wallets:           wallets,
			Mode:              domain.FollowMode(e.Mode),
			SizeMode:          e.SizeMode,
			FixedUSDC:         decimal.NewFromFloat(e.FixedUSDC),
			MaxUSDCPerTrade:   decimal.NewFromFloat(e.MaxUSDCPerTrade),
			AllowedCategories: e.AllowedCategories,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("config.LoadFollowRules: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
