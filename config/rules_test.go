package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "follow-rules.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFollowRules_JSON(t *testing.T) {
	path := writeRules(t, `[
  {"label": "copy-whale", "wallets": ["0xAAA "], "mode": "COPY", "sizeMode": "FIXED_USDC", "fixedUsdc": 25},
  {"label": "fade-sports", "wallets": ["0xbbb"], "mode": "COUNTER", "sizeMode": "FIXED_USDC",
   "fixedUsdc": 50, "maxUsdcPerTrade": 10, "allowedCategories": ["sports"]}
]`)

	rules, err := LoadFollowRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, []string{"0xaaa"}, rules[0].Wallets)
	assert.Equal(t, "25", rules[0].TargetNotional().String())
	assert.True(t, rules[0].MaxUSDCPerTrade.IsZero())

	assert.Equal(t, domain.FollowCounter, rules[1].Mode)
	assert.Equal(t, "10", rules[1].TargetNotional().String())
	assert.Equal(t, []string{"sports"}, rules[1].AllowedCategories)
}

func TestLoadFollowRules_Errors(t *testing.T) {
	_, err := LoadFollowRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFollowRules(writeRules(t, `{"label": "not a list"}`))
	assert.Error(t, err)

	_, err = LoadFollowRules(writeRules(t, `[{"label": "x", "wallets": ["0xa"], "mode": "COPY", "sizeMode": "PCT", "fixedUsdc": 5}]`))
	assert.Error(t, err)
}
