package main

import (
	"testing"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkKey(t *testing.T) {
	key, err := parseMarkKey(" 0xcond : Yes ")
	require.NoError(t, err)
	assert.Equal(t, domain.MarkKey{ConditionID: "0xcond", Outcome: "Yes"}, key)

	for _, bad := range []string{"", "0xcond", ":Yes", "0xcond:"} {
		_, err := parseMarkKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestRootCmd_RegistersTrackerAndSimulate(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"tracker", "simulate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
