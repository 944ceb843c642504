package polymarket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rtdsTradeJSON = `{
	"proxyWallet": "0xLeader",
	"side": "BUY",
	"assetId": "999",
	"conditionId": "0xcond",
	"size": 12.5,
	"price": 0.33,
	"timestamp": 1772370000,
	"question": "Will X?",
	"outcome": "No",
	"transactionHash": "0xhash"
}`

func TestParseRTDSMessage_Envelopes(t *testing.T) {
	for name, msg := range map[string]string{
		"payload": `{"topic":"activity","type":"trades","payload":` + rtdsTradeJSON + `}`,
		"data":    `{"data":` + rtdsTradeJSON + `}`,
		"flat":    rtdsTradeJSON,
	} {
		t.Run(name, func(t *testing.T) {
			trade, err := parseRTDSMessage([]byte(msg))
			require.NoError(t, err)
			assert.Equal(t, "0xleader", trade.Wallet)
			assert.Equal(t, "999", trade.Asset)
			assert.Equal(t, "No", trade.Outcome)
			assert.Equal(t, "Will X?", trade.MarketTitle)
			assert.Equal(t, domain.SideBuy, trade.Side)
			assert.True(t, trade.Timestamp.Equal(time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)))
		})
	}
}

func TestParseRTDSMessage_NotTrades(t *testing.T) {
	for _, msg := range []string{"PONG", "", `{"topic":"comments","type":"created","payload":{}}`} {
		_, err := parseRTDSMessage([]byte(msg))
		assert.True(t, errors.Is(err, errNotTrade), msg)
	}

	_, err := parseRTDSMessage([]byte(`{"topic":"activity","type":"trades","payload":{"side":"BUY"}}`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, errNotTrade))
}

func TestRTDSFeed_DecodeFiltersWallets(t *testing.T) {
	f := NewRTDSFeed("", []string{"0xLEADER"})
	_, ok := f.decode([]byte(rtdsTradeJSON))
	assert.True(t, ok)

	other := NewRTDSFeed("", []string{"0xsomeoneelse"})
	_, ok = other.decode([]byte(rtdsTradeJSON))
	assert.False(t, ok)
}

func TestParseTradeTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	assert.True(t, parseTradeTimestamp(json.Number("1772370000")).Equal(want))
	assert.True(t, parseTradeTimestamp(json.Number("1772370000000")).Equal(want))
	assert.True(t, parseTradeTimestamp(json.Number("1772370000.5")).Equal(want.Add(500*time.Millisecond)))
	assert.True(t, parseTradeTimestamp(json.Number("2026-03-01T13:00:00Z")).Equal(want))
	assert.True(t, parseTradeTimestamp(json.Number("")).IsZero())
}

func TestMapDataTrade_Rejects(t *testing.T) {
	_, err := mapDataTrade(rawDataTrade{Size: "1", Price: "x", Timestamp: "1772370000"})
	assert.Error(t, err)

	_, err = mapDataTrade(rawDataTrade{Size: "1", Price: "0.5", Timestamp: "nope"})
	assert.Error(t, err)
}

func TestBackoff_DelayCapped(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 5 * time.Second}
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 5*time.Second, b.Delay(10))
	assert.Equal(t, time.Duration(0), Backoff{}.Delay(3))
}
