package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC/USDT", "BTC_USDT"},
		{"btc/usdt", "BTC_USDT"},
		{"BTC/USDT:USDT", "BTC_USDT_USDT"},
		{"ETH PERP", "ETH_PERP"},
		{"SOLUSDT", "SOLUSDT"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeSymbol(tt.in), "input %q", tt.in)
	}
}

func TestTimeframeMS(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1s", 1000},
		{"1m", 60_000},
		{"15m", 900_000},
		{"1h", 3_600_000},
		{"4h", 14_400_000},
		{"1d", 86_400_000},
		{"1w", 604_800_000},
	}
	for _, tt := range tests {
		got, err := TimeframeMS(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestTimeframeMSInvalid(t *testing.T) {
	for _, in := range []string{"", "m", "0m", "-5m", "1x", "abc"} {
		_, err := TimeframeMS(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestRowEpochMS(t *testing.T) {
	assert.Equal(t, int64(42), Candle{Ts: 42}.EpochMS())
	assert.Equal(t, int64(42), Tick{Ts: 42}.EpochMS())
	assert.Equal(t, int64(42), FundingRate{Timestamp: 42}.EpochMS())
}
