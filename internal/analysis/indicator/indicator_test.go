package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcast/internal/market"
)

func bars(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{TS: int64(i) * 60_000, Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func rampBars(n int) []market.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	return bars(closes...)
}

func TestComputeFullWindow(t *testing.T) {
	out := Compute(rampBars(60), Config{})
	require.NotEmpty(t, out)

	assert.InDelta(t, 100+59*0.5, out["close"], 1e-9)
	assert.Contains(t, out, "ema_fast")
	assert.Contains(t, out, "ema_slow")
	assert.Contains(t, out, "rsi")
	assert.Contains(t, out, "macd_dif")

	// 单边上涨时 RSI 应贴近上界，快线高于慢线
	assert.Greater(t, out["rsi"], 70.0)
	assert.Greater(t, out["ema_fast"], out["ema_slow"])
	for k, v := range out {
		assert.False(t, math.IsNaN(v), k)
	}
}

func TestComputeShortWindow(t *testing.T) {
	out := Compute(rampBars(10), Config{})
	assert.Contains(t, out, "close")
	assert.NotContains(t, out, "ema_slow", "数据不足时该指标缺省")
	assert.NotContains(t, out, "macd_dif")
}

func TestComputeEmpty(t *testing.T) {
	assert.Empty(t, Compute(nil, Config{}))
}

func TestComputeAll(t *testing.T) {
	windows := map[string][]market.Candle{
		"BTC-USDT": rampBars(60),
		"ETH-USDT": nil,
	}
	out := ComputeAll(windows, Config{})
	require.Len(t, out, 2)
	assert.Contains(t, out["BTC-USDT"], "rsi")
	assert.Empty(t, out["ETH-USDT"])
}
