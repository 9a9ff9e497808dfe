package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcast/internal/execution"
	"backcast/internal/market"
	"backcast/internal/runtime"
)

func sampleInput() Input {
	candles := []market.Candle{
		{TS: 60_000, Open: 100, High: 102, Low: 99, Close: 101, Volume: 5},
		{TS: 120_000, Open: 101, High: 103, Low: 100, Close: 102, Volume: 6},
		{TS: 180_000, Open: 102, High: 104, Low: 101, Close: 103, Volume: 7},
	}
	fills := []runtime.Fill{
		{RunID: "run-1", Result: execution.TxResult{
			Side: execution.SideBuy, FillPrice: 101.1, Status: execution.StatusFilled, TS: 130_000,
		}},
		{RunID: "run-1", Result: execution.TxResult{
			Side: execution.SideSell, Status: execution.StatusRejected, Reason: execution.ReasonNoPriceData, TS: 150_000,
		}},
	}
	return Input{
		Run:      runtime.Run{ID: "run-1", Stats: runtime.RunStats{Fills: 1}},
		Symbol:   "BTC-USDT",
		Interval: "1m",
		Candles:  candles,
		Fills:    fills,
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleInput())
	require.NoError(t, err)
	assert.Contains(t, string(html), "BTC-USDT")
	assert.Contains(t, string(html), "run-1")
}

func TestRenderHTMLNoCandles(t *testing.T) {
	_, err := RenderHTML(Input{Symbol: "BTC-USDT"})
	assert.Error(t, err)
}

func TestBuildFillSeriesAlignment(t *testing.T) {
	in := sampleInput()
	buys, sells := buildFillSeries(in.Candles, in.Fills)
	require.Len(t, buys, 3)

	// 成交 ts=130_000 落在第二根（ts=120_000）上；拒单不画点
	assert.Equal(t, 101.1, buys[1].Value)
	assert.Nil(t, buys[0].Value)
	for _, p := range sells {
		assert.Nil(t, p.Value)
	}
}

func TestEquitySeries(t *testing.T) {
	in := sampleInput()
	fills := []runtime.Fill{
		{Result: execution.TxResult{ // 第二根买入 1 @ 101，费 0.1
			Side: execution.SideBuy, Status: execution.StatusFilled,
			RequestedQty: 1, FilledQty: 1, Notional: 101, Fee: 0.1, TS: 125_000,
		}},
		{Result: execution.TxResult{ // 第三根卖出 1 @ 103.5
			Side: execution.SideSell, Status: execution.StatusFilled,
			RequestedQty: 1, FilledQty: 1, Notional: 103.5, Fee: 0, TS: 185_000,
		}},
	}
	series := equitySeries(in.Candles, fills)
	require.Len(t, series, 3)

	assert.Equal(t, 0.0, series[0].Value)
	// 现金 -101.1，持仓 1 × 收盘 102
	assert.Equal(t, 0.9, series[1].Value)
	// 平仓后纯现金：-101.1 + 103.5
	assert.Equal(t, 2.4, series[2].Value)
}

func TestBuildFillSeriesBeforeFirstCandle(t *testing.T) {
	in := sampleInput()
	fills := []runtime.Fill{{Result: execution.TxResult{
		Side: execution.SideBuy, FillPrice: 99, Status: execution.StatusFilled, TS: 10,
	}}}
	buys, _ := buildFillSeries(in.Candles, fills)
	for _, p := range buys {
		assert.Nil(t, p.Value)
	}
}
