package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcast/internal/market"
)

func fixedNow() int64 { return 1700000000000 }

func quoteOf(price float64) QuoteFunc {
	return func(string) (float64, bool) { return price, true }
}

func noQuote(string) (float64, bool) { return 0, false }

func instr(action string, qty float64) TradeInstruction {
	return TradeInstruction{
		ID:         "ins-1",
		Instrument: market.InstrumentRef{Symbol: "BTC-USDT", Venue: "binance"},
		Action:     action,
		Quantity:   qty,
	}
}

func TestPaperGatewayBuyFill(t *testing.T) {
	cfg := Config{SlippageBps: 10, FeeBps: 5, PerUnitFee: 0.01}
	gw := NewPaperGateway(cfg, quoteOf(100.0), nil, fixedNow)

	res := gw.Execute(context.Background(), instr("buy", 2))
	require.Equal(t, StatusFilled, res.Status)
	assert.Equal(t, SideBuy, res.Side)
	assert.Equal(t, 2.0, res.RequestedQty)
	assert.Equal(t, 2.0, res.FilledQty, "纸面执行始终全额成交")
	assert.Equal(t, 10.0, res.SlippageBps)

	// 100 * (1 + 10/10000) = 100.1
	assert.InDelta(t, 100.1, res.FillPrice, 1e-9)
	assert.InDelta(t, 200.2, res.Notional, 1e-9)
	// 200.2 * 5/10000 + 2*0.01 = 0.1001 + 0.02
	assert.InDelta(t, 0.1201, res.Fee, 1e-9)
	assert.Equal(t, fixedNow(), res.TS)
	assert.Equal(t, "ins-1", res.InstructionID)
}

func TestPaperGatewaySellFill(t *testing.T) {
	cfg := Config{SlippageBps: 20}
	gw := NewPaperGateway(cfg, quoteOf(50.0), nil, fixedNow)

	res := gw.Execute(context.Background(), instr("sell", 1))
	require.Equal(t, StatusFilled, res.Status)
	assert.Equal(t, SideSell, res.Side)
	// 50 * (1 - 20/10000) = 49.9
	assert.InDelta(t, 49.9, res.FillPrice, 1e-9)
	assert.InDelta(t, 0.0, res.Fee, 1e-9)
}

func TestPaperGatewaySnapshotFallback(t *testing.T) {
	fallback := func(string) (market.PriceRecord, bool) {
		return market.PriceRecord{Symbol: "BTC-USDT", Last: 42.0}, true
	}
	gw := NewPaperGateway(Config{}, noQuote, fallback, fixedNow)

	res := gw.Execute(context.Background(), instr("buy", 1))
	require.Equal(t, StatusFilled, res.Status)
	assert.InDelta(t, 42.0, res.FillPrice, 1e-9)
}

func TestPaperGatewayNoPriceRejected(t *testing.T) {
	gw := NewPaperGateway(Config{}, noQuote, nil, fixedNow)

	res := gw.Execute(context.Background(), instr("buy", 1))
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, ReasonNoPriceData, res.Reason)
	assert.Zero(t, res.FillPrice)
	assert.Equal(t, 1.0, res.RequestedQty)
	assert.Zero(t, res.FilledQty, "拒单不产生成交量")
}

func TestPaperGatewayInvalidQuantity(t *testing.T) {
	gw := NewPaperGateway(Config{}, quoteOf(100), nil, fixedNow)

	for _, qty := range []float64{0, -1} {
		res := gw.Execute(context.Background(), instr("buy", qty))
		assert.Equal(t, StatusRejected, res.Status)
		assert.Equal(t, ReasonInvalidQuantity, res.Reason)
	}
}

func TestResolveSide(t *testing.T) {
	cases := []struct {
		side   Side
		action string
		want   Side
	}{
		{SideSell, "buy", SideSell},      // 显式 side 优先
		{"", "sell", SideSell},
		{"", "close", SideSell},
		{"", "reduce", SideSell},
		{"", "buy", SideBuy},
		{"", "open_long", SideBuy},
		{"", "", SideBuy},                // 默认买入
		{"SELL", "buy", SideSell},        // 大小写不敏感
	}
	for _, tc := range cases {
		got := ResolveSide(TradeInstruction{Side: tc.side, Action: tc.action})
		assert.Equal(t, tc.want, got, "side=%q action=%q", tc.side, tc.action)
	}
}

func TestStockGatewayMarketClosed(t *testing.T) {
	// 周六
	saturday := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	cal, err := NewCalendar(func() time.Time { return saturday })
	require.NoError(t, err)

	gw := NewStockPaperGateway(Config{}, cal, quoteOf(100), nil, fixedNow)
	res := gw.Execute(context.Background(), instr("buy", 1))
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, ReasonMarketClosed, res.Reason)
	assert.Equal(t, 1.0, res.RequestedQty)
	assert.Zero(t, res.FilledQty)
}

func TestStockGatewayOpenHoursFill(t *testing.T) {
	// 周三 14:00 UTC = 10:00 ET（夏令时），处于交易时段
	wednesday := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)
	cal, err := NewCalendar(func() time.Time { return wednesday })
	require.NoError(t, err)

	gw := NewStockPaperGateway(Config{SlippageBps: 10}, cal, quoteOf(200), nil, fixedNow)
	res := gw.Execute(context.Background(), instr("buy", 1))
	require.Equal(t, StatusFilled, res.Status)
	assert.InDelta(t, 200.2, res.FillPrice, 1e-9)
}

func TestPerInstructionSlippageOverride(t *testing.T) {
	gw := NewPaperGateway(Config{SlippageBps: 10}, quoteOf(100), nil, fixedNow)

	in := instr("buy", 1)
	in.MaxSlippageBps = 50
	res := gw.Execute(context.Background(), in)
	require.Equal(t, StatusFilled, res.Status)
	// 指令级滑点覆盖网关默认：100 * (1 + 50/10000)
	assert.InDelta(t, 100.5, res.FillPrice, 1e-9)
	assert.Equal(t, 50.0, res.SlippageBps)

	res = gw.Execute(context.Background(), instr("buy", 1))
	assert.InDelta(t, 100.1, res.FillPrice, 1e-9)
	assert.Equal(t, 10.0, res.SlippageBps)
}

func TestMetaCarriedIntoResult(t *testing.T) {
	gw := NewPaperGateway(Config{}, quoteOf(100), nil, fixedNow)

	in := instr("buy", 1)
	in.Meta = map[string]any{"note": "tp"}
	res := gw.Execute(context.Background(), in)
	require.Equal(t, StatusFilled, res.Status)
	assert.Equal(t, "tp", res.Meta["note"])

	in.Quantity = 0 // 拒单同样透传 meta
	res = gw.Execute(context.Background(), in)
	require.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "tp", res.Meta["note"])
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	gw := NewPaperGateway(Config{}, quoteOf(100), nil, fixedNow)

	assert.Empty(t, ExecuteAll(context.Background(), gw, nil))

	results := ExecuteAll(context.Background(), gw, []TradeInstruction{
		instr("buy", 1),
		instr("sell", 0), // 非法数量，拒单但占位
		instr("sell", 2),
	})
	require.Len(t, results, 3)
	assert.Equal(t, StatusFilled, results[0].Status)
	assert.Equal(t, StatusRejected, results[1].Status)
	assert.Equal(t, SideSell, results[2].Side)

	log := gw.Executed()
	require.Len(t, log, 3)
	assert.Equal(t, results[1].Reason, log[1].Reason)
}

func TestGeneratedInstructionID(t *testing.T) {
	gw := NewPaperGateway(Config{}, quoteOf(10), nil, fixedNow)
	in := instr("buy", 1)
	in.ID = ""
	res := gw.Execute(context.Background(), in)
	assert.NotEmpty(t, res.InstructionID)
}
