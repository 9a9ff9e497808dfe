package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcast/internal/execution"
)

func TestCoerceInstructionArrayJSON(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"顶层数组", `[{"action":"buy"}]`, `[{"action":"buy"}]`, false},
		{"instructions 包装", `{"instructions":[{"action":"buy"}]}`, `[{"action":"buy"}]`, false},
		{"单对象包装", `{"action":"buy","symbol":"BTC-USDT"}`, `[{"action":"buy","symbol":"BTC-USDT"}]`, false},
		{"空输入", "", "", true},
		{"非法 json", "{", "", true},
		{"instructions 非数组", `{"instructions":{}}`, "", true},
		{"对象无 action", `{"foo":1}`, "", true},
	}
	for _, tc := range cases {
		got, err := CoerceInstructionArrayJSON(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		assert.JSONEq(t, tc.want, got, tc.name)
	}
}

func TestParseInstructions(t *testing.T) {
	raw := `[
		{"action":"buy","symbol":"BTC-USDT","venue":"binance","quantity":0.5,"leverage":3},
		{"action":"hold"},
		{"action":"WAIT"},
		{"action":"sell","symbol":"ETH-USDT","quantity":"2","side":"SELL","max_slippage_bps":50,"meta":{"note":"tp"}}
	]`
	instrs, err := ParseInstructions(raw)
	require.NoError(t, err)
	require.Len(t, instrs, 2, "hold/wait 节点应被跳过")

	assert.Equal(t, "buy", instrs[0].Action)
	assert.Equal(t, "BTC-USDT", instrs[0].Instrument.Symbol)
	assert.Equal(t, "binance", instrs[0].Instrument.Venue)
	assert.Equal(t, 0.5, instrs[0].Quantity)
	assert.Equal(t, 3, instrs[0].Leverage)

	assert.Equal(t, execution.SideSell, instrs[1].Side)
	assert.Equal(t, 2.0, instrs[1].Quantity, "字符串数量也应解析")
	assert.Equal(t, 50.0, instrs[1].MaxSlippageBps, "指令级滑点需透传到执行层")
	assert.Zero(t, instrs[0].MaxSlippageBps)
	assert.Equal(t, "tp", instrs[1].Meta["note"])
}

func TestParseInstructionsMissingSymbol(t *testing.T) {
	_, err := ParseInstructions(`[{"action":"buy","quantity":1}]`)
	assert.Error(t, err)
}

func TestJSONPlanner(t *testing.T) {
	p := &JSONPlanner{Generate: func(context.Context, ContextBundle) (string, error) {
		return `{"instructions":[{"action":"buy","symbol":"AAPL","quantity":10}]}`, nil
	}}
	instrs, err := p.Plan(context.Background(), ContextBundle{})
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	assert.Equal(t, "AAPL", instrs[0].Instrument.Symbol)
}
