package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcast/internal/planner"
)

func bundleWith(fast, slow float64) planner.ContextBundle {
	return planner.ContextBundle{
		Symbols: []string{"BTC-USDT"},
		Indicators: map[string]map[string]float64{
			"BTC-USDT": {"ema_fast": fast, "ema_slow": slow},
		},
	}
}

func TestMomentumEntryAndExit(t *testing.T) {
	m := NewMomentum(MomentumOptions{Quantity: 2})
	ctx := context.Background()

	// 快线在上 -> 建仓一次
	instrs, err := m.Plan(ctx, bundleWith(101, 100))
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	assert.Equal(t, "buy", instrs[0].Action)
	assert.Equal(t, 2.0, instrs[0].Quantity)

	// 持仓期间不加仓
	instrs, err = m.Plan(ctx, bundleWith(102, 100))
	require.NoError(t, err)
	assert.Empty(t, instrs)

	// 下穿 -> 平仓
	instrs, err = m.Plan(ctx, bundleWith(99, 100))
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	assert.Equal(t, "close", instrs[0].Action)

	// 空仓时下穿不动作
	instrs, err = m.Plan(ctx, bundleWith(98, 100))
	require.NoError(t, err)
	assert.Empty(t, instrs)
}

func TestMomentumMissingIndicators(t *testing.T) {
	m := NewMomentum(MomentumOptions{})
	instrs, err := m.Plan(context.Background(), planner.ContextBundle{
		Symbols:    []string{"BTC-USDT"},
		Indicators: map[string]map[string]float64{"BTC-USDT": {"close": 100}},
	})
	require.NoError(t, err)
	assert.Empty(t, instrs)
}
