package strategy

import (
	"context"
	"sync"

	"backcast/internal/execution"
	"backcast/internal/market"
	"backcast/internal/planner"
)

// MomentumOptions 均线动量策略参数。
type MomentumOptions struct {
	Quantity float64 // 每次建仓数量
	Venue    string
}

// Momentum 内置基准策略：快线上穿慢线做多，下穿平仓。
// 每个 symbol 至多一份仓位，作为回放管线的默认决策端。
type Momentum struct {
	opts MomentumOptions

	mu   sync.Mutex
	long map[string]bool
}

func NewMomentum(opts MomentumOptions) *Momentum {
	if opts.Quantity <= 0 {
		opts.Quantity = 1
	}
	return &Momentum{opts: opts, long: make(map[string]bool)}
}

func (m *Momentum) Plan(_ context.Context, bundle planner.ContextBundle) ([]execution.TradeInstruction, error) {
	var out []execution.TradeInstruction
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sym := range bundle.Symbols {
		ind := bundle.Indicators[sym]
		fast, okFast := ind["ema_fast"]
		slow, okSlow := ind["ema_slow"]
		if !okFast || !okSlow {
			continue
		}
		holding := m.long[sym]
		switch {
		case fast > slow && !holding:
			m.long[sym] = true
			out = append(out, execution.TradeInstruction{
				Instrument: market.InstrumentRef{Symbol: sym, Venue: m.opts.Venue},
				Action:     "buy",
				Quantity:   m.opts.Quantity,
			})
		case fast < slow && holding:
			m.long[sym] = false
			out = append(out, execution.TradeInstruction{
				Instrument: market.InstrumentRef{Symbol: sym, Venue: m.opts.Venue},
				Action:     "close",
				Quantity:   m.opts.Quantity,
			})
		}
	}
	return out, nil
}
