package planner

import (
	"context"

	"backcast/internal/execution"
	"backcast/internal/market"
)

// ContextBundle 每个决策周期喂给策略的市场上下文。
// Summaries 为各 symbol 窗口的文字概要，供外部模型类策略直接引用。
type ContextBundle struct {
	TS         int64                         `json:"ts"`
	Symbols    []string                      `json:"symbols"`
	Windows    map[string][]market.Candle    `json:"windows"`
	Snapshot   market.Snapshot               `json:"snapshot"`
	Indicators map[string]map[string]float64 `json:"indicators,omitempty"`
	Summaries  map[string]string             `json:"summaries,omitempty"`
}

// Planner 策略决策入口：根据上下文产出零或多笔交易指令。
type Planner interface {
	Plan(ctx context.Context, bundle ContextBundle) ([]execution.TradeInstruction, error)
}

// PlanFunc 函数式适配器。
type PlanFunc func(ctx context.Context, bundle ContextBundle) ([]execution.TradeInstruction, error)

func (f PlanFunc) Plan(ctx context.Context, bundle ContextBundle) ([]execution.TradeInstruction, error) {
	return f(ctx, bundle)
}

// GenerateFunc 产出原始 JSON 文本的策略端（外部模型或脚本）。
type GenerateFunc func(ctx context.Context, bundle ContextBundle) (string, error)

// JSONPlanner 包装 GenerateFunc：容错解析其 JSON 输出为指令列表。
type JSONPlanner struct {
	Generate GenerateFunc
}

func (p *JSONPlanner) Plan(ctx context.Context, bundle ContextBundle) ([]execution.TradeInstruction, error) {
	raw, err := p.Generate(ctx, bundle)
	if err != nil {
		return nil, err
	}
	return ParseInstructions(raw)
}
