package execution

import (
	"strings"

	"backcast/internal/market"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Status string

const (
	StatusFilled   Status = "FILLED"
	StatusRejected Status = "REJECTED"
)

// 拒单原因，写入 TxResult.Reason。
const (
	ReasonNoPriceData     = "no_price_data"
	ReasonMarketClosed    = "market_closed"
	ReasonInvalidQuantity = "invalid_quantity"
)

// TradeInstruction 策略产出的一笔交易指令。Side 为空时由 Action 推导；
// MaxSlippageBps > 0 时覆盖网关默认滑点。
type TradeInstruction struct {
	ID             string               `json:"id"`
	Instrument     market.InstrumentRef `json:"instrument"`
	Action         string               `json:"action"`
	Side           Side                 `json:"side,omitempty"`
	Quantity       float64              `json:"quantity"`
	MaxSlippageBps float64              `json:"max_slippage_bps,omitempty"`
	Leverage       int                  `json:"leverage,omitempty"`
	Meta           map[string]any       `json:"meta,omitempty"`
}

// TxResult 一笔指令的执行结果。全额成交时 FilledQty == RequestedQty；
// 拒单时 FilledQty 为 0，Reason 说明原因。SlippageBps 记录实际采用的滑点。
type TxResult struct {
	InstructionID string               `json:"instruction_id"`
	Instrument    market.InstrumentRef `json:"instrument"`
	Side          Side                 `json:"side"`
	RequestedQty  float64              `json:"requested_qty"`
	FilledQty     float64              `json:"filled_qty"`
	FillPrice     float64              `json:"fill_price"`
	SlippageBps   float64              `json:"slippage_bps"`
	Notional      float64              `json:"notional"`
	Fee           float64              `json:"fee"`
	Status        Status               `json:"status"`
	Reason        string               `json:"reason,omitempty"`
	Meta          map[string]any       `json:"meta,omitempty"`
	TS            int64                `json:"ts"`
}

func (r TxResult) Filled() bool { return r.Status == StatusFilled }

// ResolveSide 确定买卖方向：显式 Side 优先，其次由 Action 推导，默认买入。
func ResolveSide(instr TradeInstruction) Side {
	switch Side(strings.ToLower(strings.TrimSpace(string(instr.Side)))) {
	case SideBuy:
		return SideBuy
	case SideSell:
		return SideSell
	}
	switch strings.ToLower(strings.TrimSpace(instr.Action)) {
	case "sell", "close", "exit", "reduce", "decrease", "close_long", "open_short":
		return SideSell
	default:
		return SideBuy
	}
}
