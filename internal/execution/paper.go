package execution

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"backcast/internal/logger"
	"backcast/internal/market"
)

// Gateway 执行通道：接收指令，返回成交或拒单结果。
type Gateway interface {
	Execute(ctx context.Context, instr TradeInstruction) TxResult
}

// ExecuteAll 按输入顺序逐条执行，每条指令恰好对应一个结果；空输入返回空切片。
func ExecuteAll(ctx context.Context, gw Gateway, instrs []TradeInstruction) []TxResult {
	out := make([]TxResult, 0, len(instrs))
	for _, instr := range instrs {
		out = append(out, gw.Execute(ctx, instr))
	}
	return out
}

// QuoteFunc 返回某 symbol 的即时参考价；ok 为 false 表示当前无报价。
type QuoteFunc func(symbolKey string) (float64, bool)

// SnapshotFunc 报价缺失时的回退：最近一次已知价格记录。
type SnapshotFunc func(symbolKey string) (market.PriceRecord, bool)

// Config 模拟成交参数。费率与滑点均以基点（1e-4）计。
type Config struct {
	SlippageBps float64 `mapstructure:"slippage_bps" toml:"slippage_bps"`
	FeeBps      float64 `mapstructure:"fee_bps" toml:"fee_bps"`
	PerUnitFee  float64 `mapstructure:"per_unit_fee" toml:"per_unit_fee"`
}

// PaperGateway 加密货币纸面执行：全天候开市，按参考价加滑点全额成交。
type PaperGateway struct {
	cfg      Config
	quote    QuoteFunc
	fallback SnapshotFunc
	nowTS    func() int64

	mu  sync.Mutex
	log []TxResult
}

func NewPaperGateway(cfg Config, quote QuoteFunc, fallback SnapshotFunc, nowTS func() int64) *PaperGateway {
	return &PaperGateway{cfg: cfg, quote: quote, fallback: fallback, nowTS: nowTS}
}

func (g *PaperGateway) Execute(_ context.Context, instr TradeInstruction) TxResult {
	res := simulateFill(g.cfg, instr, g.quote, g.fallback, g.nowTS)
	g.mu.Lock()
	g.log = append(g.log, res)
	g.mu.Unlock()
	return res
}

// Executed 返回本网关生命周期内的执行流水副本。
func (g *PaperGateway) Executed() []TxResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]TxResult, len(g.log))
	copy(out, g.log)
	return out
}

// simulateFill 共用成交算法：定参考价 -> 加滑点 -> 计费 -> 全额成交。
func simulateFill(cfg Config, instr TradeInstruction, quote QuoteFunc, fallback SnapshotFunc, nowTS func() int64) TxResult {
	result := TxResult{
		InstructionID: instructionID(instr),
		Instrument:    instr.Instrument,
		Side:          ResolveSide(instr),
		RequestedQty:  instr.Quantity,
		Meta:          instr.Meta,
		TS:            nowTS(),
	}

	if instr.Quantity <= 0 {
		result.Status = StatusRejected
		result.Reason = ReasonInvalidQuantity
		return result
	}

	refPrice, ok := lookupPrice(instr.Instrument.Symbol, quote, fallback)
	if !ok || refPrice <= 0 {
		logger.Warnf("[execution] %s 无可用参考价，拒单", instr.Instrument.Symbol)
		result.Status = StatusRejected
		result.Reason = ReasonNoPriceData
		return result
	}

	slipBps := cfg.SlippageBps
	if instr.MaxSlippageBps > 0 {
		slipBps = instr.MaxSlippageBps
	}
	slip := slipBps / 10000.0
	fillPrice := refPrice
	if result.Side == SideBuy {
		fillPrice = refPrice * (1 + slip)
	} else {
		fillPrice = refPrice * (1 - slip)
	}

	notional := fillPrice * instr.Quantity
	fee := notional*(cfg.FeeBps/10000.0) + instr.Quantity*cfg.PerUnitFee

	result.FilledQty = instr.Quantity
	result.FillPrice = fillPrice
	result.SlippageBps = slipBps
	result.Notional = notional
	result.Fee = fee
	result.Status = StatusFilled
	logger.Debugf("[execution] %s %s qty=%v @ %v fee=%v", result.Side, instr.Instrument.Symbol, instr.Quantity, fillPrice, fee)
	return result
}

func lookupPrice(symbolKey string, quote QuoteFunc, fallback SnapshotFunc) (float64, bool) {
	if quote != nil {
		if p, ok := quote(symbolKey); ok && p > 0 {
			return p, true
		}
	}
	if fallback != nil {
		if rec, ok := fallback(symbolKey); ok && rec.Last > 0 {
			return rec.Last, true
		}
	}
	return 0, false
}

func instructionID(instr TradeInstruction) string {
	if instr.ID != "" {
		return instr.ID
	}
	return uuid.NewString()
}
