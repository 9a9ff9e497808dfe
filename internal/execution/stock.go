package execution

import (
	"context"
	"sync"

	"backcast/internal/logger"
)

// StockPaperGateway 股票纸面执行：在加密版之上增加交易时段闸门。
type StockPaperGateway struct {
	cfg      Config
	calendar *Calendar
	quote    QuoteFunc
	fallback SnapshotFunc
	nowTS    func() int64

	mu  sync.Mutex
	log []TxResult
}

func NewStockPaperGateway(cfg Config, calendar *Calendar, quote QuoteFunc, fallback SnapshotFunc, nowTS func() int64) *StockPaperGateway {
	return &StockPaperGateway{cfg: cfg, calendar: calendar, quote: quote, fallback: fallback, nowTS: nowTS}
}

func (g *StockPaperGateway) Execute(_ context.Context, instr TradeInstruction) TxResult {
	res := g.execute(instr)
	g.mu.Lock()
	g.log = append(g.log, res)
	g.mu.Unlock()
	return res
}

func (g *StockPaperGateway) execute(instr TradeInstruction) TxResult {
	if g.calendar != nil && !g.calendar.IsOpen() {
		logger.Debugf("[execution] %s 休市中，拒单", instr.Instrument.Symbol)
		return TxResult{
			InstructionID: instructionID(instr),
			Instrument:    instr.Instrument,
			Side:          ResolveSide(instr),
			RequestedQty:  instr.Quantity,
			Meta:          instr.Meta,
			Status:        StatusRejected,
			Reason:        ReasonMarketClosed,
			TS:            g.nowTS(),
		}
	}
	return simulateFill(g.cfg, instr, g.quote, g.fallback, g.nowTS)
}

// Executed 返回本网关生命周期内的执行流水副本。
func (g *StockPaperGateway) Executed() []TxResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]TxResult, len(g.log))
	copy(out, g.log)
	return out
}
