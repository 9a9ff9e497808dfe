package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"backcast/internal/analysis/indicator"
	"backcast/internal/execution"
	"backcast/internal/logger"
	"backcast/internal/market"
	"backcast/internal/planner"
	"backcast/internal/replay"
)

// Mode 运行模式：回放用模拟时钟，实盘用墙钟。
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// FillApplier 成交结果的下游（组合账本、落库等），由装配方注入。
type FillApplier func(res execution.TxResult)

// Options 周期驱动器参数。
type Options struct {
	Mode      Mode
	Profile   string
	Market    string
	Symbols   []string
	Interval  string
	Lookback  int
	CycleMS   int64
	Execution execution.Config
	Notes     string
	Indicator indicator.Config

	// WallNow 实盘模式的时钟注入，缺省为 time.Now。
	WallNow func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Mode == "" {
		o.Mode = ModeBacktest
	}
	if o.Interval == "" {
		o.Interval = "1m"
	}
	if o.Lookback <= 0 {
		o.Lookback = 50
	}
	if o.CycleMS <= 0 {
		o.CycleMS = 60_000
	}
	if o.WallNow == nil {
		o.WallNow = time.Now
	}
}

// Runtime 驱动 预载 -> 循环(取数 -> 决策 -> 执行 -> 推进) 的整个回放流程。
type Runtime struct {
	opts    Options
	source  replay.Source
	planner planner.Planner
	gateway execution.Gateway
	applier FillApplier

	mu    sync.RWMutex
	run   Run
	fills []Fill
}

func New(opts Options, source replay.Source, pl planner.Planner, gw execution.Gateway, applier FillApplier) (*Runtime, error) {
	if source == nil {
		return nil, errors.New("source 不能为空")
	}
	if pl == nil {
		return nil, errors.New("planner 不能为空")
	}
	if gw == nil {
		return nil, errors.New("gateway 不能为空")
	}
	if len(opts.Symbols) == 0 {
		return nil, errors.New("symbols 不能为空")
	}
	opts.applyDefaults()
	now := time.Now()
	startTS, endTS := source.StartTS(), source.EndTS()
	return &Runtime{
		opts:    opts,
		source:  source,
		planner: pl,
		gateway: gw,
		applier: applier,
		run: Run{
			ID:      uuid.NewString(),
			Profile: opts.Profile,
			Status:  RunStatusPending,
			StartTS: startTS,
			EndTS:   endTS,
			Config: RunConfig{
				Profile:     opts.Profile,
				Market:      opts.Market,
				Symbols:     opts.Symbols,
				Interval:    opts.Interval,
				Lookback:    opts.Lookback,
				StartTS:     startTS,
				EndTS:       endTS,
				CycleMS:     opts.CycleMS,
				SlippageBps: opts.Execution.SlippageBps,
				FeeBps:      opts.Execution.FeeBps,
				PerUnitFee:  opts.Execution.PerUnitFee,
				Notes:       opts.Notes,
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}, nil
}

// CurrentTimestamp 回放模式返回模拟时钟，实盘模式返回墙钟毫秒。
func (r *Runtime) CurrentTimestamp() int64 {
	if r.opts.Mode == ModeBacktest {
		return r.source.CurrentTS()
	}
	return r.opts.WallNow().UnixMilli()
}

// Snapshot 返回任务状态副本，供 HTTP 查询。
func (r *Runtime) Snapshot() Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run := r.run
	run.ProgressPct = r.source.ProgressPct()
	return run
}

// Fills 返回已执行结果副本。
func (r *Runtime) Fills() []Fill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Fill, len(r.fills))
	copy(out, r.fills)
	return out
}

// RunCycle 执行一个决策周期：取数 -> 决策 -> 执行。决策失败记入统计并跳过本周期。
func (r *Runtime) RunCycle(ctx context.Context) error {
	ts := r.CurrentTimestamp()
	windows := r.source.WindowCandles(r.opts.Symbols, r.opts.Interval, r.opts.Lookback)
	bundle := planner.ContextBundle{
		TS:         ts,
		Symbols:    r.opts.Symbols,
		Windows:    windows,
		Snapshot:   r.source.MarketSnapshot(r.opts.Symbols),
		Indicators: indicator.ComputeAll(windows, r.opts.Indicator),
		Summaries:  summarizeWindows(windows, r.opts.Interval),
	}

	instrs, err := r.planner.Plan(ctx, bundle)

	r.mu.Lock()
	r.run.Stats.Cycles++
	r.mu.Unlock()

	if err != nil {
		r.mu.Lock()
		r.run.Stats.PlanErrors++
		r.mu.Unlock()
		logger.Warnf("[runtime] 决策失败 ts=%d: %v", ts, err)
		return err
	}

	for _, res := range execution.ExecuteAll(ctx, r.gateway, instrs) {
		r.mu.Lock()
		r.run.Stats.observe(res)
		r.fills = append(r.fills, Fill{ID: int64(len(r.fills) + 1), RunID: r.run.ID, Result: res})
		r.mu.Unlock()
		if r.applier != nil {
			r.applier(res)
		}
	}
	return nil
}

// Run 跑完整个回放：预载后循环推进至终点。单周期决策失败不中断整体。
func (r *Runtime) Run(ctx context.Context) (Run, error) {
	r.setStatus(RunStatusRunning, "")

	if err := r.source.Preload(ctx, []string{r.opts.Interval}); err != nil {
		r.setStatus(RunStatusFailed, err.Error())
		return r.Snapshot(), err
	}

	lastLogged := -10.0
	for !r.source.IsFinished() {
		if err := ctx.Err(); err != nil {
			r.setStatus(RunStatusFailed, err.Error())
			return r.Snapshot(), err
		}
		_ = r.RunCycle(ctx)
		r.source.Advance(r.opts.CycleMS)

		if pct := r.source.ProgressPct(); pct-lastLogged >= 10 {
			logger.Infof("[runtime] run=%s 进度 %.1f%%", r.run.ID, pct)
			lastLogged = pct
		}
	}

	r.mu.Lock()
	r.run.Status = RunStatusDone
	r.run.Stats.FinishedAt = time.Now()
	r.run.CompletedAt = r.run.Stats.FinishedAt
	r.run.UpdatedAt = r.run.Stats.FinishedAt
	done := r.run
	r.mu.Unlock()
	logger.Infof("[runtime] run=%s 完成 cycles=%d fills=%d rejections=%d",
		done.ID, done.Stats.Cycles, done.Stats.Fills, done.Stats.Rejections)
	done.ProgressPct = r.source.ProgressPct()
	return done, nil
}

// summarizeWindows 生成各 symbol 的窗口文字概要；空窗口不出现在映射中。
func summarizeWindows(windows map[string][]market.Candle, interval string) map[string]string {
	out := make(map[string]string, len(windows))
	for sym, candles := range windows {
		if text := market.Candles(candles).Describe(interval); text != "" {
			out[sym] = text
		}
	}
	return out
}

func (r *Runtime) setStatus(status, msg string) {
	r.mu.Lock()
	r.run.Status = status
	r.run.Message = msg
	r.run.UpdatedAt = time.Now()
	r.mu.Unlock()
}
