package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"backcast/internal/config"
	"backcast/internal/execution"
	"backcast/internal/gateway/binance"
	"backcast/internal/gateway/yahoo"
	"backcast/internal/logger"
	"backcast/internal/market"
	symbolpkg "backcast/internal/pkg/symbol"
	"backcast/internal/planner"
	"backcast/internal/replay"
	"backcast/internal/report"
	"backcast/internal/runtime"
	candlestore "backcast/internal/store/candle"
	resultstore "backcast/internal/store/results"
	"backcast/internal/strategy"
	transport "backcast/internal/transport/http"
)

// activeRun 进行中的回放与其数据源（报表需要读缓存）。
type activeRun struct {
	rt     *runtime.Runtime
	source replay.Source
	req    transport.LaunchRequest
}

// App 按配置装配全部组件，并实现 HTTP 层的 RunLauncher。
type App struct {
	cfg      *config.Config
	candles  *candlestore.Store
	results  *resultstore.Store
	registry *planner.Registry

	mu     sync.RWMutex
	active map[string]*activeRun
}

func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config 不能为空")
	}
	candles, err := candlestore.NewStore(cfg.App.DataDir)
	if err != nil {
		return nil, err
	}
	results, err := resultstore.NewStore(cfg.App.ResultsPath)
	if err != nil {
		_ = candles.Close()
		return nil, err
	}
	app := &App{
		cfg:     cfg,
		candles: candles,
		results: results,
		active:  make(map[string]*activeRun),
	}
	if path := strings.TrimSpace(cfg.Profiles.Path); path != "" {
		registry, err := planner.NewRegistry(path)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.registry = registry
	}
	return app, nil
}

func (a *App) Close() error {
	var firstErr error
	if a.candles != nil {
		if err := a.candles.Close(); err != nil {
			firstErr = err
		}
	}
	if a.results != nil {
		if err := a.results.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CandleStore 暴露落库查询端，供 HTTP 层使用。
func (a *App) CandleStore() *candlestore.Store { return a.candles }

// ResultStore 暴露结果查询端。
func (a *App) ResultStore() *resultstore.Store { return a.results }

// Launch 装配并异步启动一次回放，立即返回 pending 状态的任务。
func (a *App) Launch(_ context.Context, req transport.LaunchRequest) (runtime.Run, error) {
	rt, source, err := a.buildRuntime(req)
	if err != nil {
		return runtime.Run{}, err
	}
	run := rt.Snapshot()

	a.mu.Lock()
	a.active[run.ID] = &activeRun{rt: rt, source: source, req: req}
	a.mu.Unlock()

	if err := a.results.SaveRun(context.Background(), run); err != nil {
		logger.Warnf("[app] 保存任务记录失败 run=%s: %v", run.ID, err)
	}

	go a.execute(run.ID, rt)
	return run, nil
}

// Progress 返回进行中任务的实时状态。
func (a *App) Progress(id string) (runtime.Run, bool) {
	a.mu.RLock()
	entry, ok := a.active[id]
	a.mu.RUnlock()
	if !ok {
		return runtime.Run{}, false
	}
	return entry.rt.Snapshot(), true
}

// RunOnce 按配置文件同步跑一次回放（CLI 模式）。
func (a *App) RunOnce(ctx context.Context) (runtime.Run, error) {
	req := transport.LaunchRequest{
		Profile:     a.cfg.Replay.Profile,
		Market:      a.cfg.Replay.Market,
		Symbols:     a.cfg.Replay.Symbols,
		Interval:    a.cfg.Replay.Interval,
		Lookback:    a.cfg.Replay.Lookback,
		StartTS:     a.cfg.Replay.StartTS,
		EndTS:       a.cfg.Replay.EndTS,
		CycleMS:     a.cfg.Replay.CycleMS,
		SlippageBps: a.cfg.Execution.SlippageBps,
		FeeBps:      a.cfg.Execution.FeeBps,
		PerUnitFee:  a.cfg.Execution.PerUnitFee,
	}
	rt, source, err := a.buildRuntime(req)
	if err != nil {
		return runtime.Run{}, err
	}
	run := rt.Snapshot()
	a.mu.Lock()
	a.active[run.ID] = &activeRun{rt: rt, source: source, req: req}
	a.mu.Unlock()
	defer a.release(run.ID)

	done, err := rt.Run(ctx)
	a.persist(done, rt)
	return done, err
}

// Serve 启动 HTTP 服务。
func (a *App) Serve(ctx context.Context) error {
	srv, err := transport.NewServer(transport.Config{
		Addr:     a.cfg.App.HTTPAddr,
		Launcher: a,
		Store:    a.results,
		Candles:  a.candles,
	})
	if err != nil {
		return err
	}
	logger.Infof("[app] HTTP 服务启动于 %s", a.cfg.App.HTTPAddr)
	return srv.Start(ctx)
}

func (a *App) execute(id string, rt *runtime.Runtime) {
	defer a.release(id)
	done, err := rt.Run(context.Background())
	if err != nil {
		logger.Errorf("[app] 回放失败 run=%s: %v", id, err)
	}
	a.persist(done, rt)
}

func (a *App) release(id string) {
	a.mu.Lock()
	delete(a.active, id)
	a.mu.Unlock()
}

func (a *App) persist(run runtime.Run, rt *runtime.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.results.SaveRun(ctx, run); err != nil {
		logger.Warnf("[app] 保存任务结果失败 run=%s: %v", run.ID, err)
	}
	if err := a.results.SaveFills(ctx, rt.Fills()); err != nil {
		logger.Warnf("[app] 保存成交记录失败 run=%s: %v", run.ID, err)
	}
	a.writeReports(run, rt)
}

// writeReports 为每个 symbol 输出 HTML 报表到数据目录。
func (a *App) writeReports(run runtime.Run, rt *runtime.Runtime) {
	a.mu.RLock()
	entry := a.active[run.ID]
	a.mu.RUnlock()
	if entry == nil {
		return
	}
	cache := sourceCache(entry.source)
	if cache == nil {
		return
	}
	for _, sym := range run.Config.Symbols {
		series := cache.Series(cacheKey(run.Config.Market, sym), run.Config.Interval)
		if len(series) == 0 {
			continue
		}
		fills := filterFills(rt.Fills(), sym)
		path := filepath.Join(a.cfg.App.DataDir, fmt.Sprintf("report-%s-%s.html", run.ID, sanitizeName(sym)))
		if err := report.WriteHTML(report.Input{
			Run: run, Symbol: sym, Interval: run.Config.Interval, Candles: series, Fills: fills,
		}, path); err != nil {
			logger.Warnf("[app] 报表生成失败 run=%s symbol=%s: %v", run.ID, sym, err)
			continue
		}
		logger.Infof("[app] 报表已生成 %s", path)
	}
}

func (a *App) buildRuntime(req transport.LaunchRequest) (*runtime.Runtime, replay.Source, error) {
	if a.registry != nil && req.Profile != "" {
		profile, ok := a.registry.Profile(req.Profile)
		if !ok {
			return nil, nil, fmt.Errorf("未知策略档案 %q", req.Profile)
		}
		if req.Interval == "" {
			req.Interval = profile.Interval
		}
		if req.Lookback <= 0 {
			req.Lookback = profile.Lookback
		}
		if err := a.registry.ValidateParams(req.Profile, profile.Params); err != nil {
			return nil, nil, err
		}
	}

	source, venue, err := a.buildSource(req)
	if err != nil {
		return nil, nil, err
	}

	execCfg := execution.Config{
		SlippageBps: req.SlippageBps,
		FeeBps:      req.FeeBps,
		PerUnitFee:  req.PerUnitFee,
	}
	if execCfg == (execution.Config{}) {
		execCfg = execution.Config{
			SlippageBps: a.cfg.Execution.SlippageBps,
			FeeBps:      a.cfg.Execution.FeeBps,
			PerUnitFee:  a.cfg.Execution.PerUnitFee,
		}
	}

	fallback := func(sym string) (market.PriceRecord, bool) {
		rec, ok := source.MarketSnapshot([]string{sym})[sym]
		return rec, ok
	}
	nowTS := source.CurrentTS

	var gw execution.Gateway
	if isEquity(req.Market) {
		calendar, err := execution.NewCalendar(func() time.Time { return time.UnixMilli(source.CurrentTS()) })
		if err != nil {
			return nil, nil, err
		}
		gw = execution.NewStockPaperGateway(execCfg, calendar, nil, fallback, nowTS)
	} else {
		gw = execution.NewPaperGateway(execCfg, nil, fallback, nowTS)
	}

	pl := strategy.NewMomentum(strategy.MomentumOptions{Venue: venue})
	rt, err := runtime.New(runtime.Options{
		Mode:      runtime.ModeBacktest,
		Profile:   req.Profile,
		Market:    req.Market,
		Symbols:   req.Symbols,
		Interval:  req.Interval,
		Lookback:  req.Lookback,
		CycleMS:   req.CycleMS,
		Execution: execCfg,
		Notes:     req.Notes,
	}, source, pl, gw, nil)
	if err != nil {
		return nil, nil, err
	}
	return rt, source, nil
}

func (a *App) buildSource(req transport.LaunchRequest) (replay.Source, string, error) {
	if isEquity(req.Market) {
		provider := yahoo.New(a.cfg.Data.YahooBaseURL)
		src, err := replay.NewEquitySource(replay.EquityConfig{
			Venue:   "yahoo",
			Symbols: req.Symbols,
			StartTS: req.StartTS,
			EndTS:   req.EndTS,
		}, provider, a.candles)
		return src, "yahoo", err
	}

	venue := a.cfg.Data.Venue
	if venue == "" {
		venue = "binance"
	}
	factory := func() (replay.OHLCVProvider, error) {
		return binance.New(binance.Config{
			RESTBaseURL:  a.cfg.Data.RESTBaseURL,
			HTTPTimeout:  time.Duration(a.cfg.Data.HTTPTimeoutSeconds) * time.Second,
			ProxyEnabled: a.cfg.Data.ProxyEnabled,
			RESTProxyURL: a.cfg.Data.RESTProxyURL,
		})
	}
	src, err := replay.NewCryptoSource(replay.CryptoConfig{
		Venue:     venue,
		Symbols:   req.Symbols,
		StartTS:   req.StartTS,
		EndTS:     req.EndTS,
		PageLimit: a.cfg.Data.PageLimit,
		PageDelay: time.Duration(a.cfg.Data.PageDelayMS) * time.Millisecond,
		MaxPages:  a.cfg.Data.MaxPages,
	}, factory, a.candles)
	return src, venue, err
}

func isEquity(marketKind string) bool {
	return strings.EqualFold(strings.TrimSpace(marketKind), "equity")
}

func sourceCache(src replay.Source) *replay.Cache {
	type cacher interface{ Cache() *replay.Cache }
	if c, ok := src.(cacher); ok {
		return c.Cache()
	}
	return nil
}

func cacheKey(marketKind, sym string) string {
	if isEquity(marketKind) {
		return symbolpkg.NormalizeEquity(sym)
	}
	return symbolpkg.NormalizePerp(sym)
}

func filterFills(fills []runtime.Fill, sym string) []runtime.Fill {
	out := make([]runtime.Fill, 0, len(fills))
	for _, f := range fills {
		if f.Result.Instrument.Symbol == sym {
			out = append(out, f)
		}
	}
	return out
}

func sanitizeName(sym string) string {
	r := strings.NewReplacer("/", "-", ":", "-")
	return strings.ToUpper(r.Replace(sym))
}
