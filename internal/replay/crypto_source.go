package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"backcast/internal/logger"
	"backcast/internal/market"
	"backcast/internal/pkg/symbol"
)

const (
	defaultPageLimit = 1000
	defaultPageDelay = 100 * time.Millisecond
	// 单个 symbol 的分页上限，防止区间配置过大时无限拉取。
	defaultMaxPages = 2000
)

// CryptoConfig 加密数据源配置。StartTS/EndTS 为毫秒时间戳。
type CryptoConfig struct {
	Venue     string
	Symbols   []string
	StartTS   int64
	EndTS     int64
	PageLimit int
	PageDelay time.Duration
	MaxPages  int
}

func (c *CryptoConfig) applyDefaults() {
	if c.PageLimit <= 0 {
		c.PageLimit = defaultPageLimit
	}
	if c.PageDelay <= 0 {
		c.PageDelay = defaultPageDelay
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.Venue == "" {
		c.Venue = "binance"
	}
}

// CryptoSource 分钟级加密 K 线回放源：逐 symbol 并发分页预载，之后全程内存读取。
type CryptoSource struct {
	cfg     CryptoConfig
	factory OHLCVProviderFactory
	clock   *Clock
	cache   *Cache
	writer  CandleWriter

	mu        sync.Mutex
	preloaded bool
}

func NewCryptoSource(cfg CryptoConfig, factory OHLCVProviderFactory, writer CandleWriter) (*CryptoSource, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("symbols 不能为空")
	}
	if factory == nil {
		return nil, errors.New("provider factory 不能为空")
	}
	if cfg.StartTS >= cfg.EndTS {
		return nil, errors.New("回测起点必须早于终点")
	}
	cfg.applyDefaults()
	return &CryptoSource{
		cfg:     cfg,
		factory: factory,
		clock:   NewClock(cfg.StartTS, cfg.EndTS),
		cache:   NewCache(),
		writer:  writer,
	}, nil
}

func (s *CryptoSource) PrimaryInterval() string { return "1m" }

func (s *CryptoSource) Advance(deltaMS int64) { s.clock.Advance(deltaMS) }
func (s *CryptoSource) Reset()                { s.clock.Reset() }
func (s *CryptoSource) CurrentTS() int64      { return s.clock.CurrentTS() }
func (s *CryptoSource) StartTS() int64        { return s.clock.StartTS() }
func (s *CryptoSource) EndTS() int64          { return s.clock.EndTS() }
func (s *CryptoSource) IsFinished() bool      { return s.clock.IsFinished() }
func (s *CryptoSource) ProgressPct() float64  { return s.clock.ProgressPct() }

// Cache 暴露只读缓存，供 HTTP 查询与报表使用。
func (s *CryptoSource) Cache() *Cache { return s.cache }

// Preload 对每个 interval 并发拉取所有 symbol 的历史数据。重复调用为空操作。
func (s *CryptoSource) Preload(ctx context.Context, intervals []string) error {
	s.mu.Lock()
	if s.preloaded {
		s.mu.Unlock()
		logger.Debugf("[replay] 预载已完成，跳过重复调用")
		return nil
	}
	s.preloaded = true
	s.mu.Unlock()

	if len(intervals) == 0 {
		intervals = []string{s.PrimaryInterval()}
	}

	start := time.Now()
	for _, interval := range intervals {
		if err := s.preloadInterval(ctx, interval); err != nil {
			return err
		}
	}
	logger.Infof("[replay] 预载完成 symbols=%d intervals=%d candles=%d 耗时=%s",
		len(s.cfg.Symbols), len(intervals), s.cache.Total(), time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *CryptoSource) preloadInterval(ctx context.Context, interval string) error {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]market.Candles, len(s.cfg.Symbols))

	for i, sym := range s.cfg.Symbols {
		i, sym := i, sym
		g.Go(func() error {
			results[i] = s.fetchSymbol(gctx, sym, interval)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, sym := range s.cfg.Symbols {
		key := symbol.NormalizePerp(sym)
		s.cache.Put(key, interval, results[i])
		if s.writer != nil && len(results[i]) > 0 {
			if _, err := s.writer.InsertCandles(ctx, key, interval, results[i]); err != nil {
				logger.Warnf("[replay] K 线落库失败 symbol=%s interval=%s: %v", key, interval, err)
			}
		}
	}
	return nil
}

// fetchSymbol 从 StartTS 起逐页拉取到 EndTS。任何一页出错即放弃该 symbol，
// 返回空序列并告警，不影响其余 symbol。
func (s *CryptoSource) fetchSymbol(ctx context.Context, rawSymbol, interval string) market.Candles {
	key := symbol.NormalizePerp(rawSymbol)

	provider, err := s.factory()
	if err != nil {
		logger.Warnf("[replay] 创建数据客户端失败 symbol=%s: %v", key, err)
		return nil
	}
	defer func() {
		if cerr := provider.Close(); cerr != nil {
			logger.Debugf("[replay] 关闭数据客户端 symbol=%s: %v", key, cerr)
		}
	}()

	// 逐页限速，避免触发提供方频控。
	limiter := rate.NewLimiter(rate.Every(s.cfg.PageDelay), 1)

	var out market.Candles
	cursor := s.cfg.StartTS
	for page := 0; page < s.cfg.MaxPages; page++ {
		if page > 0 {
			if err := limiter.Wait(ctx); err != nil {
				logger.Warnf("[replay] 预载被取消 symbol=%s: %v", key, err)
				return nil
			}
		}

		batch, err := provider.FetchOHLCV(ctx, key, interval, cursor, s.cfg.PageLimit)
		if err != nil {
			logger.Warnf("[replay] 拉取历史 K 线失败 symbol=%s interval=%s since=%d: %v", key, interval, cursor, err)
			return nil
		}
		if len(batch) == 0 {
			break
		}

		lastTS := batch[len(batch)-1].TS
		for _, candle := range batch {
			if candle.TS > s.cfg.EndTS {
				break
			}
			candle.Instrument = market.InstrumentRef{Symbol: key, Venue: s.cfg.Venue}
			candle.Interval = interval
			out = append(out, candle)
		}
		if lastTS >= s.cfg.EndTS {
			break
		}
		cursor = lastTS + 1

		if page == s.cfg.MaxPages-1 {
			logger.Warnf("[replay] symbol=%s interval=%s 达到分页上限 %d，截断于 ts=%d", key, interval, s.cfg.MaxPages, lastTS)
		}
	}

	out.SortByTS()
	logger.Debugf("[replay] %s %s 预载 %d 根", key, interval, len(out))
	return out
}

// WindowCandles 返回每个 symbol 截止当前模拟时刻的最近 lookback 根 K 线。
func (s *CryptoSource) WindowCandles(symbols []string, interval string, lookback int) map[string][]market.Candle {
	asOf := s.clock.CurrentTS()
	out := make(map[string][]market.Candle, len(symbols))
	for _, sym := range symbols {
		out[sym] = s.cache.WindowAt(symbol.NormalizePerp(sym), interval, lookback, asOf)
	}
	return out
}

func (s *CryptoSource) MarketSnapshot(symbols []string) market.Snapshot {
	return snapshotFromCache(s.cache, symbols, s.PrimaryInterval(), s.clock.CurrentTS(), symbol.NormalizePerp)
}
