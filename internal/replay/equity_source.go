package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"backcast/internal/logger"
	"backcast/internal/market"
	"backcast/internal/pkg/symbol"
)

// EquityConfig 股票数据源配置。StartTS/EndTS 为毫秒时间戳，拉取时取整到自然日。
type EquityConfig struct {
	Venue   string
	Symbols []string
	StartTS int64
	EndTS   int64
}

// EquitySource 日线级股票回放源：每个 symbol 一次区间调用，无分页。
type EquitySource struct {
	cfg      EquityConfig
	provider DailyProvider
	clock    *Clock
	cache    *Cache
	writer   CandleWriter

	mu        sync.Mutex
	preloaded bool
}

func NewEquitySource(cfg EquityConfig, provider DailyProvider, writer CandleWriter) (*EquitySource, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("symbols 不能为空")
	}
	if provider == nil {
		return nil, errors.New("daily provider 不能为空")
	}
	if cfg.StartTS >= cfg.EndTS {
		return nil, errors.New("回测起点必须早于终点")
	}
	if cfg.Venue == "" {
		cfg.Venue = "yahoo"
	}
	return &EquitySource{
		cfg:      cfg,
		provider: provider,
		clock:    NewClock(cfg.StartTS, cfg.EndTS),
		cache:    NewCache(),
		writer:   writer,
	}, nil
}

func (s *EquitySource) PrimaryInterval() string { return "1d" }

func (s *EquitySource) Advance(deltaMS int64) { s.clock.Advance(deltaMS) }
func (s *EquitySource) Reset()                { s.clock.Reset() }
func (s *EquitySource) CurrentTS() int64      { return s.clock.CurrentTS() }
func (s *EquitySource) StartTS() int64        { return s.clock.StartTS() }
func (s *EquitySource) EndTS() int64          { return s.clock.EndTS() }
func (s *EquitySource) IsFinished() bool      { return s.clock.IsFinished() }
func (s *EquitySource) ProgressPct() float64  { return s.clock.ProgressPct() }

func (s *EquitySource) Cache() *Cache { return s.cache }

// Preload 并发拉取各 symbol 的日线区间。单个 symbol 失败降级为空序列。
func (s *EquitySource) Preload(ctx context.Context, intervals []string) error {
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

	// 区间端点取整到自然日，终点多取一天以覆盖含端点语义。
	start := time.UnixMilli(s.cfg.StartTS).UTC().Truncate(24 * time.Hour)
	end := time.UnixMilli(s.cfg.EndTS).UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	began := time.Now()
	for _, interval := range intervals {
		g, gctx := errgroup.WithContext(ctx)
		results := make([]market.Candles, len(s.cfg.Symbols))
		for i, sym := range s.cfg.Symbols {
			i, sym := i, sym
			g.Go(func() error {
				results[i] = s.fetchSymbol(gctx, sym, interval, start, end)
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
			key := symbol.NormalizeEquity(sym)
			s.cache.Put(key, interval, results[i])
			if s.writer != nil && len(results[i]) > 0 {
				if _, err := s.writer.InsertCandles(ctx, key, interval, results[i]); err != nil {
					logger.Warnf("[replay] K 线落库失败 symbol=%s interval=%s: %v", key, interval, err)
				}
			}
		}
	}
	logger.Infof("[replay] 预载完成 symbols=%d intervals=%d candles=%d 耗时=%s",
		len(s.cfg.Symbols), len(intervals), s.cache.Total(), time.Since(began).Round(time.Millisecond))
	return nil
}

func (s *EquitySource) fetchSymbol(ctx context.Context, rawSymbol, interval string, start, end time.Time) market.Candles {
	key := symbol.NormalizeEquity(rawSymbol)

	batch, err := s.provider.History(ctx, key, start, end, interval)
	if err != nil {
		logger.Warnf("[replay] 拉取日线失败 symbol=%s interval=%s: %v", key, interval, err)
		return nil
	}

	var out market.Candles
	for _, candle := range batch {
		if candle.TS > s.cfg.EndTS {
			continue
		}
		candle.Instrument = market.InstrumentRef{Symbol: key, Venue: s.cfg.Venue}
		candle.Interval = interval
		out = append(out, candle)
	}
	out.SortByTS()
	logger.Debugf("[replay] %s %s 预载 %d 根", key, interval, len(out))
	return out
}

func (s *EquitySource) WindowCandles(symbols []string, interval string, lookback int) map[string][]market.Candle {
	asOf := s.clock.CurrentTS()
	out := make(map[string][]market.Candle, len(symbols))
	for _, sym := range symbols {
		out[sym] = s.cache.WindowAt(symbol.NormalizeEquity(sym), interval, lookback, asOf)
	}
	return out
}

func (s *EquitySource) MarketSnapshot(symbols []string) market.Snapshot {
	return snapshotFromCache(s.cache, symbols, s.PrimaryInterval(), s.clock.CurrentTS(), symbol.NormalizeEquity)
}
