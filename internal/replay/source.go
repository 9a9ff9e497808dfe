package replay

import (
	"context"
	"time"

	"backcast/internal/market"
)

// Source 回放数据源的统一入口：预载、按模拟时刻取数、推进时钟。
// 加密盘口与股票日线各有一个实现，周期驱动器只面向本接口。
type Source interface {
	// Preload 拉取全量历史并写入缓存；单个 symbol 失败降级为空序列，不中断整体。
	Preload(ctx context.Context, intervals []string) error

	// WindowCandles 返回每个 symbol 截止当前模拟时刻的最近 lookback 根 K 线。
	WindowCandles(symbols []string, interval string, lookback int) map[string][]market.Candle

	// MarketSnapshot 返回各 symbol 截止当前模拟时刻的最新价格；无数据的 symbol 缺省。
	MarketSnapshot(symbols []string) market.Snapshot

	// PrimaryInterval 快照取价所用的最细粒度周期。
	PrimaryInterval() string

	Advance(deltaMS int64)
	Reset()
	CurrentTS() int64
	StartTS() int64
	EndTS() int64
	IsFinished() bool
	ProgressPct() float64
}

// OHLCVProvider 分页式 K 线提供方（加密货币）。sinceTS 为毫秒起点，
// limit 为单页上限；返回按 TS 升序的一页数据。
type OHLCVProvider interface {
	FetchOHLCV(ctx context.Context, symbolKey, interval string, sinceTS int64, limit int) ([]market.Candle, error)
	Close() error
}

// OHLCVProviderFactory 每个 symbol 任务独立建一个客户端，用完即关。
type OHLCVProviderFactory func() (OHLCVProvider, error)

// DailyProvider 日线级区间提供方（股票）。start/end 为自然日边界，含端点。
type DailyProvider interface {
	History(ctx context.Context, symbolKey string, start, end time.Time, interval string) ([]market.Candle, error)
}

// CandleWriter 预载结果的落库端，成功与否不影响回放（只告警）。
type CandleWriter interface {
	InsertCandles(ctx context.Context, symbolKey, interval string, candles []market.Candle) (int, error)
}

// snapshotFromCache 按 asOf 从缓存汇出快照，键为请求里的原始 symbol。
func snapshotFromCache(cache *Cache, symbols []string, interval string, asOf int64, keyFn func(string) string) market.Snapshot {
	snap := make(market.Snapshot, len(symbols))
	for _, sym := range symbols {
		candle, ok := cache.LatestAt(keyFn(sym), interval, asOf)
		if !ok {
			continue
		}
		rec := market.RecordFromCandle(candle)
		rec.Symbol = sym
		snap[sym] = rec
	}
	return snap
}
