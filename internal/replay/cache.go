package replay

import (
	"sort"
	"sync"

	"backcast/internal/market"
)

// Cache 预载后的 K 线缓存：(symbol, interval) -> 按 TS 升序的序列。
// 预载阶段一次写入，回放阶段只读；读路径有排序前提，可并发供 HTTP 查询。
type Cache struct {
	mu     sync.RWMutex
	series map[string]map[string]market.Candles
}

func NewCache() *Cache {
	return &Cache{series: make(map[string]map[string]market.Candles)}
}

// Put 存入一个序列；内部复制并排序，空序列也会登记（表示该 symbol 已尝试加载）。
func (c *Cache) Put(symbolKey, interval string, candles []market.Candle) {
	cp := make(market.Candles, len(candles))
	copy(cp, candles)
	cp.SortByTS()

	c.mu.Lock()
	defer c.mu.Unlock()
	byInterval, ok := c.series[symbolKey]
	if !ok {
		byInterval = make(map[string]market.Candles)
		c.series[symbolKey] = byInterval
	}
	byInterval[interval] = cp
}

func (c *Cache) Has(symbolKey, interval string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byInterval, ok := c.series[symbolKey]
	if !ok {
		return false
	}
	_, ok = byInterval[interval]
	return ok
}

// Len 返回某序列的根数；未登记时为 0。
func (c *Cache) Len(symbolKey, interval string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.series[symbolKey][interval])
}

// Total 返回缓存中所有序列的 K 线总数。
func (c *Cache) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, byInterval := range c.series {
		for _, cs := range byInterval {
			n += len(cs)
		}
	}
	return n
}

// Symbols 返回已登记的 symbol 列表（排序后），供进度/诊断接口使用。
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.series))
	for s := range c.series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// upTo 返回 TS <= asOf 的前缀（零拷贝切片，调用方只读）。
func upTo(cs market.Candles, asOf int64) market.Candles {
	idx := sort.Search(len(cs), func(i int) bool { return cs[i].TS > asOf })
	return cs[:idx]
}

// WindowAt 返回截止 asOf 的最近 lookback 根 K 线；绝不返回 TS > asOf 的数据。
// lookback <= 0 返回空；数据不足时返回可得的全部前缀。
func (c *Cache) WindowAt(symbolKey, interval string, lookback int, asOf int64) []market.Candle {
	if lookback <= 0 {
		return nil
	}
	c.mu.RLock()
	cs := c.series[symbolKey][interval]
	c.mu.RUnlock()

	visible := upTo(cs, asOf)
	if len(visible) > lookback {
		visible = visible[len(visible)-lookback:]
	}
	out := make([]market.Candle, len(visible))
	copy(out, visible)
	return out
}

// LatestAt 返回截止 asOf 的最后一根 K 线；无可见数据时 ok 为 false。
func (c *Cache) LatestAt(symbolKey, interval string, asOf int64) (market.Candle, bool) {
	c.mu.RLock()
	cs := c.series[symbolKey][interval]
	c.mu.RUnlock()

	visible := upTo(cs, asOf)
	if len(visible) == 0 {
		return market.Candle{}, false
	}
	return visible[len(visible)-1], true
}

// Series 返回整个序列的副本，供存储回写与报表使用。
func (c *Cache) Series(symbolKey, interval string) []market.Candle {
	c.mu.RLock()
	cs := c.series[symbolKey][interval]
	c.mu.RUnlock()
	out := make([]market.Candle, len(cs))
	copy(out, cs)
	return out
}
