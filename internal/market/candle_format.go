package market

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Candles []Candle

// SortByTS 按时间戳升序排序（稳定排序，保持同 TS 相对顺序）。
func (cs Candles) SortByTS() {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].TS < cs[j].TS })
}

// Sorted 校验序列是否已按 TS 非降序排列。
func (cs Candles) Sorted() bool {
	for i := 1; i < len(cs); i++ {
		if cs[i].TS < cs[i-1].TS {
			return false
		}
	}
	return true
}

func (c Candle) TimeString() string {
	if c.TS <= 0 {
		return "-"
	}
	return time.UnixMilli(c.TS).UTC().Format("01-02 15:04") + "Z"
}

// FormatPrice 去除多余尾零的价格文本，供上下文渲染使用。
func FormatPrice(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return decimal.NewFromFloat(v).Round(6).String()
}

// Describe 汇总一段 K 线：最新收盘、区间涨跌与高低点，供决策上下文使用。
func (cs Candles) Describe(interval string) string {
	if len(cs) == 0 {
		return ""
	}
	first := cs[0]
	last := cs[len(cs)-1]
	base := first.Close
	if base == 0 {
		base = first.Open
	}
	low := math.MaxFloat64
	high := -math.MaxFloat64
	for _, bar := range cs {
		if bar.Low < low {
			low = bar.Low
		}
		if bar.High > high {
			high = bar.High
		}
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("close≈%s", FormatPrice(last.Close)))
	iv := strings.TrimSpace(interval)
	if iv == "" {
		iv = "window"
	}
	if base != 0 {
		changePct := (last.Close - base) / base * 100
		sb.WriteString(fmt.Sprintf(" (%+.2f%%/%s)", changePct, iv))
	}
	if low != math.MaxFloat64 && high != -math.MaxFloat64 {
		sb.WriteString(fmt.Sprintf(", 区间 %s–%s", FormatPrice(low), FormatPrice(high)))
	}
	return sb.String()
}
