package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"backcast/internal/market"
)

// Config 指标周期参数；零值字段采用常用缺省。
type Config struct {
	EMAFast   int `mapstructure:"ema_fast" toml:"ema_fast"`
	EMASlow   int `mapstructure:"ema_slow" toml:"ema_slow"`
	RSIPeriod int `mapstructure:"rsi_period" toml:"rsi_period"`
}

func (c Config) withDefaults() Config {
	if c.EMAFast <= 0 {
		c.EMAFast = 20
	}
	if c.EMASlow <= 0 {
		c.EMASlow = 50
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	return c
}

// Compute 对一段 K 线计算指标终值，供决策上下文使用。
// 数据不足以计算某指标时该键缺省，不报错。
func Compute(candles []market.Candle, cfg Config) map[string]float64 {
	cfg = cfg.withDefaults()
	out := make(map[string]float64)
	if len(candles) == 0 {
		return out
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	out["close"] = closes[len(closes)-1]

	if len(closes) >= cfg.EMAFast {
		if v := lastFinite(talib.Ema(closes, cfg.EMAFast)); v > 0 {
			out["ema_fast"] = v
		}
	}
	if len(closes) >= cfg.EMASlow {
		if v := lastFinite(talib.Ema(closes, cfg.EMASlow)); v > 0 {
			out["ema_slow"] = v
		}
	}
	if len(closes) > cfg.RSIPeriod {
		if v := lastFinite(talib.Rsi(closes, cfg.RSIPeriod)); v > 0 {
			out["rsi"] = v
		}
	}
	if len(closes) >= 35 {
		dif, dea, hist := talib.Macd(closes, 12, 26, 9)
		out["macd_dif"] = lastFinite(dif)
		out["macd_dea"] = lastFinite(dea)
		out["macd_hist"] = lastFinite(hist)
	}
	return out
}

// ComputeAll 逐 symbol 计算，空窗口产出空映射。
func ComputeAll(windows map[string][]market.Candle, cfg Config) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(windows))
	for sym, candles := range windows {
		out[sym] = Compute(candles, cfg)
	}
	return out
}

// lastFinite 返回序列末端最后一个有限值；全序列无效时为 0。
func lastFinite(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}
