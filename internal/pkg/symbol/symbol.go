package symbol

import (
	"strings"
)

type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "-" + s.Quote
}

// Exchange 返回无分隔符形式（如 BTCUSDT），大多数交易所 REST 接口使用。
func (s Symbol) Exchange() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Perp 返回带结算币种后缀的合约形式（如 BTC/USDT:USDT）。
func (s Symbol) Perp() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote + ":" + s.Quote
}

// Parse 解析常见写法：BTC-USDT、BTC/USDT、BTC/USDT:USDT、BTCUSDT。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ReplaceAll(s, "-", "/")

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	quoteCurrencies := []string{"USDT", "BUSD", "USDC", "TUSD", "USD", "BTC", "ETH", "BNB"}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// NormalizePerp 把任意写法规整为合约形式；已带 ":" 后缀的原样返回。
// 无法解析出 base/quote 的输入原样透传，交由上游提供方报错。
func NormalizePerp(raw string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if strings.Contains(trimmed, ":") {
		return trimmed
	}
	sym := Parse(raw)
	if p := sym.Perp(); p != "" {
		return p
	}
	return trimmed
}

// NormalizeEquity 去掉 -USD 之类的后缀并统一大写（AAPL-USD -> AAPL）。
func NormalizeEquity(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if idx := strings.Index(s, "-"); idx > 0 {
		s = s[:idx]
	}
	return s
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
