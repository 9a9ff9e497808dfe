package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backcast/internal/market"
)

// Source 基于 Yahoo Finance chart 接口的日线提供方，实现 replay.DailyProvider。
type Source struct {
	baseURL string
	client  *http.Client
}

func New(base string) *Source {
	if base == "" {
		base = "https://query1.finance.yahoo.com"
	}
	return &Source{
		baseURL: base,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *Source) Name() string { return "yahoo" }

// intervalParam 内部周期写法到 Yahoo 参数的映射。
func intervalParam(interval string) string {
	switch strings.TrimSpace(interval) {
	case "", "1d":
		return "1d"
	case "1w":
		return "1wk"
	case "1M":
		return "1mo"
	default:
		return strings.TrimSpace(interval)
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (s *Source) History(ctx context.Context, symbolKey string, start, end time.Time, interval string) ([]market.Candle, error) {
	symbolKey = strings.TrimSpace(symbolKey)
	if symbolKey == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/v8/finance/chart/" + symbolKey
	q := u.Query()
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", intervalParam(interval))
	q.Set("events", "history")
	u.RawQuery = q.Encode()

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (backcast)")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("yahoo 返回状态码 %d", resp.StatusCode)
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if raw.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo: %s (%s)", raw.Chart.Error.Description, raw.Chart.Error.Code)
	}
	if len(raw.Chart.Result) == 0 || len(raw.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := raw.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	out := make([]market.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// 停牌日各字段为 null，整根跳过
		if !hasIdx(quote.Close, i) || quote.Close[i] == nil {
			continue
		}
		out = append(out, market.Candle{
			TS:     ts * 1000,
			Open:   deref(quote.Open, i),
			High:   deref(quote.High, i),
			Low:    deref(quote.Low, i),
			Close:  *quote.Close[i],
			Volume: deref(quote.Volume, i),
		})
	}
	return out, nil
}

func hasIdx(vals []*float64, i int) bool { return i >= 0 && i < len(vals) }

func deref(vals []*float64, i int) float64 {
	if !hasIdx(vals, i) || vals[i] == nil {
		return 0
	}
	return *vals[i]
}
