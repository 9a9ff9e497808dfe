package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"

	"backcast/internal/market"
	symbolpkg "backcast/internal/pkg/symbol"
)

const maxPageLimit = 1500

// Source 基于 go-binance SDK 的历史 K 线提供方，实现 replay.OHLCVProvider。
type Source struct {
	cfg        Config
	client     *futures.Client
	httpClient *http.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client, httpClient: httpClient}, nil
}

// FetchOHLCV 拉取 sinceTS 起的一页 K 线，按开盘时间升序返回。
func (s *Source) FetchOHLCV(ctx context.Context, symbolKey, interval string, sinceTS int64, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	symbolKey = strings.TrimSpace(symbolKey)
	if symbolKey == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	// Binance requires symbols without slashes (e.g., ETHUSDT)
	cleanSymbol := symbolpkg.Parse(symbolKey).Exchange()
	if cleanSymbol == "" {
		return nil, fmt.Errorf("unrecognized symbol %q", symbolKey)
	}

	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}

	svc := s.client.NewKlinesService().
		Symbol(cleanSymbol).
		Interval(interval).
		Limit(limit)
	if sinceTS > 0 {
		svc = svc.StartTime(sinceTS)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			TS:     kl.OpenTime,
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
		})
	}
	return out, nil
}

func (s *Source) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
