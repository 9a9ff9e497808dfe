package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"backcast/internal/execution"
	"backcast/internal/market"
	"backcast/internal/runtime"
)

const (
	pageWidth   = 1400
	chartHeight = 520
)

// Input 单个 symbol 的报表素材。
type Input struct {
	Run      runtime.Run
	Symbol   string
	Interval string
	Candles  []market.Candle
	Fills    []runtime.Fill
}

// RenderHTML 生成 K 线 + 成交标记 + 成交量的单页报表。
func RenderHTML(input Input) ([]byte, error) {
	if len(input.Candles) == 0 {
		return nil, fmt.Errorf("report: no candles for %s", input.Symbol)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildKlineChart(input), buildEquityChart(input), buildVolumeChart(input))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPNG 经无头浏览器把报表页截成 PNG。
func RenderPNG(ctx context.Context, input Input, width, height int) ([]byte, error) {
	html, err := RenderHTML(input)
	if err != nil {
		return nil, err
	}
	if width <= 0 {
		width = pageWidth
	}
	if height <= 0 {
		height = chartHeight * 2
	}
	return renderHTMLToPNG(ctx, html, width, height)
}

// WriteHTML 渲染并写入文件。
func WriteHTML(input Input, path string) error {
	html, err := RenderHTML(input)
	if err != nil {
		return err
	}
	return os.WriteFile(path, html, 0o644)
}

func buildKlineChart(input Input) components.Charter {
	kline := charts.NewKLine()
	subtitle := fmt.Sprintf("run %s · %d fills · fees %.4f",
		input.Run.ID, input.Run.Stats.Fills, input.Run.Stats.Fees)
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", pageWidth),
			Height: fmt.Sprintf("%dpx", chartHeight),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s", input.Symbol, input.Interval),
			Subtitle: subtitle,
			Left:     "left",
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)

	xAxis := buildXAxis(input.Candles)
	data := make([]opts.KlineData, 0, len(input.Candles))
	for _, c := range input.Candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("price", data)

	buys, sells := buildFillSeries(input.Candles, input.Fills)
	scatter := charts.NewScatter()
	scatter.SetXAxis(xAxis)
	scatter.AddSeries("buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#2f9e44"}))
	scatter.AddSeries("sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#e03131"}))
	kline.Overlap(scatter)
	return kline
}

// buildEquityChart 以逐根盯市净值画权益曲线：现金流按成交累计，持仓按收盘价估值。
func buildEquityChart(input Input) components.Charter {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", pageWidth),
			Height: "260px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Equity (mark-to-market)", Left: "left"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(buildXAxis(input.Candles))
	line.AddSeries("equity", equitySeries(input.Candles, input.Fills),
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	return line
}

func equitySeries(candles []market.Candle, fills []runtime.Fill) []opts.LineData {
	out := make([]opts.LineData, len(candles))
	cash := 0.0
	position := 0.0
	next := 0
	sorted := append([]runtime.Fill(nil), fills...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Result.TS < sorted[j].Result.TS })
	for i, c := range candles {
		// 归属到本根的成交：TS 落在 [本根开盘, 下一根开盘)
		boundary := int64(math.MaxInt64)
		if i+1 < len(candles) {
			boundary = candles[i+1].TS
		}
		for next < len(sorted) && sorted[next].Result.TS < boundary {
			res := sorted[next].Result
			next++
			if !res.Filled() {
				continue
			}
			if res.Side == execution.SideSell {
				cash += res.Notional - res.Fee
				position -= res.FilledQty
			} else {
				cash -= res.Notional + res.Fee
				position += res.FilledQty
			}
		}
		out[i] = opts.LineData{Value: round(cash+position*c.Close, 4)}
	}
	return out
}

func buildVolumeChart(input Input) components.Charter {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", pageWidth),
			Height: "220px",
		}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Volume %s", input.Interval), Left: "left"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
	)
	vols := make([]opts.BarData, len(input.Candles))
	for i, c := range input.Candles {
		vols[i] = opts.BarData{Value: round(c.Volume, 2)}
	}
	bar.SetXAxis(buildXAxis(input.Candles))
	bar.AddSeries("volume", vols)
	return bar
}

func buildXAxis(candles []market.Candle) []string {
	out := make([]string, len(candles))
	for i, c := range candles {
		out[i] = c.TimeString()
	}
	return out
}

// buildFillSeries 把成交按时间挂到对应的 K 线刻度上（取 ts 所属的那根）。
func buildFillSeries(candles []market.Candle, fills []runtime.Fill) (buys, sells []opts.ScatterData) {
	buys = make([]opts.ScatterData, len(candles))
	sells = make([]opts.ScatterData, len(candles))
	for _, f := range fills {
		if !f.Result.Filled() {
			continue
		}
		idx := sort.Search(len(candles), func(i int) bool { return candles[i].TS > f.Result.TS }) - 1
		if idx < 0 {
			continue
		}
		point := opts.ScatterData{Value: round(f.Result.FillPrice, 6), SymbolSize: 10}
		if f.Result.Side == execution.SideSell {
			sells[idx] = point
		} else {
			buys[idx] = point
		}
	}
	return buys, sells
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
