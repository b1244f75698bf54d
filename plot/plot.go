package plot

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jing2uo/rufeng/calc"
	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/model"
)

const dateLayout = "2006-01-02"

type Options struct {
	// QFQ draws forward adjusted prices.
	QFQ bool
	// Index is the reference calendar for suspension marks, may be nil.
	Index *model.Index
	// Last limits the chart to the newest bars, 0 draws everything.
	Last int
	// IndexOverlay draws the Index closes on a second axis.
	IndexOverlay bool
}

// Chart is a candlestick page for one security.
type Chart struct {
	Title       string
	Dates       []string
	Suspensions []calc.Suspension
	Factors     []calc.FactorChange
	// UnknownDates are bars the reference index has no session for.
	UnknownDates int
	// IndexCloses lines up with Dates, NaN where the index has no bar.
	IndexCloses []float64
	IndexName   string

	page *components.Page
}

func Build(sec model.Security, o Options) (*Chart, error) {
	base := sec.Common()
	if len(base.History) == 0 {
		return nil, fmt.Errorf("%s has no history", base.Symbol)
	}

	raw := base.History
	if o.Last > 0 && len(raw) > o.Last {
		raw = raw[len(raw)-o.Last:]
	}
	bars := raw
	title := "History Price"
	if o.QFQ {
		bars = calc.QFQ(raw)
		title = "Forward Adjusted History Price"
	}

	c := &Chart{
		Title:   fmt.Sprintf("%s-%s %s", base.Code, base.Name, title),
		Dates:   make([]string, len(bars)),
		Factors: calc.FactorChanges(raw),
	}
	for i, q := range bars {
		c.Dates[i] = q.Date.Format(dateLayout)
	}
	if o.Index != nil {
		suspensions, unknown := calc.FindGaps(raw, o.Index.History)
		c.Suspensions = suspensions
		c.UnknownDates = len(unknown)
		if c.UnknownDates > 0 {
			logger.GetLogger().WithComponent("plot").WithFields(logger.Fields{
				"symbol": base.Symbol,
				"index":  o.Index.Symbol,
				"dates":  c.UnknownDates,
			}).Warn("bars outside the index calendar, probably wrong data")
		}
	}

	if o.IndexOverlay && o.Index != nil {
		c.IndexName = o.Index.Name
		if c.IndexName == "" {
			c.IndexName = o.Index.Symbol
		}
		c.IndexCloses = alignCloses(c.Dates, o.Index.History)
	}

	c.page = components.NewPage()
	c.page.PageTitle = c.Title
	c.page.AddCharts(
		c.priceChart(bars),
		c.barChart("Volume", bars, func(q model.Quote) float64 { return float64(q.Volume) }),
		c.barChart("Turnover", bars, func(q model.Quote) float64 { return q.Turnover }),
	)
	return c, nil
}

func (c *Chart) priceChart(bars []model.Quote) *charts.Kline {
	kline := charts.NewKLine()
	subtitle := ""
	if n := len(bars); n > 0 {
		last := bars[n-1]
		subtitle = fmt.Sprintf("%s O:%.2f H:%.2f L:%.2f C:%.2f V:%.1fM Chg:%+.2f",
			c.Dates[n-1], last.Open, last.High, last.Low, last.Close, float64(last.Volume)*1e-6, last.Close-last.Open)
	}
	if c.UnknownDates > 0 {
		subtitle += fmt.Sprintf("  (>_<) %d bars outside index calendar", c.UnknownDates)
	}

	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: c.Title, Width: "1400px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: c.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100, XAxisIndex: []int{0}}),
	)

	items := make([]opts.KlineData, len(bars))
	for i, q := range bars {
		// echarts order: open, close, low, high
		items[i] = opts.KlineData{Value: [4]float64{q.Open, q.Close, q.Low, q.High}}
	}
	kline.SetXAxis(c.Dates).AddSeries("kline", items)

	closes := calc.Closes(bars)
	ma := charts.NewLine()
	ma.SetXAxis(c.Dates)
	for _, period := range []int{5, 10, 20} {
		ma.AddSeries(fmt.Sprintf("MA%d", period), lineData(calc.SMASeries(closes, period)))
	}
	kline.Overlap(ma)

	if c.IndexCloses != nil {
		kline.ExtendYAxis(opts.YAxis{Name: fmt.Sprintf("Index(%s)", c.IndexName), Min: "dataMin", Max: "dataMax"})
		overlay := charts.NewLine()
		overlay.SetXAxis(c.Dates).AddSeries(c.IndexName, lineData(c.IndexCloses),
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))
		kline.Overlap(overlay)
	}

	if marks := c.annotations(bars); len(marks) > 0 {
		scatter := charts.NewScatter()
		scatter.SetXAxis(c.Dates).AddSeries("events", marks)
		kline.Overlap(scatter)
	}
	return kline
}

// annotations marks factor changes and suspensions above the bar's high.
func (c *Chart) annotations(bars []model.Quote) []opts.ScatterData {
	pos := make(map[string]int, len(bars))
	for i, d := range c.Dates {
		pos[d] = i
	}

	var marks []opts.ScatterData
	for _, f := range c.Factors {
		i, ok := pos[f.Date.Format(dateLayout)]
		if !ok {
			continue
		}
		marks = append(marks, opts.ScatterData{
			Name:       fmt.Sprintf("Q(f=%.3f)", f.To),
			Value:      []interface{}{c.Dates[i], bars[i].High},
			Symbol:     "pin",
			SymbolSize: 18,
		})
	}
	for _, s := range c.Suspensions {
		i, ok := pos[s.From.Format(dateLayout)]
		if !ok {
			continue
		}
		marks = append(marks, opts.ScatterData{
			Name:       fmt.Sprintf("suspend %ddays [%s - %s]", s.Days, s.From.Format(dateLayout), s.To.Format(dateLayout)),
			Value:      []interface{}{c.Dates[i], bars[i].High},
			Symbol:     "diamond",
			SymbolSize: 14,
		})
	}
	return marks
}

func (c *Chart) barChart(name string, bars []model.Quote, value func(model.Quote) float64) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1400px", Height: "200px"}),
		charts.WithTitleOpts(opts.Title{Subtitle: name}),
	)

	items := make([]opts.BarData, len(bars))
	values := make([]float64, len(bars))
	for i, q := range bars {
		values[i] = value(q)
		items[i] = opts.BarData{Value: values[i]}
	}
	bar.SetXAxis(c.Dates).AddSeries(name, items)

	if name == "Volume" {
		ma := charts.NewLine()
		ma.SetXAxis(c.Dates)
		for _, period := range []int{5, 10, 20} {
			ma.AddSeries(fmt.Sprintf("V_MA%d", period), lineData(calc.SMASeries(values, period)))
		}
		bar.Overlap(ma)
	}
	return bar
}

// alignCloses picks the index close for every chart date.
func alignCloses(dates []string, index []model.Quote) []float64 {
	closes := make(map[string]float64, len(index))
	for _, q := range index {
		closes[q.Date.Format(dateLayout)] = q.Close
	}
	out := make([]float64, len(dates))
	for i, d := range dates {
		v, ok := closes[d]
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// lineData turns NaN padding into echarts gaps.
func lineData(values []float64) []opts.LineData {
	out := make([]opts.LineData, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = opts.LineData{Value: "-"}
			continue
		}
		out[i] = opts.LineData{Value: math.Round(v*100) / 100}
	}
	return out
}

func (c *Chart) Render(w io.Writer) error {
	return c.page.Render(w)
}

// RenderFile writes the chart as a standalone HTML page, creating the
// parent directory when needed.
func RenderFile(sec model.Security, o Options, path string) error {
	chart, err := Build(sec, o)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := chart.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return f.Close()
}
