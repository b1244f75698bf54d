package plot

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bars(symbol string, days []int, factorFrom int) []model.Quote {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Quote, 0, len(days))
	for _, d := range days {
		factor := 1.0
		if factorFrom > 0 && d >= factorFrom {
			factor = 1.25
		}
		c := 10 + float64(d)/10
		out = append(out, model.Quote{
			Symbol: symbol, Date: start.AddDate(0, 0, d),
			Open: c - 0.1, High: c + 0.2, Low: c - 0.2, Close: c,
			Volume: 1_000_000, Turnover: 1.5, Factor: factor,
		})
	}
	return out
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func testStock() *model.Stock {
	days := append(seq(10), 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24)
	return &model.Stock{Base: model.Base{
		Symbol:  "sh600000",
		Code:    "600000",
		Name:    "浦发银行",
		History: bars("sh600000", days, 15),
	}}
}

func testIndex() *model.Index {
	return &model.Index{Base: model.Base{Symbol: "sh000001", History: bars("sh000001", seq(25), 0)}}
}

func TestBuildFindsEvents(t *testing.T) {
	chart, err := Build(testStock(), Options{Index: testIndex()})
	require.NoError(t, err)

	assert.Equal(t, "600000-浦发银行 History Price", chart.Title)
	assert.Len(t, chart.Dates, 22)
	require.Len(t, chart.Factors, 1)
	assert.Equal(t, 1.25, chart.Factors[0].To)
	require.Len(t, chart.Suspensions, 1)
	assert.Equal(t, 3, chart.Suspensions[0].Days)
	assert.Zero(t, chart.UnknownDates)
}

func TestBuildQFQAndLast(t *testing.T) {
	chart, err := Build(testStock(), Options{QFQ: true, Last: 5})
	require.NoError(t, err)
	assert.Contains(t, chart.Title, "Forward Adjusted")
	assert.Len(t, chart.Dates, 5)
	assert.Empty(t, chart.Suspensions)
}

func TestBuildWithoutHistory(t *testing.T) {
	_, err := Build(&model.Stock{Base: model.Base{Symbol: "sh600000"}}, Options{})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	chart, err := Build(testStock(), Options{Index: testIndex()})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, chart.Render(&buf))
	html := buf.String()
	assert.Contains(t, html, "History Price")
	assert.Contains(t, html, "MA20")
	assert.Contains(t, html, "Turnover")
	assert.Contains(t, html, "suspend 3days")
	assert.Contains(t, html, "Q(f=1.250)")
}

func TestIndexOverlay(t *testing.T) {
	idx := testIndex()
	idx.Name = "上证指数"
	// index misses the stock's first bar
	idx.History = idx.History[1:]

	chart, err := Build(testStock(), Options{Index: idx, IndexOverlay: true})
	require.NoError(t, err)
	require.Len(t, chart.IndexCloses, len(chart.Dates))
	assert.True(t, math.IsNaN(chart.IndexCloses[0]))
	assert.InDelta(t, 10.1, chart.IndexCloses[1], 1e-9)
	assert.Equal(t, "上证指数", chart.IndexName)

	var buf bytes.Buffer
	require.NoError(t, chart.Render(&buf))
	assert.Contains(t, buf.String(), "Index(上证指数)")

	plain, err := Build(testStock(), Options{Index: idx})
	require.NoError(t, err)
	assert.Nil(t, plain.IndexCloses)
}

func TestRenderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charts", "sh600000.html")
	require.NoError(t, RenderFile(testStock(), Options{QFQ: true}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Forward Adjusted History Price")
}
