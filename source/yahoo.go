package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/utils"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

var cst = time.FixedZone("CST", 8*3600)

// Yahoo fetches daily history from the Yahoo Finance chart API.
type Yahoo struct {
	client  *Client
	BaseURL string
}

func NewYahoo(client *Client) *Yahoo {
	return &Yahoo{client: client, BaseURL: yahooChartURL}
}

func (y *Yahoo) Name() string { return "yahoo" }

// YahooTicker maps sh600000 to 600000.SS and sz000001 to 000001.SZ.
func YahooTicker(symbol string) (string, bool) {
	market, code := utils.SplitSymbol(symbol)
	switch market {
	case "sh":
		return code + ".SS", true
	case "sz":
		return code + ".SZ", true
	default:
		return "", false
	}
}

type yahooChart struct {
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
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

// FetchQuotes uses adjclose/close as the factor. Yahoo anchors adjclose at
// the latest bar, so the factor is only consistent within one response.
func (y *Yahoo) FetchQuotes(ctx context.Context, sec model.Security, start, end time.Time) ([]model.Quote, error) {
	symbol := sec.Common().Symbol
	ticker, ok := YahooTicker(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: yahoo has no ticker for %s", ErrNotFound, symbol)
	}

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprint(start.Unix()))
	q.Set("period2", fmt.Sprint(end.AddDate(0, 0, 1).Unix()))
	q.Set("events", "div,split")

	body, err := y.client.Get(ctx, y.BaseURL+url.PathEscape(ticker)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		if strings.EqualFold(chart.Chart.Error.Code, "Not Found") {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, chart.Chart.Error.Description)
		}
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	quotes := make([]model.Quote, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bars on holidays
		}
		day := model.Day(time.Unix(ts, 0).In(cst))
		if day.Before(model.Day(start)) || day.After(model.Day(end)) {
			continue
		}
		factor := 1.0
		if a := at(adj, i); a > 0 && c > 0 {
			factor = a / c
		}
		quotes = append(quotes, model.Quote{
			Symbol: symbol,
			Date:   day,
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: int64(at(quote.Volume, i)),
			Factor: factor,
		})
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Date.Before(quotes[j].Date) })
	return quotes, nil
}
