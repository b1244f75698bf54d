package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

const (
	eastmoneyListURL  = "https://push2.eastmoney.com/api/qt/clist/get"
	eastmoneyKlineURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"

	// 沪深京 A 股
	eastmoneyMarkets = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048"
	eastmoneyFields  = "f2,f8,f9,f12,f14,f20,f21,f23,f26,f100,f102"
	eastmoneyPage    = 100
)

// Eastmoney reads the A-share list with fundamentals and daily klines from
// the eastmoney quote API.
type Eastmoney struct {
	client   *Client
	ListURL  string
	KlineURL string
}

func NewEastmoney(client *Client) *Eastmoney {
	return &Eastmoney{client: client, ListURL: eastmoneyListURL, KlineURL: eastmoneyKlineURL}
}

func (e *Eastmoney) Name() string { return "eastmoney" }

// flexFloat accepts numbers and the "-" placeholder used for missing values.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "-" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

type clistItem struct {
	Price    flexFloat `json:"f2"`
	Turnover flexFloat `json:"f8"`
	PE       flexFloat `json:"f9"`
	Code     string    `json:"f12"`
	Name     string    `json:"f14"`
	MktCap   flexFloat `json:"f20"`
	NMC      flexFloat `json:"f21"`
	PB       flexFloat `json:"f23"`
	Listed   flexFloat `json:"f26"`
	Industry string    `json:"f100"`
	Area     string    `json:"f102"`
}

type clistResponse struct {
	Data *struct {
		Total int         `json:"total"`
		Diff  []clistItem `json:"diff"`
	} `json:"data"`
}

// NormalizeName 全角转半角并去掉空格
func NormalizeName(name string) string {
	name = width.Narrow.String(name)
	return strings.Join(strings.Fields(name), "")
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func placeholder(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func (e *Eastmoney) ListStocks(ctx context.Context) ([]*model.Stock, error) {
	var stocks []*model.Stock
	seen := 0

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("pn", strconv.Itoa(page))
		q.Set("pz", strconv.Itoa(eastmoneyPage))
		q.Set("po", "1")
		q.Set("np", "1")
		q.Set("fltt", "2")
		q.Set("invt", "2")
		q.Set("fid", "f12")
		q.Set("fs", eastmoneyMarkets)
		q.Set("fields", eastmoneyFields)

		body, err := e.client.Get(ctx, e.ListURL+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("eastmoney list page %d: %w", page, err)
		}

		var resp clistResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("eastmoney list decode: %w", err)
		}
		if resp.Data == nil || len(resp.Data.Diff) == 0 {
			break
		}

		for _, item := range resp.Data.Diff {
			symbol, ok := utils.GenerateSymbol(item.Code)
			if !ok {
				continue
			}
			s := &model.Stock{
				Base: model.Base{
					Symbol: symbol,
					Code:   item.Code,
					Name:   NormalizeName(item.Name),
					Price:  round2(float64(item.Price)),
				},
				Industry: placeholder(item.Industry),
				Area:     placeholder(item.Area),
				PE:       round2(float64(item.PE)),
				PB:       round2(float64(item.PB)),
				NMC:      round2(float64(item.NMC) / 1e4),
				MktCap:   round2(float64(item.MktCap) / 1e4),
			}
			if listed := int(item.Listed); listed > 19000000 {
				s.TimeToMarket = time.Date(listed/10000, time.Month(listed/100%100), listed%100, 0, 0, 0, 0, time.UTC)
			}
			stocks = append(stocks, s)
		}

		seen += len(resp.Data.Diff)
		if seen >= resp.Data.Total {
			break
		}
	}

	if len(stocks) == 0 {
		return nil, fmt.Errorf("eastmoney returned no stocks")
	}
	return stocks, nil
}

// secID 东方财富 secid: 1 为上交所, 0 为深交所与北交所
func secID(symbol string) string {
	market, code := utils.SplitSymbol(symbol)
	if market == "sh" {
		return "1." + code
	}
	return "0." + code
}

type klineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// klines fetches daily bars; fqt 0 is unadjusted and 2 backward adjusted.
func (e *Eastmoney) klines(ctx context.Context, symbol string, fqt int, start, end time.Time) ([]model.Quote, error) {
	q := url.Values{}
	q.Set("secid", secID(symbol))
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61")
	q.Set("klt", "101")
	q.Set("fqt", strconv.Itoa(fqt))
	q.Set("beg", start.Format("20060102"))
	q.Set("end", end.Format("20060102"))

	body, err := e.client.Get(ctx, e.KlineURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp klineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("eastmoney kline decode: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	quotes := make([]model.Quote, 0, len(resp.Data.Klines))
	for _, line := range resp.Data.Klines {
		quote, err := parseKline(symbol, line)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// parseKline: date,open,close,high,low,volume(手),amount,amplitude,pct,change,turnover
func parseKline(symbol, line string) (model.Quote, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 11 {
		return model.Quote{}, fmt.Errorf("malformed kline %q", line)
	}

	date, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return model.Quote{}, fmt.Errorf("malformed kline date %q: %w", parts[0], err)
	}

	var nums [10]float64
	for i := 1; i < 11; i++ {
		if parts[i] == "-" || parts[i] == "" {
			continue
		}
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return model.Quote{}, fmt.Errorf("malformed kline field %q: %w", parts[i], err)
		}
		nums[i-1] = v
	}

	return model.Quote{
		Symbol:   symbol,
		Date:     date,
		Open:     nums[0],
		Close:    nums[1],
		High:     nums[2],
		Low:      nums[3],
		Volume:   int64(nums[4]) * 100,
		Amount:   nums[5],
		Turnover: nums[9],
		Factor:   1,
	}, nil
}

func (e *Eastmoney) FetchQuotes(ctx context.Context, sec model.Security, start, end time.Time) ([]model.Quote, error) {
	symbol := sec.Common().Symbol

	quotes, err := e.klines(ctx, symbol, 0, start, end)
	if err != nil {
		return nil, err
	}
	if sec.Kind() == model.KindIndex || len(quotes) == 0 {
		return quotes, nil
	}

	// 后复权价 / 不复权价 即累计后复权因子, 历史值不随新的除权而变化
	hfq, err := e.klines(ctx, symbol, 2, start, end)
	if err != nil {
		return nil, fmt.Errorf("eastmoney hfq: %w", err)
	}
	hfqClose := make(map[time.Time]float64, len(hfq))
	for _, q := range hfq {
		hfqClose[q.Date] = q.Close
	}
	for i := range quotes {
		if c, ok := hfqClose[quotes[i].Date]; ok && quotes[i].Close > 0 {
			quotes[i].Factor = c / quotes[i].Close
		}
	}
	return quotes, nil
}
