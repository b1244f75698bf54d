package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return NewClient(ClientOptions{Timeout: 5 * time.Second})
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "N平安", NormalizeName("Ｎ 平安"))
	assert.Equal(t, "*ST华仪", NormalizeName("＊ＳＴ华仪"))
	assert.Equal(t, "浦发银行", NormalizeName(" 浦发 银行 "))
}

func TestEastmoneyListStocksPaginates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("pn") {
		case "1":
			fmt.Fprint(w, `{"data":{"total":3,"diff":[
				{"f2":10.5,"f8":1.2,"f9":6.1,"f12":"000001","f14":"平安银行","f20":203000000000,"f21":202000000000,"f23":0.6,"f26":19910403,"f100":"银行","f102":"广东板块"},
				{"f2":"-","f8":"-","f9":"-","f12":"900901","f14":"云赛B股","f20":"-","f21":"-","f23":"-","f26":"-","f100":"-","f102":"-"}
			]}}`)
		case "2":
			fmt.Fprint(w, `{"data":{"total":3,"diff":[
				{"f2":7.8,"f8":0.3,"f9":5.0,"f12":"600000","f14":"浦发银行","f20":2.3e11,"f21":2.2e11,"f23":0.4,"f26":19991110,"f100":"银行","f102":"上海板块"}
			]}}`)
		default:
			fmt.Fprint(w, `{"data":null}`)
		}
	}))
	defer srv.Close()

	em := NewEastmoney(testClient())
	em.ListURL = srv.URL

	stocks, err := em.ListStocks(context.Background())
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.EqualValues(t, 2, calls.Load())

	s := stocks[0]
	assert.Equal(t, "sz000001", s.Symbol)
	assert.Equal(t, "平安银行", s.Name)
	assert.Equal(t, 10.5, s.Price)
	assert.Equal(t, 20200000.0, s.NMC)
	assert.Equal(t, "银行", s.Industry)
	assert.Equal(t, time.Date(1991, 4, 3, 0, 0, 0, 0, time.UTC), s.TimeToMarket)

	assert.Equal(t, "sh600000", stocks[1].Symbol)
}

func TestEastmoneyFetchQuotesDerivesFactor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "0.000001", q.Get("secid"))
		assert.Equal(t, "20240102", q.Get("beg"))
		if q.Get("fqt") == "2" {
			fmt.Fprint(w, `{"data":{"code":"000001","klines":[
				"2024-01-02,100,200,210,190,1000,1000000.00,1,1,1,0.50",
				"2024-01-03,100,300,310,290,1000,1000000.00,1,1,1,0.50"]}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"code":"000001","klines":[
			"2024-01-02,9.8,10.0,10.5,9.5,1000,1000000.00,1.2,0.5,0.05,0.50",
			"2024-01-03,10.0,10.0,10.3,9.9,2000,2000000.00,1.0,0.0,0.00,0.75"]}}`)
	}))
	defer srv.Close()

	em := NewEastmoney(testClient())
	em.KlineURL = srv.URL

	sec := &model.Stock{Base: model.Base{Symbol: "sz000001"}}
	quotes, err := em.FetchQuotes(context.Background(), sec,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, 10.0, quotes[0].Close)
	assert.Equal(t, 10.5, quotes[0].High)
	assert.Equal(t, int64(100000), quotes[0].Volume)
	assert.Equal(t, 0.75, quotes[1].Turnover)
	assert.InDelta(t, 20.0, quotes[0].Factor, 1e-9)
	assert.InDelta(t, 30.0, quotes[1].Factor, 1e-9)
}

func TestEastmoneyIndexSkipsAdjustment(t *testing.T) {
	var hfqCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fqt") == "2" {
			hfqCalls.Add(1)
		}
		assert.Equal(t, "1.000001", r.URL.Query().Get("secid"))
		fmt.Fprint(w, `{"data":{"code":"000001","klines":["2024-01-02,2950,2962,2976,2944,300000,3e11,1,1,1,0.3"]}}`)
	}))
	defer srv.Close()

	em := NewEastmoney(testClient())
	em.KlineURL = srv.URL

	idx := &model.Index{Base: model.Base{Symbol: "sh000001"}}
	quotes, err := em.FetchQuotes(context.Background(), idx, time.Now().AddDate(0, 0, -5), time.Now())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 1.0, quotes[0].Factor)
	assert.Zero(t, hfqCalls.Load())
}

func TestEastmoneyUnknownSymbolIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rc":0,"data":null}`)
	}))
	defer srv.Close()

	em := NewEastmoney(testClient())
	em.KlineURL = srv.URL

	_, err := em.FetchQuotes(context.Background(), &model.Stock{Base: model.Base{Symbol: "sz009999"}}, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseKlineRejectsGarbage(t *testing.T) {
	_, err := parseKline("sz000001", "2024-01-02,1,2")
	assert.Error(t, err)

	_, err = parseKline("sz000001", "20240102,1,2,3,4,5,6,7,8,9,10")
	assert.Error(t, err)

	q, err := parseKline("sz000001", "2024-01-02,1,2,3,4,5,6,7,8,9,-")
	require.NoError(t, err)
	assert.Zero(t, q.Turnover)
}

func TestClientStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient()
	_, err := c.Get(context.Background(), srv.URL+"/missing", nil)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = c.Get(context.Background(), srv.URL+"/flaky", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{RateLimit: 0.1, Burst: 1})
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, srv.URL, nil)
	assert.Error(t, err)
}
