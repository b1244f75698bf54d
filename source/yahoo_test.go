package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYahooTicker(t *testing.T) {
	ticker, ok := YahooTicker("sh600000")
	assert.True(t, ok)
	assert.Equal(t, "600000.SS", ticker)

	ticker, ok = YahooTicker("sz000001")
	assert.True(t, ok)
	assert.Equal(t, "000001.SZ", ticker)

	_, ok = YahooTicker("bj830799")
	assert.False(t, ok)
}

func TestYahooFetchQuotes(t *testing.T) {
	d1 := time.Date(2024, 1, 2, 9, 30, 0, 0, cst).Unix()
	d2 := time.Date(2024, 1, 3, 9, 30, 0, 0, cst).Unix()
	d3 := time.Date(2024, 1, 4, 9, 30, 0, 0, cst).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/600000.SS"))
		fmt.Fprintf(w, `{"chart":{"result":[{"timestamp":[%d,%d,%d],"indicators":{
			"quote":[{"open":[10,null,11],"high":[11,null,12],"low":[9,null,10],"close":[10,null,12],"volume":[100,null,200]}],
			"adjclose":[{"adjclose":[5,null,12]}]}}],"error":null}}`, d1, d2, d3)
	}))
	defer srv.Close()

	y := NewYahoo(testClient())
	y.BaseURL = srv.URL + "/"

	quotes, err := y.FetchQuotes(context.Background(), &model.Stock{Base: model.Base{Symbol: "sh600000"}},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), quotes[0].Date)
	assert.InDelta(t, 0.5, quotes[0].Factor, 1e-9)
	assert.InDelta(t, 1.0, quotes[1].Factor, 1e-9)
	assert.Equal(t, int64(200), quotes[1].Volume)
}

func TestYahooNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	y := NewYahoo(testClient())
	y.BaseURL = srv.URL + "/"

	_, err := y.FetchQuotes(context.Background(), &model.Stock{Base: model.Base{Symbol: "sz000001"}}, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = y.FetchQuotes(context.Background(), &model.Stock{Base: model.Base{Symbol: "bj830799"}}, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
