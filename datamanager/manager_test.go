package datamanager

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/database"
	"github.com/jing2uo/rufeng/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct{ start, end time.Time }

// fakeMarket has a bar on every weekday up to lastBar for each symbol.
type fakeMarket struct {
	mu       sync.Mutex
	listing  []model.Stock
	lastBar  map[string]time.Time
	broken   map[string]bool
	requests map[string][]window
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		listing: []model.Stock{
			{Base: model.Base{Symbol: "sh600000", Code: "600000", Name: "浦发银行", Price: 7.8}, PE: 5},
			{Base: model.Base{Symbol: "sz000001", Code: "000001", Name: "平安　银行", Price: 10.2}, PE: 6},
		},
		lastBar:  map[string]time.Time{},
		broken:   map[string]bool{},
		requests: map[string][]window{},
	}
}

func (f *fakeMarket) Name() string { return "fake" }

func (f *fakeMarket) ListStocks(ctx context.Context) ([]*model.Stock, error) {
	out := make([]*model.Stock, 0, len(f.listing))
	for _, s := range f.listing {
		s := s
		out = append(out, &s)
	}
	return out, nil
}

func (f *fakeMarket) FetchQuotes(ctx context.Context, sec model.Security, start, end time.Time) ([]model.Quote, error) {
	symbol := sec.Common().Symbol

	f.mu.Lock()
	f.requests[symbol] = append(f.requests[symbol], window{start, end})
	last, capped := f.lastBar[symbol]
	broken := f.broken[symbol]
	f.mu.Unlock()

	if broken {
		return nil, errors.New("upstream error")
	}
	var quotes []model.Quote
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if capped && d.After(last) {
			break
		}
		quotes = append(quotes, model.Quote{Symbol: symbol, Date: d, Open: 10, High: 11, Low: 9, Close: 10, Volume: 100, Factor: 1})
	}
	return quotes, nil
}

func (f *fakeMarket) requestsFor(symbol string) []window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]window(nil), f.requests[symbol]...)
}

func (f *fakeMarket) resetRequests() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = map[string][]window{}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Crawler.MaxAttempts = 2
	cfg.Crawler.Backoff = time.Millisecond
	cfg.Crawler.MaxBackoff = time.Millisecond
	cfg.Crawler.PollTimeout = 30 * time.Second
	return cfg
}

func newTestManager(t *testing.T, market *fakeMarket, now time.Time) (*Manager, database.DataRepository) {
	t.Helper()
	repo, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "rufeng.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	m, err := New(testConfig(), repo, market)
	require.NoError(t, err)
	m.Now = func() time.Time { return now }
	return m, repo
}

func countQuotes(t *testing.T, repo database.DataRepository) int {
	t.Helper()
	all, err := repo.ReadAllQuotes(nil)
	require.NoError(t, err)
	n := 0
	for _, q := range all {
		n += len(q)
	}
	return n
}

func TestPlan(t *testing.T) {
	m, _ := newTestManager(t, newFakeMarket(), time.Now())
	updateTo := date(2024, 1, 10)

	fresh := &model.Stock{}
	start, end, ok := m.Plan(fresh, updateTo)
	require.True(t, ok)
	assert.Equal(t, date(2023, 1, 10), start)
	assert.Equal(t, updateTo, end)

	current := &model.Stock{Base: model.Base{History: []model.Quote{{Date: updateTo}}}}
	_, _, ok = m.Plan(current, updateTo)
	assert.False(t, ok)

	behind := &model.Stock{Base: model.Base{
		History:    []model.Quote{{Date: date(2024, 1, 5)}},
		LastUpdate: cstTime(2024, 1, 9, 16, 0),
	}}
	start, end, ok = m.Plan(behind, updateTo)
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 6), start)
	assert.Equal(t, updateTo, end)

	suspended := &model.Stock{Base: model.Base{
		History:    []model.Quote{{Date: date(2024, 1, 5)}},
		LastUpdate: cstTime(2024, 1, 10, 16, 0),
	}}
	_, _, ok = m.Plan(suspended, updateTo)
	assert.False(t, ok)
}

func TestPickDataColdStartThenIdempotent(t *testing.T) {
	market := newFakeMarket()
	now := cstTime(2024, 1, 10, 16, 0)
	m, repo := newTestManager(t, market, now)

	full, err := m.PickData(context.Background(), 4, false)
	require.NoError(t, err)
	assert.True(t, full)

	reqs := market.requestsFor("sh600000")
	require.Len(t, reqs, 1)
	assert.Equal(t, window{date(2023, 1, 10), date(2024, 1, 10)}, reqs[0])
	assert.Len(t, market.requestsFor("sh000001"), 1)

	s, err := m.FindOne("000001")
	require.NoError(t, err)
	assert.Equal(t, "平安银行", s.Name)
	assert.Equal(t, date(2024, 1, 10), s.LastQuoteDate())

	stored := countQuotes(t, repo)
	require.NotZero(t, stored)

	// same day again: nothing to fetch, nothing changes
	market.resetRequests()
	full, err = m.PickData(context.Background(), 4, false)
	require.NoError(t, err)
	assert.True(t, full)
	assert.Empty(t, market.requestsFor("sh600000"))
	assert.Equal(t, stored, countQuotes(t, repo))
}

func TestPickDataIncremental(t *testing.T) {
	market := newFakeMarket()
	m, repo := newTestManager(t, market, cstTime(2024, 1, 10, 16, 0))

	_, err := m.PickData(context.Background(), 2, false)
	require.NoError(t, err)
	before := countQuotes(t, repo)

	m.Now = func() time.Time { return cstTime(2024, 1, 11, 16, 0) }
	market.resetRequests()
	full, err := m.PickData(context.Background(), 2, false)
	require.NoError(t, err)
	assert.True(t, full)

	assert.Equal(t, []window{{date(2024, 1, 11), date(2024, 1, 11)}}, market.requestsFor("sz000001"))
	// two stocks and six indexes gained one bar each
	assert.Equal(t, before+8, countQuotes(t, repo))
}

func TestPickDataSkipsSuspended(t *testing.T) {
	market := newFakeMarket()
	market.lastBar["sh600000"] = date(2024, 1, 8)
	m, _ := newTestManager(t, market, cstTime(2024, 1, 10, 16, 0))

	_, err := m.PickData(context.Background(), 2, false)
	require.NoError(t, err)

	s, err := m.FindOne("sh600000")
	require.NoError(t, err)
	assert.Equal(t, date(2024, 1, 8), s.LastQuoteDate())

	market.resetRequests()
	m.Now = func() time.Time { return cstTime(2024, 1, 10, 20, 0) }
	_, err = m.PickData(context.Background(), 2, false)
	require.NoError(t, err)
	assert.Empty(t, market.requestsFor("sh600000"))
}

func TestPickDataFailuresAreReported(t *testing.T) {
	market := newFakeMarket()
	market.broken["sz000001"] = true
	m, _ := newTestManager(t, market, cstTime(2024, 1, 10, 16, 0))

	full, err := m.PickData(context.Background(), 2, false)
	require.NoError(t, err)
	assert.False(t, full)

	// failed with no history: gone from memory
	_, err = m.FindOne("sz000001")
	assert.ErrorIs(t, err, ErrUnknownStock)
	assert.Len(t, market.requestsFor("sz000001"), 2)
	assert.Len(t, m.ListAvailable(), 1)
}

func TestPickDataForceRefetches(t *testing.T) {
	market := newFakeMarket()
	now := cstTime(2024, 1, 10, 16, 0)
	m, repo := newTestManager(t, market, now)

	_, err := m.PickData(context.Background(), 2, false)
	require.NoError(t, err)
	stored := countQuotes(t, repo)

	market.resetRequests()
	_, err = m.PickData(context.Background(), 2, true)
	require.NoError(t, err)
	assert.Equal(t, []window{{date(2023, 1, 10), date(2024, 1, 10)}}, market.requestsFor("sh600000"))
	assert.Equal(t, stored, countQuotes(t, repo))
}

func TestLoadFromDBAndDrop(t *testing.T) {
	market := newFakeMarket()
	m, repo := newTestManager(t, market, cstTime(2024, 1, 10, 16, 0))
	_, err := m.PickData(context.Background(), 2, false)
	require.NoError(t, err)

	other, err := New(testConfig(), repo, market)
	require.NoError(t, err)
	require.NoError(t, other.LoadFromDB())
	assert.Len(t, other.ListAvailable(), 2)
	idx, ok := other.Index("sh000001")
	require.True(t, ok)
	assert.Equal(t, "上证指数", idx.Name)
	assert.NotEmpty(t, idx.History)

	s, err := other.FindOne("浦发银行")
	require.NoError(t, err)
	assert.Equal(t, "sh600000", s.Symbol)

	require.NoError(t, other.Drop())
	assert.Empty(t, other.ListAll())
}
