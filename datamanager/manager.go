package datamanager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/crawler"
	"github.com/jing2uo/rufeng/database"
	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/source"
	"github.com/jing2uo/rufeng/utils"
)

var ErrUnknownStock = errors.New("unknown stock")

// ReferenceIndexes are crawled alongside the stocks.
var ReferenceIndexes = []struct {
	Symbol string
	Name   string
}{
	{"sh000001", "上证指数"},
	{"sz399001", "深证成指"},
	{"sh000300", "沪深300"},
	{"sh000016", "上证50"},
	{"sz399005", "中小板指"},
	{"sz399006", "创业板指"},
}

// Manager keeps the in-memory stock set in sync with the store and the
// remote source.
type Manager struct {
	cfg  *config.Config
	repo database.DataRepository
	src  source.Source
	cal  *Calendar
	log  *logger.Entry

	// Now is the clock, replaced in tests.
	Now func() time.Time

	stocks  map[string]*model.Stock
	indexes map[string]*model.Index
}

func New(cfg *config.Config, repo database.DataRepository, src source.Source) (*Manager, error) {
	cal, err := CalendarFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		repo:    repo,
		src:     src,
		cal:     cal,
		log:     logger.GetLogger().WithComponent("datamanager"),
		Now:     time.Now,
		stocks:  make(map[string]*model.Stock),
		indexes: make(map[string]*model.Index),
	}, nil
}

func (m *Manager) Calendar() *Calendar {
	return m.cal
}

func (m *Manager) Repo() database.DataRepository {
	return m.repo
}

// Plan decides the window to fetch for sec so that its history reaches
// updateTo. ok is false when nothing needs fetching.
//
//   - no stored quotes: the full window of data_period years
//   - last stored quote on or after updateTo: skip
//   - updated after the close of updateTo (suspended): skip
//   - otherwise the day after the last stored quote up to updateTo
func (m *Manager) Plan(sec model.Security, updateTo time.Time) (start, end time.Time, ok bool) {
	base := sec.Common()
	updateTo = model.Day(updateTo)

	last := base.LastQuoteDate()
	if last.IsZero() {
		return updateTo.AddDate(-m.cfg.Core.DataPeriod, 0, 0), updateTo, true
	}
	if !last.Before(updateTo) {
		return time.Time{}, time.Time{}, false
	}
	if !base.LastUpdate.IsZero() && base.LastUpdate.After(m.cal.CloseOf(updateTo)) {
		return time.Time{}, time.Time{}, false
	}
	return last.AddDate(0, 0, 1), updateTo, true
}

// LoadFromDB replaces the in-memory set with what is stored.
func (m *Manager) LoadFromDB() error {
	stocks, err := m.repo.ReadAllStocks()
	if err != nil {
		return fmt.Errorf("failed to load stocks: %w", err)
	}
	indexes, err := m.repo.ReadAllIndexes()
	if err != nil {
		return fmt.Errorf("failed to load indexes: %w", err)
	}
	quotes, err := m.repo.ReadAllQuotes(nil)
	if err != nil {
		return fmt.Errorf("failed to load quotes: %w", err)
	}

	m.stocks = make(map[string]*model.Stock, len(stocks))
	for _, s := range stocks {
		s.History = quotes[s.Symbol]
		m.stocks[s.Symbol] = s
	}
	m.indexes = make(map[string]*model.Index, len(indexes))
	for _, idx := range indexes {
		idx.History = quotes[idx.Symbol]
		m.indexes[idx.Symbol] = idx
	}

	m.log.WithFields(logger.Fields{"stocks": len(m.stocks), "indexes": len(m.indexes)}).Debug("loaded from store")
	return nil
}

// PickData brings every listed stock and the reference indexes up to the
// last complete trade day. It reports whether every task succeeded. force
// ignores local history and fetches the full window again.
func (m *Manager) PickData(ctx context.Context, threads int, force bool) (bool, error) {
	started := m.Now()
	updateTo := m.cal.LastCompleteTradeDay(started)
	log := m.log.WithFields(logger.Fields{"update_to": updateTo.Format("2006-01-02"), "force": force})

	listed, err := m.src.ListStocks(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list stocks: %w", err)
	}

	if !force {
		if err := m.LoadFromDB(); err != nil {
			return false, err
		}
	}
	stored, storedIdx := m.stocks, m.indexes
	if force {
		stored, storedIdx = map[string]*model.Stock{}, map[string]*model.Index{}
	}

	m.stocks = make(map[string]*model.Stock, len(listed))
	for _, s := range listed {
		s.Name = source.NormalizeName(s.Name)
		if old, ok := stored[s.Symbol]; ok {
			s.History = old.History
			s.LastUpdate = old.LastUpdate
			if s.Price == 0 {
				s.Price = old.Price
			}
		}
		m.stocks[s.Symbol] = s
	}

	m.indexes = make(map[string]*model.Index, len(ReferenceIndexes))
	for _, ref := range ReferenceIndexes {
		idx := &model.Index{Base: model.Base{Symbol: ref.Symbol, Code: ref.Symbol[2:], Name: ref.Name}}
		if old, ok := storedIdx[ref.Symbol]; ok {
			idx.History = old.History
			idx.LastUpdate = old.LastUpdate
			idx.Price = old.Price
		}
		m.indexes[ref.Symbol] = idx
	}

	for _, s := range m.ListAll() {
		if err := m.repo.WriteStock(s); err != nil {
			return false, fmt.Errorf("failed to save stock %s: %w", s.Symbol, err)
		}
	}
	if err := m.repo.Commit(); err != nil {
		return false, fmt.Errorf("failed to save stock list: %w", err)
	}

	var tasks []model.CrawlTask
	for _, idx := range m.Indexes() {
		if start, end, ok := m.Plan(idx, updateTo); ok {
			tasks = append(tasks, model.CrawlTask{Security: idx, Start: start, End: end})
		}
	}
	for _, s := range m.ListAll() {
		if start, end, ok := m.Plan(s, updateTo); ok {
			tasks = append(tasks, model.CrawlTask{Security: s, Start: start, End: end})
		}
	}

	log.WithFields(logger.Fields{"listed": len(listed), "tasks": len(tasks)}).Info("sync planned")

	dataFull := true
	if len(tasks) > 0 {
		dataFull, err = m.crawl(ctx, tasks, threads)
		if err != nil {
			return false, err
		}
	}

	for symbol, s := range m.stocks {
		if len(s.History) == 0 {
			delete(m.stocks, symbol)
		}
	}

	logger.LogPerformanceEntry(log, "pick_data", m.Now().Sub(started), logger.Fields{
		"stocks":    len(m.stocks),
		"data_full": dataFull,
	})
	return dataFull, nil
}

func (m *Manager) crawl(ctx context.Context, tasks []model.CrawlTask, threads int) (bool, error) {
	workers := min(threads, max(1, len(tasks)/2))
	if workers < 1 {
		workers = 1
	}

	c := crawler.New(m.src, m.repo, crawler.Options{
		PoolSize: workers,
		Retry: crawler.RetryPolicy{
			MaxAttempts: m.cfg.Crawler.MaxAttempts,
			Backoff:     m.cfg.Crawler.Backoff,
			MaxBackoff:  m.cfg.Crawler.MaxBackoff,
			Factor:      2,
			Jitter:      true,
		},
		Now: m.Now,
	})
	for _, t := range tasks {
		c.AddStock(t.Security, t.Start, t.End)
	}

	crawlCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.Start(crawlCtx); err != nil {
		return false, err
	}

	timeout := m.cfg.Crawler.PollTimeout
	if err := c.Poll(timeout); err != nil {
		// stop handing out tasks and let the writer flush what it has
		cancel()
		for c.Poll(timeout) != nil {
		}
		return false, fmt.Errorf("sync incomplete, %d tasks left: %w", c.RemainCount(), err)
	}

	failed := c.Failed()
	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, t := range failed {
			names = append(names, t.Symbol())
		}
		sort.Strings(names)
		m.log.WithFields(logger.Fields{"failed": len(failed)}).Warnf("failed to update: %s", strings.Join(names, ","))
	}
	return len(failed) == 0 && c.RemainCount() == 0, nil
}

// FindOne looks a stock up by symbol, bare code or exact name.
func (m *Manager) FindOne(code string) (*model.Stock, error) {
	if symbol, ok := utils.NormalizeSymbol(code); ok {
		if s, found := m.stocks[symbol]; found {
			return s, nil
		}
	}
	name := source.NormalizeName(code)
	for _, s := range m.ListAll() {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStock, code)
}

// ListAll returns every stock in memory sorted by symbol.
func (m *Manager) ListAll() []*model.Stock {
	out := make([]*model.Stock, 0, len(m.stocks))
	for _, s := range m.stocks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ListAvailable returns the stocks that have history, sorted by symbol.
func (m *Manager) ListAvailable() []*model.Stock {
	all := m.ListAll()
	out := all[:0]
	for _, s := range all {
		if len(s.History) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) Indexes() []*model.Index {
	out := make([]*model.Index, 0, len(m.indexes))
	for _, idx := range m.indexes {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *Manager) Index(symbol string) (*model.Index, bool) {
	idx, ok := m.indexes[symbol]
	return idx, ok
}

// Drop removes every table and view and forgets the in-memory set.
func (m *Manager) Drop() error {
	if err := m.repo.DropSchema(); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	m.stocks = make(map[string]*model.Stock)
	m.indexes = make(map[string]*model.Index)
	m.log.Warn("all stored data dropped")
	return nil
}
