package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/datamanager"
	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/source"
	"github.com/jing2uo/rufeng/utils"
	"github.com/robfig/cron/v3"
)

type AlertKind string

const (
	AlertHigh AlertKind = "high"
	AlertLow  AlertKind = "low"
	AlertUp   AlertKind = "up"
	AlertDown AlertKind = "down"
)

type Alert struct {
	Symbol        string
	Name          string
	Kind          AlertKind
	Price         float64
	ChangePercent float64
	Threshold     float64
	Time          time.Time
}

func (a Alert) String() string {
	switch a.Kind {
	case AlertHigh:
		return fmt.Sprintf("%s(%s) price %.2f above %.2f", a.Symbol, a.Name, a.Price, a.Threshold)
	case AlertLow:
		return fmt.Sprintf("%s(%s) price %.2f below %.2f", a.Symbol, a.Name, a.Price, a.Threshold)
	case AlertUp:
		return fmt.Sprintf("%s(%s) up %.2f%% reaching %.2f%%", a.Symbol, a.Name, a.ChangePercent, a.Threshold)
	default:
		return fmt.Sprintf("%s(%s) down %.2f%% reaching %.2f%%", a.Symbol, a.Name, a.ChangePercent, a.Threshold)
	}
}

// Clock tells whether the market is in session.
type Clock interface {
	IsTradingNow(now time.Time) bool
}

// Monitor polls realtime ticks for a watchlist and raises each alert at
// most once per symbol, kind and day.
type Monitor struct {
	src         source.RealtimeSource
	clock       Clock
	rules       map[string]config.WatchRule
	symbols     []string
	interval    time.Duration
	ignoreHours bool
	log         *logger.Entry

	Now    func() time.Time
	Notify func(Alert)

	mu    sync.Mutex
	fired map[string]struct{}
}

func New(cfg config.MonitorConfig, src source.RealtimeSource, clock Clock) (*Monitor, error) {
	if len(cfg.Stocks) == 0 {
		return nil, fmt.Errorf("monitor.stocks is empty")
	}

	rules := make(map[string]config.WatchRule, len(cfg.Stocks))
	for code, rule := range cfg.Stocks {
		symbol, ok := utils.NormalizeSymbol(code)
		if !ok {
			return nil, fmt.Errorf("monitor.stocks: invalid code %q", code)
		}
		rules[symbol] = rule
	}
	symbols := make([]string, 0, len(rules))
	for s := range rules {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	interval := cfg.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	return &Monitor{
		src:         src,
		clock:       clock,
		rules:       rules,
		symbols:     symbols,
		interval:    interval,
		ignoreHours: cfg.IgnoreTradingHours,
		log:         logger.GetLogger().WithComponent("monitor"),
		Now:         time.Now,
		fired:       make(map[string]struct{}),
	}, nil
}

func (m *Monitor) Symbols() []string {
	return append([]string(nil), m.symbols...)
}

// Check fetches one round of ticks and returns the alerts not raised yet
// today.
func (m *Monitor) Check(ctx context.Context) ([]Alert, error) {
	ticks, err := m.src.FetchTicks(ctx, m.symbols)
	if err != nil {
		return nil, err
	}

	now := m.Now()
	var alerts []Alert
	for _, tick := range ticks {
		rule, ok := m.rules[tick.Symbol]
		if !ok || tick.Price <= 0 {
			continue
		}
		for _, a := range evaluate(tick, rule) {
			a.Time = now
			if m.markFired(a, now) {
				alerts = append(alerts, a)
			}
		}
	}
	return alerts, nil
}

func evaluate(tick model.Tick, rule config.WatchRule) []Alert {
	var alerts []Alert
	base := Alert{Symbol: tick.Symbol, Name: tick.Name, Price: tick.Price, ChangePercent: tick.ChangePercent()}

	if rule.High != nil && tick.Price > *rule.High {
		a := base
		a.Kind, a.Threshold = AlertHigh, *rule.High
		alerts = append(alerts, a)
	}
	if rule.Low != nil && tick.Price < *rule.Low {
		a := base
		a.Kind, a.Threshold = AlertLow, *rule.Low
		alerts = append(alerts, a)
	}
	if rule.UpPercent != nil && base.ChangePercent >= *rule.UpPercent {
		a := base
		a.Kind, a.Threshold = AlertUp, *rule.UpPercent
		alerts = append(alerts, a)
	}
	if rule.DownPercent != nil && base.ChangePercent <= *rule.DownPercent {
		a := base
		a.Kind, a.Threshold = AlertDown, *rule.DownPercent
		alerts = append(alerts, a)
	}
	return alerts
}

func (m *Monitor) markFired(a Alert, now time.Time) bool {
	// 按交易所日期去重
	key := fmt.Sprintf("%s/%s/%s", a.Symbol, a.Kind, now.In(datamanager.CST).Format("2006-01-02"))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.fired[key]; done {
		return false
	}
	m.fired[key] = struct{}{}
	return true
}

func (m *Monitor) tick(ctx context.Context) {
	if !m.ignoreHours && !m.clock.IsTradingNow(m.Now()) {
		return
	}
	alerts, err := m.Check(ctx)
	if err != nil {
		m.log.WithError(err).Warn("failed to fetch ticks")
		return
	}
	for _, a := range alerts {
		m.log.WithFields(logger.Fields{"symbol": a.Symbol, "kind": a.Kind}).Warn(a.String())
		if m.Notify != nil {
			m.Notify(a)
		}
	}
}

// Run polls every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", m.interval), func() { m.tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule monitor: %w", err)
	}

	m.log.WithFields(logger.Fields{"symbols": len(m.symbols), "interval": m.interval.String()}).Info("monitor started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	m.log.Info("monitor stopped")
	return nil
}
