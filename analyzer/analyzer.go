package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jing2uo/rufeng/calc"
	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/utils"
)

// Verdict is the outcome for one stock. Filter and Reason are empty for a
// good stock.
type Verdict struct {
	Symbol string
	Name   string
	Good   bool
	Filter string
	Reason string
}

type Result struct {
	Good []Verdict
	Bad  []Verdict

	MarketGood   bool
	MarketReason string
}

type Analyzer struct {
	cfg     config.AnalyzerConfig
	filters []Filter
	log     *logger.Entry
}

func New(cfg config.AnalyzerConfig) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		filters: BuildFilters(cfg),
		log:     logger.GetLogger().WithComponent("analyzer"),
	}
}

// FilterNames lists the enabled filters in evaluation order.
func (a *Analyzer) FilterNames() []string {
	names := make([]string, len(a.filters))
	for i, f := range a.filters {
		names[i] = f.Name
	}
	return names
}

// Evaluate runs the chain for one stock and stops at the first failure.
// A panic inside a filter is reported as a bad verdict.
func (a *Analyzer) Evaluate(s *model.Stock) (v Verdict) {
	v = Verdict{Symbol: s.Symbol, Name: s.Name}
	current := ""
	defer func() {
		if r := recover(); r != nil {
			v.Good = false
			v.Filter = current
			v.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	in := Input{Stock: s, QFQ: calc.QFQ(s.History)}
	for _, f := range a.filters {
		current = f.Name
		reason, err := f.Check(in)
		if err != nil {
			v.Filter, v.Reason = f.Name, err.Error()
			return v
		}
		if reason != "" {
			v.Filter, v.Reason = f.Name, reason
			return v
		}
	}
	v.Good = true
	return v
}

// Analyze classifies every stock on a pool of threads workers. Every input
// ends up in exactly one of Good and Bad, both sorted by symbol.
func (a *Analyzer) Analyze(ctx context.Context, stocks []*model.Stock, market *model.Index, threads int) (*Result, error) {
	started := time.Now()
	if threads < 1 {
		threads = 1
	}

	pipeline := utils.NewPipeline[*model.Stock, Verdict](utils.WithConcurrency(threads))

	result := &Result{}
	_, err := pipeline.Run(ctx, stocks,
		func(ctx context.Context, s *model.Stock) ([]Verdict, error) {
			return []Verdict{a.Evaluate(s)}, nil
		},
		func(rows []Verdict) error {
			for _, v := range rows {
				if v.Good {
					result.Good = append(result.Good, v)
				} else {
					result.Bad = append(result.Bad, v)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze: %w", err)
	}

	sort.Slice(result.Good, func(i, j int) bool { return result.Good[i].Symbol < result.Good[j].Symbol })
	sort.Slice(result.Bad, func(i, j int) bool { return result.Bad[i].Symbol < result.Bad[j].Symbol })

	result.MarketGood, result.MarketReason = MarketStatus(market)

	logger.LogPerformanceEntry(a.log, "analyze", time.Since(started), logger.Fields{
		"stocks": len(stocks),
		"good":   len(result.Good),
		"bad":    len(result.Bad),
		"market": result.MarketGood,
	})
	return result, nil
}

// MarketStatus is good while the index closes above its MA20.
func MarketStatus(index *model.Index) (bool, string) {
	if index == nil || len(index.History) == 0 {
		return false, "no market index data"
	}
	closes := calc.Closes(index.History)
	ma20, err := calc.SMA(closes, 20)
	if err != nil {
		return false, fmt.Sprintf("%s: %v", index.Symbol, err)
	}
	last := closes[len(closes)-1]
	if last <= ma20 {
		return false, fmt.Sprintf("%s close %.2f at or below MA20 %.2f", index.Symbol, last, ma20)
	}
	return true, fmt.Sprintf("%s close %.2f above MA20 %.2f", index.Symbol, last, ma20)
}
