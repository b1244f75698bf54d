package analyzer

import (
	"fmt"
	"strings"

	"github.com/jing2uo/rufeng/calc"
	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/model"
)

// Input is what every filter sees for one stock.
type Input struct {
	Stock *model.Stock
	// QFQ is the forward adjusted history, date ascending.
	QFQ []model.Quote
}

// Filter is one predicate of the chain. Check returns an empty reason when
// the stock passes.
type Filter struct {
	Name  string
	Check func(in Input) (reason string, err error)
}

// BuildFilters returns the chain in evaluation order. Filters whose
// threshold is unset are left out.
func BuildFilters(cfg config.AnalyzerConfig) []Filter {
	var filters []Filter
	add := func(name string, enabled bool, check func(in Input) (string, error)) {
		if enabled {
			filters = append(filters, Filter{Name: name, Check: check})
		}
	}

	add("min_hist_data", cfg.MinHistData != nil, func(in Input) (string, error) {
		if n := len(in.Stock.History); n < *cfg.MinHistData {
			return fmt.Sprintf("history has %d bars, need %d", n, *cfg.MinHistData), nil
		}
		return "", nil
	})

	add("exclude_st", cfg.ExcludeST, func(in Input) (string, error) {
		if in.Stock.IsST() {
			return fmt.Sprintf("%s is under special treatment", in.Stock.Name), nil
		}
		return "", nil
	})

	add("exclude_gem", cfg.ExcludeGEM, func(in Input) (string, error) {
		if strings.HasPrefix(in.Stock.Code, "300") || strings.HasPrefix(in.Stock.Code, "301") {
			return "listed on GEM", nil
		}
		return "", nil
	})

	add("exclude_star", cfg.ExcludeSTAR, func(in Input) (string, error) {
		if strings.HasPrefix(in.Stock.Code, "688") || strings.HasPrefix(in.Stock.Code, "689") {
			return "listed on STAR market", nil
		}
		return "", nil
	})

	add("max_price", cfg.MaxPrice != nil, func(in Input) (string, error) {
		if p := in.Stock.CurrentPrice(); p > *cfg.MaxPrice {
			return fmt.Sprintf("price %.2f above %.2f", p, *cfg.MaxPrice), nil
		}
		return "", nil
	})

	// nmc is stored in 万元, the threshold is in 亿
	add("max_nmc", cfg.MaxNMC != nil, func(in Input) (string, error) {
		if nmc := in.Stock.NMC / 10000; nmc > *cfg.MaxNMC {
			return fmt.Sprintf("circulating market value %.2f亿 above %.2f亿", nmc, *cfg.MaxNMC), nil
		}
		return "", nil
	})

	add("max_pe", cfg.MaxPE != nil || cfg.ExcludeLoss, func(in Input) (string, error) {
		pe := in.Stock.PE
		if cfg.ExcludeLoss && pe <= 0 {
			return fmt.Sprintf("P/E %.2f, not profitable", pe), nil
		}
		if cfg.MaxPE != nil && pe > *cfg.MaxPE {
			return fmt.Sprintf("P/E %.2f above %.2f", pe, *cfg.MaxPE), nil
		}
		return "", nil
	})

	add("min_d5_turnover_avg", cfg.MinD5TurnoverAvg != nil, func(in Input) (string, error) {
		avg, err := calc.TurnoverAvg(in.Stock.History, 5)
		if err != nil {
			return "", fmt.Errorf("5 day turnover: %w", err)
		}
		if avg < *cfg.MinD5TurnoverAvg {
			return fmt.Sprintf("5 day turnover avg %.2f%% below %.2f%%", avg, *cfg.MinD5TurnoverAvg), nil
		}
		return "", nil
	})

	add("position", cfg.MaxPosition != nil || cfg.MinPosition != nil, func(in Input) (string, error) {
		pos, low, err := Position(in, cfg.PositionWindow)
		if err != nil {
			return "", err
		}
		if cfg.MaxPosition != nil && pos > *cfg.MaxPosition {
			return fmt.Sprintf("position %.2f above %.2f (%d day low %.2f)", pos, *cfg.MaxPosition, cfg.PositionWindow, low), nil
		}
		if cfg.MinPosition != nil && pos < *cfg.MinPosition {
			return fmt.Sprintf("position %.2f below %.2f (%d day low %.2f)", pos, *cfg.MinPosition, cfg.PositionWindow, low), nil
		}
		return "", nil
	})

	add("ma_bullish", cfg.RequireMABullish, func(in Input) (string, error) {
		closes := calc.Closes(in.QFQ)
		ma5, err := calc.SMA(closes, 5)
		if err != nil {
			return "", fmt.Errorf("ma5: %w", err)
		}
		ma10, err := calc.SMA(closes, 10)
		if err != nil {
			return "", fmt.Errorf("ma10: %w", err)
		}
		ma20, err := calc.SMA(closes, 20)
		if err != nil {
			return "", fmt.Errorf("ma20: %w", err)
		}
		if !(ma5 > ma10 && ma10 > ma20) {
			return fmt.Sprintf("MA not bullish: ma5 %.2f ma10 %.2f ma20 %.2f", ma5, ma10, ma20), nil
		}
		return "", nil
	})

	return filters
}

// Position compares the current price with the lowest adjusted close of
// the window bars before the latest one.
func Position(in Input, window int) (pos, low float64, err error) {
	bars := in.QFQ
	if len(bars) > 1 {
		bars = bars[:len(bars)-1]
	}
	low, err = calc.WindowMin(bars, window)
	if err != nil {
		return 0, 0, fmt.Errorf("%d day low: %w", window, err)
	}
	pos, err = calc.Position(in.Stock.CurrentPrice(), low)
	if err != nil {
		return 0, 0, err
	}
	return pos, low, nil
}
