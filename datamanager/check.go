package datamanager

import (
	"fmt"
	"time"

	"github.com/jing2uo/rufeng/calc"
	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/model"
)

type IssueKind string

const (
	IssueStale         IssueKind = "stale"
	IssueUnknownDate   IssueKind = "unknown_date"
	IssueBadPrice      IssueKind = "bad_price"
	IssueIndexMismatch IssueKind = "index_mismatch"
	IssueNoIndex       IssueKind = "no_index"
)

type Issue struct {
	Symbol string
	Kind   IssueKind
	Detail string
}

type CheckReport struct {
	Checked     int
	Suspensions int
	Issues      []Issue
}

func (r *CheckReport) OK() bool {
	return len(r.Issues) == 0
}

func (r *CheckReport) add(symbol string, kind IssueKind, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Symbol: symbol, Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

// Check inspects the in-memory data: stale series, bars on days the market
// index did not trade, non-positive or inverted prices and reference
// indexes that disagree on the trading calendar.
func (m *Manager) Check(now time.Time) *CheckReport {
	report := &CheckReport{}
	updateTo := m.cal.LastCompleteTradeDay(now)

	ref, hasRef := m.indexes[m.cfg.Analyzer.MarketIndex]
	if !hasRef || len(ref.History) == 0 {
		report.add(m.cfg.Analyzer.MarketIndex, IssueNoIndex, "reference index has no data")
		hasRef = false
	}

	for _, idx := range m.Indexes() {
		report.Checked++
		checkBars(report, idx.Symbol, idx.History)
		m.checkStale(report, idx, updateTo)
		if hasRef && idx != ref {
			if diff := calendarDiff(ref.History, idx.History); diff != "" {
				report.add(idx.Symbol, IssueIndexMismatch, "calendar differs from %s: %s", ref.Symbol, diff)
			}
		}
	}

	for _, s := range m.ListAll() {
		report.Checked++
		checkBars(report, s.Symbol, s.History)
		m.checkStale(report, s, updateTo)
		if !hasRef {
			continue
		}
		suspensions, unknown := calc.FindGaps(s.History, ref.History)
		report.Suspensions += len(suspensions)
		if len(unknown) > 0 {
			report.add(s.Symbol, IssueUnknownDate, "%d bars on days %s did not trade, first %s",
				len(unknown), ref.Symbol, unknown[0].Format("2006-01-02"))
		}
	}

	m.log.WithFields(logger.Fields{
		"checked":     report.Checked,
		"issues":      len(report.Issues),
		"suspensions": report.Suspensions,
	}).Info("data check finished")
	return report
}

func (m *Manager) checkStale(report *CheckReport, sec model.Security, updateTo time.Time) {
	base := sec.Common()
	last := base.LastQuoteDate()
	if last.IsZero() {
		report.add(base.Symbol, IssueStale, "no history")
		return
	}
	if last.Before(updateTo) && (base.LastUpdate.IsZero() || !base.LastUpdate.After(m.cal.CloseOf(updateTo))) {
		report.add(base.Symbol, IssueStale, "last bar %s, expected %s", last.Format("2006-01-02"), updateTo.Format("2006-01-02"))
	}
}

func checkBars(report *CheckReport, symbol string, bars []model.Quote) {
	for _, q := range bars {
		if q.Open <= 0 || q.High <= 0 || q.Low <= 0 || q.Close <= 0 {
			report.add(symbol, IssueBadPrice, "non-positive price on %s", q.Date.Format("2006-01-02"))
			return
		}
		if q.High < q.Low {
			report.add(symbol, IssueBadPrice, "high below low on %s", q.Date.Format("2006-01-02"))
			return
		}
	}
}

// calendarDiff compares the dates both series cover. A series that merely
// ends early is left to the staleness check.
func calendarDiff(a, b []model.Quote) string {
	if len(a) == 0 || len(b) == 0 {
		return ""
	}
	from, to := a[0].Date, a[len(a)-1].Date
	if b[0].Date.After(from) {
		from = b[0].Date
	}
	if last := b[len(b)-1].Date; last.Before(to) {
		to = last
	}
	within := func(d time.Time) bool {
		return !d.Before(from) && !d.After(to)
	}

	inA := make(map[time.Time]bool, len(a))
	for _, q := range a {
		if within(q.Date) {
			inA[model.Day(q.Date)] = true
		}
	}
	extra := 0
	for _, q := range b {
		if !within(q.Date) {
			continue
		}
		d := model.Day(q.Date)
		if inA[d] {
			delete(inA, d)
		} else {
			extra++
		}
	}
	if extra == 0 && len(inA) == 0 {
		return ""
	}
	return fmt.Sprintf("%d extra, %d missing", extra, len(inA))
}
