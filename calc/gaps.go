package calc

import (
	"sort"
	"time"

	"github.com/jing2uo/rufeng/model"
)

// Suspension is a run of index trading days without a bar for the stock.
type Suspension struct {
	From time.Time // last bar before the gap
	To   time.Time // first bar after the gap
	Days int
}

// FindGaps compares a stock's bars against a reference index calendar.
// It returns suspensions inside the stock's range and the stock dates the
// index does not know about, which usually means bad data.
func FindGaps(stock []model.Quote, index []model.Quote) ([]Suspension, []time.Time) {
	if len(stock) == 0 || len(index) == 0 {
		return nil, nil
	}

	calendar := make([]time.Time, len(index))
	known := make(map[time.Time]bool, len(index))
	for i, q := range index {
		d := model.Day(q.Date)
		calendar[i] = d
		known[d] = true
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })

	var unknown []time.Time
	for _, q := range stock {
		if !known[model.Day(q.Date)] {
			unknown = append(unknown, model.Day(q.Date))
		}
	}

	var gaps []Suspension
	for i := 1; i < len(stock); i++ {
		from, to := model.Day(stock[i-1].Date), model.Day(stock[i].Date)
		lo := sort.Search(len(calendar), func(k int) bool { return calendar[k].After(from) })
		hi := sort.Search(len(calendar), func(k int) bool { return !calendar[k].Before(to) })
		if days := hi - lo; days > 0 {
			gaps = append(gaps, Suspension{From: from, To: to, Days: days})
		}
	}
	return gaps, unknown
}
