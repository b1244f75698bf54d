package calc

import (
	"math"
	"time"

	"github.com/jing2uo/rufeng/model"
)

// QFQ 前复权: 价格 * factor / 最新 factor, factor 无效时按 1 处理
func QFQ(quotes []model.Quote) []model.Quote {
	out := make([]model.Quote, len(quotes))
	copy(out, quotes)
	if len(quotes) == 0 {
		return out
	}

	latest := quotes[len(quotes)-1].Factor
	if latest <= 0 {
		return out
	}
	for i := range out {
		f := out[i].Factor
		if f <= 0 {
			continue
		}
		ratio := f / latest
		out[i].Open *= ratio
		out[i].High *= ratio
		out[i].Low *= ratio
		out[i].Close *= ratio
	}
	return out
}

type FactorChange struct {
	Date time.Time
	From float64
	To   float64
}

// FactorChanges lists the days where the adjustment factor moved, i.e.
// dividend or split events.
func FactorChanges(quotes []model.Quote) []FactorChange {
	var changes []FactorChange
	for i := 1; i < len(quotes); i++ {
		prev, cur := quotes[i-1].Factor, quotes[i].Factor
		if prev <= 0 || cur <= 0 {
			continue
		}
		if math.Abs(cur-prev) > 1e-6 {
			changes = append(changes, FactorChange{Date: quotes[i].Date, From: prev, To: cur})
		}
	}
	return changes
}
