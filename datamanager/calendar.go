package datamanager

import (
	"time"

	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/source"
)

// CST is the exchange time zone.
var CST = time.FixedZone("CST", 8*3600)

// Calendar knows the trading days and sessions of the A-share market.
// Trading days are weekdays that are not configured holidays.
type Calendar struct {
	holidays  map[time.Time]struct{}
	closeHour int
}

func NewCalendar(holidays []time.Time, closeHour int) *Calendar {
	if closeHour <= 0 {
		closeHour = 15
	}
	c := &Calendar{holidays: make(map[time.Time]struct{}, len(holidays)), closeHour: closeHour}
	for _, h := range holidays {
		c.holidays[model.Day(h)] = struct{}{}
	}
	return c
}

// localDay is the exchange date of t as a UTC midnight.
func localDay(t time.Time) time.Time {
	return model.Day(t.In(CST))
}

// IsTradingDay takes a stored date (UTC midnight) or any instant, which is
// first moved to exchange time.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	if d.Location() != time.UTC {
		d = localDay(d)
	}
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[model.Day(d)]
	return !holiday
}

// IsTradingNow reports whether now falls into a continuous auction session.
func (c *Calendar) IsTradingNow(now time.Time) bool {
	local := now.In(CST)
	if !c.IsTradingDay(localDay(now)) {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	morning := minutes >= 9*60+30 && minutes < 11*60+30
	afternoon := minutes >= 13*60 && minutes < c.closeHour*60
	return morning || afternoon
}

// CloseOf is the market close of date d as an instant.
func (c *Calendar) CloseOf(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, c.closeHour, 0, 0, 0, CST)
}

// PrevTradingDay is the trading day strictly before d.
func (c *Calendar) PrevTradingDay(d time.Time) time.Time {
	d = model.Day(d)
	for {
		d = d.AddDate(0, 0, -1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}

// LastCompleteTradeDay is today once today's session has closed, otherwise
// the previous trading day.
func (c *Calendar) LastCompleteTradeDay(now time.Time) time.Time {
	today := localDay(now)
	if c.IsTradingDay(today) && !now.Before(c.CloseOf(today)) {
		return today
	}
	return c.PrevTradingDay(today)
}

// CalendarFromConfig uses calendar.holidays plus the holidays of the TDX
// install at core.tdx_dir, if any.
func CalendarFromConfig(cfg *config.Config) (*Calendar, error) {
	holidays, err := cfg.Calendar.HolidayDates()
	if err != nil {
		return nil, err
	}
	if cfg.Core.TdxDir != "" {
		tdx, err := source.ReadTdxHolidays(cfg.Core.TdxDir)
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, tdx...)
	}
	return NewCalendar(holidays, cfg.Calendar.CloseHour), nil
}
