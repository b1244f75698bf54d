package datamanager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cstTime(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, CST)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	cal := NewCalendar([]time.Time{date(2024, 10, 1)}, 15)

	assert.True(t, cal.IsTradingDay(date(2024, 9, 30)))
	assert.False(t, cal.IsTradingDay(date(2024, 10, 1)), "holiday")
	assert.False(t, cal.IsTradingDay(date(2024, 9, 28)), "saturday")
	assert.False(t, cal.IsTradingDay(date(2024, 9, 29)), "sunday")

	// 2024-09-29 23:00 UTC is already Monday in exchange time
	assert.True(t, cal.IsTradingDay(time.Date(2024, 9, 29, 23, 0, 0, 0, time.FixedZone("X", 0))))
}

func TestLastCompleteTradeDay(t *testing.T) {
	cal := NewCalendar([]time.Time{date(2024, 1, 1)}, 15)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"after close", cstTime(2024, 1, 10, 15, 0), date(2024, 1, 10)},
		{"before close", cstTime(2024, 1, 10, 14, 59), date(2024, 1, 9)},
		{"monday morning", cstTime(2024, 1, 8, 9, 0), date(2024, 1, 5)},
		{"saturday", cstTime(2024, 1, 6, 12, 0), date(2024, 1, 5)},
		{"sunday", cstTime(2024, 1, 7, 20, 0), date(2024, 1, 5)},
		{"after holiday", cstTime(2024, 1, 2, 10, 0), date(2023, 12, 29)},
		{"utc evening is next day", time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC), date(2024, 1, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.LastCompleteTradeDay(tt.now))
		})
	}
}

func TestIsTradingNow(t *testing.T) {
	cal := NewCalendar(nil, 15)

	assert.False(t, cal.IsTradingNow(cstTime(2024, 1, 10, 9, 29)))
	assert.True(t, cal.IsTradingNow(cstTime(2024, 1, 10, 9, 30)))
	assert.True(t, cal.IsTradingNow(cstTime(2024, 1, 10, 11, 29)))
	assert.False(t, cal.IsTradingNow(cstTime(2024, 1, 10, 12, 0)))
	assert.True(t, cal.IsTradingNow(cstTime(2024, 1, 10, 14, 59)))
	assert.False(t, cal.IsTradingNow(cstTime(2024, 1, 10, 15, 0)))
	assert.False(t, cal.IsTradingNow(cstTime(2024, 1, 13, 10, 0)))
}

func TestCloseOf(t *testing.T) {
	cal := NewCalendar(nil, 15)
	assert.True(t, cal.CloseOf(date(2024, 1, 10)).Equal(time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC)))
}

func TestCalendarFromConfig(t *testing.T) {
	home := t.TempDir()
	hq := filepath.Join(home, "T0002", "hq_cache")
	require.NoError(t, os.MkdirAll(hq, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hq, "needini.dat"), []byte("Y2024=2024,1001,1002\n"), 0644))

	cfg := config.Default()
	cfg.Calendar.Holidays = []string{"2024-01-01"}
	cfg.Core.TdxDir = home

	cal, err := CalendarFromConfig(cfg)
	require.NoError(t, err)
	assert.False(t, cal.IsTradingDay(date(2024, 1, 1)))
	assert.False(t, cal.IsTradingDay(date(2024, 10, 2)))
	assert.True(t, cal.IsTradingDay(date(2024, 10, 8)))

	cfg.Calendar.Holidays = []string{"bad"}
	_, err = CalendarFromConfig(cfg)
	assert.Error(t, err)
}
