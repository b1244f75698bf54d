package cmd

import (
	"context"
	"fmt"

	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/datamanager"
	"github.com/jing2uo/rufeng/monitor"
	"github.com/jing2uo/rufeng/source"
)

// Monitor watches the configured stocks until ctx is cancelled. It needs
// no database.
func Monitor(ctx context.Context, cfg *config.Config) error {
	cal, err := datamanager.CalendarFromConfig(cfg)
	if err != nil {
		return err
	}

	m, err := monitor.New(cfg.Monitor, source.NewRealtime(cfg), cal)
	if err != nil {
		return err
	}
	m.Notify = func(a monitor.Alert) {
		fmt.Printf("🔔 %s %s\n", a.Time.In(datamanager.CST).Format("15:04:05"), a)
	}

	fmt.Printf("👀 开始监控 %d 只股票, 间隔 %s\n", len(m.Symbols()), cfg.Monitor.Interval)
	return m.Run(ctx)
}
