package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jing2uo/rufeng/datamanager"
	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/workflow"
	"github.com/robfig/cron/v3"
)

// RunDaily executes the daily workflow once.
func RunDaily(ctx context.Context, env *Env, threads int, offline bool) error {
	executor := workflow.NewTaskExecutor(env.Repo, workflow.DefaultTasks())

	args := &workflow.TaskArgs{
		Config:    env.Config,
		Manager:   env.Manager,
		Threads:   threadsOr(threads, env.Config.Crawler.PoolSize),
		Offline:   offline,
		OutputDir: env.Config.Core.OutputDir,
		Today:     GetToday(),
	}

	results, err := executor.Run(ctx, workflow.DailyTasks, args)
	for _, name := range workflow.DailyTasks {
		if r, ok := results[name]; ok {
			fmt.Printf("  %-16s %-10s %s\n", name, r.State, r.Message)
		}
	}
	if err != nil {
		return fmt.Errorf("workflow execution failed: %w", err)
	}

	fmt.Println("🚀 今日任务执行成功")
	return nil
}

// Cron runs the daily workflow on schedule.update_cron until ctx is done.
// The expression has a leading seconds field and is read in CST.
func Cron(ctx context.Context, env *Env, threads int) error {
	log := logger.GetLogger().WithComponent("cron")
	spec := env.Config.Schedule.UpdateCron

	c := cron.New(cron.WithSeconds(), cron.WithLocation(datamanager.CST), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := c.AddFunc(spec, func() {
		if err := RunDaily(ctx, env, threads, false); err != nil {
			log.WithError(err).Error("daily workflow failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	next := c.Entry(id).Schedule.Next(GetToday())
	c.Start()
	fmt.Printf("⏰ 定时任务已启动 [%s], 下次执行 %s\n", strings.TrimSpace(spec), next.Format("2006-01-02 15:04:05"))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
