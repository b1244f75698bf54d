package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jing2uo/rufeng/cmd"
	"github.com/jing2uo/rufeng/config"
	"github.com/spf13/cobra"
)

func main() {
	var configPath, dbURI string

	var rootCmd = &cobra.Command{
		Use:           "rufeng",
		Short:         "A-share stock screening toolkit",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&dbURI, "db", "", "数据库 URI, 如 duckdb://rufeng.duckdb, 覆盖配置文件")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// withEnv opens the store for a subcommand; loaded also reads the
	// stored data into memory.
	withEnv := func(loaded bool, run func(env *cmd.Env) error) error {
		cfg, err := cmd.LoadConfig(configPath, dbURI)
		if err != nil {
			return err
		}
		open := cmd.Open
		if loaded {
			open = cmd.OpenLoaded
		}
		env, err := open(cfg)
		if err != nil {
			return err
		}
		defer env.Close()
		return run(env)
	}

	var threads int
	var force, offline bool

	var downloadCmd = &cobra.Command{
		Use:   "download",
		Short: "Download stock list and daily quotes",
		RunE: func(c *cobra.Command, args []string) error {
			return withEnv(false, func(env *cmd.Env) error {
				return cmd.Download(ctx, env, threads, force)
			})
		},
	}
	downloadCmd.Flags().IntVarP(&threads, "threads", "t", 0, "下载线程数, 默认 crawler.pool_size")
	downloadCmd.Flags().BoolVarP(&force, "all", "a", false, "忽略本地数据, 重新下载全部历史")

	var query string
	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored stocks",
		RunE: func(c *cobra.Command, args []string) error {
			return withEnv(true, func(env *cmd.Env) error {
				return cmd.List(env, query, os.Stdout)
			})
		},
	}
	listCmd.Flags().StringVarP(&query, "search", "s", "", "按代码/名称/行业/地区搜索")

	var qfq bool
	var output string
	var last int
	var overlay bool
	var plotCmd = &cobra.Command{
		Use:   "plot <code>",
		Short: "Plot candlestick chart of a stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withEnv(true, func(env *cmd.Env) error {
				_, err := cmd.Plot(env, args[0], qfq, overlay, output, last)
				return err
			})
		},
	}
	plotCmd.Flags().BoolVar(&qfq, "qfq", false, "前复权")
	plotCmd.Flags().StringVarP(&output, "output", "o", "", "HTML 输出路径, 默认 output_dir/<symbol>.html")
	plotCmd.Flags().IntVar(&last, "last", 0, "只画最近 N 根 K 线")
	plotCmd.Flags().BoolVar(&overlay, "index-overlay", false, "叠加大盘指数")

	var analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Screen stocks with the configured filters",
		RunE: func(c *cobra.Command, args []string) error {
			return withEnv(true, func(env *cmd.Env) error {
				_, err := cmd.Analyze(ctx, env, threads, os.Stdout)
				return err
			})
		},
	}
	analyzeCmd.Flags().IntVarP(&threads, "threads", "t", 0, "分析线程数")

	var checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check stored data consistency",
		RunE: func(c *cobra.Command, args []string) error {
			return withEnv(true, func(env *cmd.Env) error {
				return cmd.Check(env, cmd.GetToday(), os.Stdout)
			})
		},
	}

	var yes bool
	var dropCmd = &cobra.Command{
		Use:   "drop",
		Short: "Drop all stored data",
		RunE: func(c *cobra.Command, args []string) error {
			return withEnv(false, func(env *cmd.Env) error {
				_, err := cmd.Drop(env, yes, os.Stdin, os.Stdout)
				return err
			})
		},
	}
	dropCmd.Flags().BoolVarP(&yes, "yes", "y", false, "跳过确认")

	var monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Watch realtime prices of monitor.stocks",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := cmd.LoadConfig(configPath, dbURI)
			if err != nil {
				return err
			}
			return cmd.Monitor(ctx, cfg)
		},
	}

	var once bool
	var cronCmd = &cobra.Command{
		Use:   "cron",
		Short: "Run sync, check, analyze and export on schedule.update_cron",
		RunE: func(c *cobra.Command, args []string) error {
			return withEnv(false, func(env *cmd.Env) error {
				if once {
					return cmd.RunDaily(ctx, env, threads, offline)
				}
				return cmd.Cron(ctx, env, threads)
			})
		},
	}
	cronCmd.Flags().IntVarP(&threads, "threads", "t", 0, "下载与分析线程数")
	cronCmd.Flags().BoolVar(&once, "once", false, "立即执行一次后退出")
	cronCmd.Flags().BoolVar(&offline, "offline", false, "配合 --once, 不下载, 只使用数据库中的数据")

	var format string
	var exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export daily quotes to csv or parquet",
		RunE: func(c *cobra.Command, args []string) error {
			return withEnv(true, func(env *cmd.Env) error {
				_, err := cmd.Export(ctx, env, cmd.ExportOptions{Format: format, OutputDir: output, QFQ: qfq, Threads: threads})
				return err
			})
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "csv", "csv 或 parquet")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "输出目录, 默认 core.output_dir")
	exportCmd.Flags().BoolVar(&qfq, "qfq", false, "导出前复权价格")
	exportCmd.Flags().IntVarP(&threads, "threads", "t", 0, "读取线程数")

	rootCmd.AddCommand(downloadCmd, listCmd, plotCmd, analyzeCmd, checkCmd, dropCmd, monitorCmd, cronCmd, exportCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "🛑 错误: %v\n", err)
		os.Exit(1)
	}
}
