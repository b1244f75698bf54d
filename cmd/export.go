package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/utils"
)

type ExportOptions struct {
	Format    string // csv or parquet
	OutputDir string
	QFQ       bool
	Threads   int
}

// rowWriter is a file sink for quotes.
type rowWriter interface {
	utils.RowWriter[model.Quote]
	Close() error
}

// Export writes the daily quotes of every stored stock into one file.
func Export(ctx context.Context, env *Env, o ExportOptions) (string, error) {
	if o.OutputDir == "" {
		o.OutputDir = env.Config.Core.OutputDir
	}
	if err := utils.CheckOutputDir(o.OutputDir); err != nil {
		return "", err
	}

	name := "quotes"
	if o.QFQ {
		name = "quotes_qfq"
	}
	path := filepath.Join(o.OutputDir, fmt.Sprintf("%s_%s.%s", name, GetToday().Format("20060102"), o.Format))

	var w rowWriter
	var err error
	switch o.Format {
	case "csv":
		w, err = utils.NewCSVWriter[model.Quote](path)
	case "parquet":
		w, err = utils.NewParquetWriter[model.Quote](path)
	default:
		return "", fmt.Errorf("unsupported export format: %s", o.Format)
	}
	if err != nil {
		return "", err
	}

	repo := env.Repo
	process := func(ctx context.Context, s *model.Stock) ([]model.Quote, error) {
		if !o.QFQ {
			return s.History, nil
		}
		return repo.ReadQFQQuotes(s.Symbol, nil, nil)
	}

	started := time.Now()
	threads := threadsOr(o.Threads, 4)
	// 队列只留两轮, qfq 模式下每只股票都是一次查询
	pipeline := utils.NewPipeline[*model.Stock, model.Quote](utils.WithConcurrency(threads), utils.WithBufferSize(threads*2))
	result, runErr := pipeline.RunWithWriter(ctx, env.Manager.ListAvailable(), process, w)
	if err := w.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return "", fmt.Errorf("failed to export: %w", runErr)
	}
	if result.HasErrors() {
		logger.GetLogger().WithComponent("export").WithFields(logger.Fields{"path": path}).
			Error(result.ErrorSummary())
		return "", fmt.Errorf("failed to export %d stocks: %w", len(result.Errors), result.FirstError())
	}

	fmt.Printf("💾 导出 %d 行到 %s, 用时 %s\n", result.OutputRows, path, time.Since(started).Round(time.Millisecond))
	return path, nil
}
