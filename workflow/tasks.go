package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jing2uo/rufeng/analyzer"
	"github.com/jing2uo/rufeng/database"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/utils"
)

var (
	TaskSyncData       *Task
	TaskCheckData      *Task
	TaskAnalyze        *Task
	TaskExportSelected *Task
)

// DailyTasks is the run the cron command schedules.
var DailyTasks = []string{"sync_data", "check_data", "analyze", "export_selected"}

func init() {
	TaskSyncData = &Task{
		Name:      "sync_data",
		DependsOn: []string{},
		Executor:  executeSyncData,
	}

	TaskCheckData = &Task{
		Name:      "check_data",
		DependsOn: []string{"sync_data"},
		Executor:  executeCheckData,
		OnError:   ErrorModeSkip,
	}

	TaskAnalyze = &Task{
		Name:      "analyze",
		DependsOn: []string{"sync_data"},
		Executor:  executeAnalyze,
	}

	TaskExportSelected = &Task{
		Name:      "export_selected",
		DependsOn: []string{"analyze"},
		SkipIf: func(ctx context.Context, db database.DataRepository, args *TaskArgs) bool {
			return args.Analysis == nil
		},
		Executor: executeExportSelected,
		OnError:  ErrorModeSkip,
	}
}

func DefaultTasks() map[string]*Task {
	return map[string]*Task{
		TaskSyncData.Name:       TaskSyncData,
		TaskCheckData.Name:      TaskCheckData,
		TaskAnalyze.Name:        TaskAnalyze,
		TaskExportSelected.Name: TaskExportSelected,
	}
}

// executeSyncData fetches from the source, or only reads the store when
// offline. Later tasks treat the manager as read only.
func executeSyncData(ctx context.Context, db database.DataRepository, args *TaskArgs) (*TaskResult, error) {
	if args.Offline {
		if err := args.Manager.LoadFromDB(); err != nil {
			return nil, err
		}
		rows := len(args.Manager.ListAvailable())
		fmt.Printf("📦 从数据库加载 %d 只股票\n", rows)
		return &TaskResult{State: StateCompleted, Rows: rows, Message: "loaded from store"}, nil
	}

	fmt.Println("🐢 开始同步行情数据")

	full, err := args.Manager.PickData(ctx, args.Threads, args.Force)
	if err != nil {
		return nil, fmt.Errorf("failed to sync data: %w", err)
	}

	rows := len(args.Manager.ListAvailable())
	if !full {
		fmt.Printf("⚠️ 部分股票更新失败, 可用股票 %d 只\n", rows)
		return &TaskResult{State: StateCompleted, Rows: rows, Message: "data incomplete"}, nil
	}
	fmt.Printf("🚀 数据同步完成, 可用股票 %d 只\n", rows)
	return &TaskResult{State: StateCompleted, Rows: rows, Message: "data full"}, nil
}

func executeCheckData(ctx context.Context, db database.DataRepository, args *TaskArgs) (*TaskResult, error) {
	report := args.Manager.Check(args.Today)
	if report.OK() {
		fmt.Println("✅ 数据检查通过")
		return &TaskResult{State: StateCompleted, Message: "data consistent"}, nil
	}
	fmt.Printf("⚠️ 数据检查发现 %d 个问题\n", len(report.Issues))
	return &TaskResult{State: StateCompleted, Rows: len(report.Issues), Message: "issues found"}, nil
}

func executeAnalyze(ctx context.Context, db database.DataRepository, args *TaskArgs) (*TaskResult, error) {
	market, _ := args.Manager.Index(args.Config.Analyzer.MarketIndex)
	a := analyzer.New(args.Config.Analyzer)
	result, err := a.Analyze(ctx, args.Manager.ListAvailable(), market, args.Threads)
	if err != nil {
		return nil, err
	}
	args.Analysis = result

	fmt.Printf("📈 选出 %d 只股票, 排除 %d 只\n", len(result.Good), len(result.Bad))
	return &TaskResult{State: StateCompleted, Rows: len(result.Good), Message: result.MarketReason}, nil
}

// SelectedRow is one line of the selection export.
type SelectedRow struct {
	Symbol   string  `col:"symbol"`
	Name     string  `col:"name"`
	Price    float64 `col:"price"`
	PE       float64 `col:"pe"`
	NMC      float64 `col:"nmc"`
	Industry string  `col:"industry"`
}

func SelectedRows(args *TaskArgs) []SelectedRow {
	rows := make([]SelectedRow, 0, len(args.Analysis.Good))
	for _, v := range args.Analysis.Good {
		row := SelectedRow{Symbol: v.Symbol, Name: v.Name}
		if s, err := args.Manager.FindOne(v.Symbol); err == nil {
			row.Price = s.CurrentPrice()
			row.PE = s.PE
			row.NMC = s.NMC
			row.Industry = s.Industry
		}
		rows = append(rows, row)
	}
	return rows
}

func executeExportSelected(ctx context.Context, db database.DataRepository, args *TaskArgs) (*TaskResult, error) {
	if err := utils.CheckOutputDir(args.OutputDir); err != nil {
		return nil, err
	}

	day := model.Day(args.Today).Format("20060102")
	path := filepath.Join(args.OutputDir, fmt.Sprintf("selected_%s.csv", day))

	w, err := utils.NewCSVWriter[SelectedRow](path)
	if err != nil {
		return nil, err
	}
	rows := SelectedRows(args)
	if err := w.Write(rows); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	args.SelectedFile = path

	fmt.Printf("💾 选股结果已写入 %s\n", path)
	return &TaskResult{State: StateCompleted, Rows: len(rows), Message: path}, nil
}
