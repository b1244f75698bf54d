package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jing2uo/rufeng/model"
)

// Check prints the consistency report and fails when it has issues.
func Check(env *Env, now time.Time, w io.Writer) error {
	latest, err := env.Repo.GetLatestDate(model.TableQuotesDaily.TableName, "date")
	if err != nil {
		return fmt.Errorf("failed to read latest quote date: %w", err)
	}
	if latest.IsZero() {
		fmt.Fprintln(w, "📅 数据库中没有日线数据")
	} else {
		fmt.Fprintf(w, "📅 日线数据截至 %s\n", model.Day(latest).Format("2006-01-02"))
	}

	report := env.Manager.Check(now)
	for _, issue := range report.Issues {
		fmt.Fprintf(w, "  ❗ %-10s %-15s %s\n", issue.Symbol, issue.Kind, issue.Detail)
	}
	fmt.Fprintf(w, "🔎 检查 %d 个标的, 停牌区间 %d 个\n", report.Checked, report.Suspensions)
	if !report.OK() {
		return fmt.Errorf("data check found %d issues", len(report.Issues))
	}
	fmt.Fprintln(w, "✅ 数据检查通过")
	return nil
}
