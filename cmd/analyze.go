package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jing2uo/rufeng/analyzer"
)

func Analyze(ctx context.Context, env *Env, threads int, w io.Writer) (*analyzer.Result, error) {
	threads = threadsOr(threads, env.Config.Crawler.PoolSize)
	market, _ := env.Manager.Index(env.Config.Analyzer.MarketIndex)

	a := analyzer.New(env.Config.Analyzer)
	result, err := a.Analyze(ctx, env.Manager.ListAvailable(), market, threads)
	if err != nil {
		return nil, err
	}

	if result.MarketGood {
		fmt.Fprintf(w, "🟢 大盘: %s\n", result.MarketReason)
	} else {
		fmt.Fprintf(w, "🔴 大盘: %s\n", result.MarketReason)
	}

	// 每个过滤条件排除的数量
	rejected := make(map[string]int)
	for _, v := range result.Bad {
		rejected[v.Filter]++
	}
	for _, name := range a.FilterNames() {
		if n := rejected[name]; n > 0 {
			fmt.Fprintf(w, "  ✂️ %-20s 排除 %d\n", name, n)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tNAME")
	for _, v := range result.Good {
		fmt.Fprintf(tw, "%s\t%s\n", v.Symbol, v.Name)
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "📈 选出 %d 只, 排除 %d 只\n", len(result.Good), len(result.Bad))
	return result, nil
}
