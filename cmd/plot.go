package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/jing2uo/rufeng/plot"
)

// Plot renders one stock to HTML. overlay adds the market index closes.
func Plot(env *Env, code string, qfq, overlay bool, output string, last int) (string, error) {
	s, err := env.Manager.FindOne(code)
	if err != nil {
		return "", err
	}

	if output == "" {
		suffix := ""
		if qfq {
			suffix = "_qfq"
		}
		output = filepath.Join(env.Config.Core.OutputDir, s.Symbol+suffix+".html")
	}

	index, _ := env.Manager.Index(env.Config.Analyzer.MarketIndex)
	if err := plot.RenderFile(s, plot.Options{QFQ: qfq, Index: index, Last: last, IndexOverlay: overlay}, output); err != nil {
		return "", fmt.Errorf("failed to plot %s: %w", s.Symbol, err)
	}
	fmt.Printf("📊 %s 走势图已写入 %s\n", s, output)
	return output, nil
}
