package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/search"
)

const searchLimit = 50

// List prints the stored stocks, optionally narrowed by a full text query
// over code, name, industry and area.
func List(env *Env, query string, w io.Writer) error {
	stocks := env.Manager.ListAvailable()

	if query != "" {
		idx, err := search.New(stocks)
		if err != nil {
			return err
		}
		defer idx.Close()

		symbols, err := idx.Search(query, searchLimit)
		if err != nil {
			return err
		}
		stocks = stocks[:0:0]
		for _, sym := range symbols {
			if s, err := env.Manager.FindOne(sym); err == nil {
				stocks = append(stocks, s)
			}
		}
		if len(stocks) == 0 {
			fmt.Fprintf(w, "🔍 没有匹配 %q 的股票\n", query)
			return nil
		}
	}

	return printStocks(w, stocks)
}

func printStocks(w io.Writer, stocks []*model.Stock) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tNAME\tPRICE\tPE\tNMC(亿)\tINDUSTRY\tLAST")
	for _, s := range stocks {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%s\t%s\n",
			s.Symbol, s.Name, s.CurrentPrice(), s.PE, s.NMC/10000, s.Industry,
			s.LastQuoteDate().Format("2006-01-02"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "共 %d 只\n", len(stocks))
	return nil
}
