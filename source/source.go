package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/utils"
)

// ErrNotFound is permanent: the remote side does not know the symbol.
var ErrNotFound = errors.New("not found")

type StockLister interface {
	ListStocks(ctx context.Context) ([]*model.Stock, error)
}

type QuoteFetcher interface {
	// FetchQuotes returns daily bars in [start, end], date ascending.
	FetchQuotes(ctx context.Context, sec model.Security, start, end time.Time) ([]model.Quote, error)
}

type Source interface {
	StockLister
	QuoteFetcher
	Name() string
}

type RealtimeSource interface {
	FetchTicks(ctx context.Context, symbols []string) ([]model.Tick, error)
}

// combined serves the stock list and the history from different providers.
type combined struct {
	StockLister
	QuoteFetcher
	name string
}

func (c *combined) Name() string { return c.name }

// New builds the history source named in core.source.
func New(cfg *config.Config) (Source, error) {
	client := NewClient(ClientOptions{
		Timeout:   cfg.Crawler.Timeout,
		RateLimit: cfg.Crawler.RateLimit,
		Burst:     cfg.Crawler.Burst,
		Proxy:     cfg.Core.Proxy,
	})

	switch cfg.Core.Source {
	case "eastmoney":
		return NewEastmoney(client), nil
	case "yahoo":
		return &combined{StockLister: NewEastmoney(client), QuoteFetcher: NewYahoo(client), name: "yahoo"}, nil
	case "tdx":
		if err := utils.CheckDirectory(cfg.Core.TdxDir); err != nil {
			return nil, fmt.Errorf("invalid tdx_dir: %w", err)
		}
		return NewTdx(cfg.Core.TdxDir), nil
	default:
		return nil, fmt.Errorf("unsupported source: %s", cfg.Core.Source)
	}
}

// NewRealtime builds the tick source used by the monitor.
func NewRealtime(cfg *config.Config) RealtimeSource {
	return NewSina(NewClient(ClientOptions{
		Timeout:   cfg.Crawler.Timeout,
		RateLimit: cfg.Crawler.RateLimit,
		Burst:     cfg.Crawler.Burst,
		Proxy:     cfg.Core.Proxy,
	}))
}
