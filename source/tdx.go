package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/utils"
)

// dayfileRecord is one 32 byte bar of a TDX vipdoc .day file.
type dayfileRecord struct {
	Date     uint32
	Open     uint32
	High     uint32
	Low      uint32
	Close    uint32
	Amount   float32
	Volume   uint32
	Reserved uint32
}

// Tdx is an offline source reading a local TDX install. Bars are
// unadjusted, the factor is always 1.
type Tdx struct {
	home   string
	vipdoc string
}

func NewTdx(tdxHome string) *Tdx {
	vipdoc := filepath.Join(tdxHome, "vipdoc")
	if _, err := os.Stat(vipdoc); err != nil {
		vipdoc = tdxHome
	}
	return &Tdx{home: tdxHome, vipdoc: vipdoc}
}

func (t *Tdx) Name() string { return "tdx" }

func (t *Tdx) dayfile(symbol string) string {
	market, _ := utils.SplitSymbol(symbol)
	return filepath.Join(t.vipdoc, market, "lday", symbol+".day")
}

// ListStocks scans the lday folders. Names and industries come from
// hq_cache when present, otherwise the code stands in for the name.
func (t *Tdx) ListStocks(ctx context.Context) ([]*model.Stock, error) {
	var stocks []*model.Stock
	for _, market := range []string{"sh", "sz", "bj"} {
		dir := filepath.Join(t.vipdoc, market, "lday")
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return fmt.Errorf("failed to access path %s: %w", path, err)
			}
			if d.IsDir() || !strings.HasSuffix(path, ".day") {
				return nil
			}
			symbol := strings.TrimSuffix(filepath.Base(path), ".day")
			_, code := utils.SplitSymbol(symbol)
			if generated, ok := utils.GenerateSymbol(code); !ok || generated != symbol {
				return nil
			}
			stocks = append(stocks, &model.Stock{Base: model.Base{Symbol: symbol, Code: code, Name: code}})
			return ctx.Err()
		})
		if err != nil {
			return nil, err
		}
	}

	if len(stocks) == 0 {
		return nil, fmt.Errorf("no .day files found under %s", t.vipdoc)
	}
	meta := loadTdxMeta(t.home)
	for _, s := range stocks {
		if name, ok := meta.names[s.Symbol]; ok && name != "" {
			s.Name = name
		}
		s.Industry = meta.industries[s.Symbol]
	}

	sort.Slice(stocks, func(i, j int) bool { return stocks[i].Symbol < stocks[j].Symbol })
	return stocks, nil
}

func (t *Tdx) FetchQuotes(ctx context.Context, sec model.Security, start, end time.Time) ([]model.Quote, error) {
	symbol := sec.Common().Symbol
	data, err := os.ReadFile(t.dayfile(symbol))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("failed to read DAY file for %s: %w", symbol, err)
	}
	return parseDayfile(symbol, data, model.Day(start), model.Day(end))
}

func parseDayfile(symbol string, data []byte, start, end time.Time) ([]model.Quote, error) {
	if len(data)%32 != 0 {
		return nil, fmt.Errorf("invalid file format for %s: data length %d is not a multiple of 32", symbol, len(data))
	}

	quotes := make([]model.Quote, 0, len(data)/32)
	for off := 0; off < len(data); off += 32 {
		var record dayfileRecord
		if err := binary.Read(bytes.NewReader(data[off:off+32]), binary.LittleEndian, &record); err != nil {
			return nil, fmt.Errorf("failed to parse record at offset %d in %s: %w", off, symbol, err)
		}
		date, err := recordDate(record.Date)
		if err != nil {
			return nil, fmt.Errorf("record at offset %d in %s: %w", off, symbol, err)
		}
		if date.Before(start) || date.After(end) {
			continue
		}
		quotes = append(quotes, model.Quote{
			Symbol: symbol,
			Date:   date,
			Open:   float64(record.Open) / 100,
			High:   float64(record.High) / 100,
			Low:    float64(record.Low) / 100,
			Close:  float64(record.Close) / 100,
			Amount: float64(record.Amount),
			Volume: int64(record.Volume),
			Factor: 1,
		})
	}
	return quotes, nil
}

func recordDate(date uint32) (time.Time, error) {
	d := int(date)
	year := d / 10000
	month := (d % 10000) / 100
	day := d % 100

	if year < 1900 || year > 9999 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid date value: %08d", date)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
