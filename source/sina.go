package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jing2uo/rufeng/model"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

const sinaQuoteURL = "https://hq.sinajs.cn/list="

// Sina reads realtime snapshots from hq.sinajs.cn, which answers in GBK.
type Sina struct {
	client  *Client
	BaseURL string
}

func NewSina(client *Client) *Sina {
	return &Sina{client: client, BaseURL: sinaQuoteURL}
}

func (s *Sina) FetchTicks(ctx context.Context, symbols []string) ([]model.Tick, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	body, err := s.client.Get(ctx, s.BaseURL+strings.Join(symbols, ","), map[string]string{
		"Referer": "https://finance.sina.com.cn/",
	})
	if err != nil {
		return nil, fmt.Errorf("sina fetch: %w", err)
	}
	return ParseSina(body)
}

// ParseSina decodes lines of the form
//
//	var hq_str_sh600000="浦发银行,7.80,7.79,7.85,...,2024-01-02,15:00:00,00";
//
// Unknown symbols come back as empty strings and are skipped.
func ParseSina(body []byte) ([]model.Tick, error) {
	decoder := transform.NewReader(bytes.NewReader(body), simplifiedchinese.GBK.NewDecoder())
	scanner := bufio.NewScanner(decoder)

	var ticks []model.Tick
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		head, payload, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		symbol := strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(head, "var")), "hq_str_")
		payload = strings.TrimSuffix(strings.TrimSpace(payload), ";")
		payload = strings.Trim(payload, `"`)
		if payload == "" {
			continue
		}

		tick, err := parseSinaFields(symbol, strings.Split(payload, ","))
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sina decode: %w", err)
	}
	return ticks, nil
}

func parseSinaFields(symbol string, f []string) (model.Tick, error) {
	if len(f) < 32 {
		return model.Tick{}, fmt.Errorf("sina: short record for %s (%d fields)", symbol, len(f))
	}

	num := func(i int) float64 {
		v, _ := strconv.ParseFloat(f[i], 64)
		return v
	}

	ts, err := time.ParseInLocation("2006-01-02 15:04:05", f[30]+" "+f[31], cst)
	if err != nil {
		return model.Tick{}, fmt.Errorf("sina: bad time for %s: %w", symbol, err)
	}

	return model.Tick{
		Symbol:   symbol,
		Name:     NormalizeName(f[0]),
		Open:     num(1),
		PreClose: num(2),
		Price:    num(3),
		High:     num(4),
		Low:      num(5),
		Volume:   int64(num(8)),
		Amount:   num(9),
		Time:     ts,
	}, nil
}
