package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDayfile(t *testing.T, dir, market, symbol string, records []dayfileRecord) {
	t.Helper()
	lday := filepath.Join(dir, "vipdoc", market, "lday")
	require.NoError(t, os.MkdirAll(lday, 0755))

	var buf bytes.Buffer
	for _, r := range records {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, r))
	}
	require.NoError(t, os.WriteFile(filepath.Join(lday, symbol+".day"), buf.Bytes(), 0644))
}

func TestTdxSource(t *testing.T) {
	dir := t.TempDir()
	writeDayfile(t, dir, "sh", "sh600000", []dayfileRecord{
		{Date: 20240102, Open: 780, High: 790, Low: 775, Close: 785, Amount: 1e8, Volume: 123456},
		{Date: 20240103, Open: 785, High: 800, Low: 780, Close: 798, Amount: 2e8, Volume: 223456},
		{Date: 20240104, Open: 798, High: 805, Low: 790, Close: 800, Amount: 3e8, Volume: 323456},
	})
	writeDayfile(t, dir, "sh", "sh000001", []dayfileRecord{{Date: 20240102, Close: 296200}})
	writeDayfile(t, dir, "sz", "sz000001", []dayfileRecord{{Date: 20240102, Close: 1000}})

	src := NewTdx(dir)

	stocks, err := src.ListStocks(context.Background())
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.Equal(t, "sh600000", stocks[0].Symbol)
	assert.Equal(t, "sz000001", stocks[1].Symbol)

	quotes, err := src.FetchQuotes(context.Background(), stocks[0],
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 7.98, quotes[0].Close)
	assert.Equal(t, int64(323456), quotes[1].Volume)
	assert.Equal(t, 1.0, quotes[1].Factor)

	idx := &model.Index{Base: model.Base{Symbol: "sh000001"}}
	quotes, err = src.FetchQuotes(context.Background(), idx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Now())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 2962.0, quotes[0].Close)

	_, err = src.FetchQuotes(context.Background(), &model.Stock{Base: model.Base{Symbol: "sz300750"}}, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseDayfileRejectsBadData(t *testing.T) {
	_, err := parseDayfile("sh600000", make([]byte, 31), time.Time{}, time.Now())
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, dayfileRecord{Date: 20241399}))
	_, err = parseDayfile("sh600000", buf.Bytes(), time.Time{}, time.Now())
	assert.Error(t, err)
}

func TestTdxEmptyDir(t *testing.T) {
	_, err := NewTdx(t.TempDir()).ListStocks(context.Background())
	assert.Error(t, err)
}
