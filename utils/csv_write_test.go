package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVStreamFlattensEmbedded(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSVStream[*model.Stock](&buf)
	require.NoError(t, err)

	header := w.Header()
	assert.Equal(t, "symbol", header[0])
	assert.Contains(t, header, "industry")
	assert.Contains(t, header, "time_to_market")
	assert.NotContains(t, header, "History")

	s := &model.Stock{
		Base:         model.Base{Symbol: "sz000001", Code: "000001", Name: "平安银行", Price: 10.5},
		Industry:     "银行",
		TimeToMarket: time.Date(1991, 4, 3, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, w.Write([]*model.Stock{s, nil}))
	require.NoError(t, w.Close())
	assert.Equal(t, 1, w.Rows())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "sz000001,000001,平安银行,10.5,,"))
	assert.Contains(t, lines[1], "1991-04-03")
}

func TestCSVWriterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quotes.csv")
	w, err := NewCSVWriter[model.Quote](path)
	require.NoError(t, err)

	require.NoError(t, w.Write(nil))
	require.NoError(t, w.Write([]model.Quote{
		{Symbol: "sh600000", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 7.25, Volume: 100, Factor: 1},
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"symbol,date,open,high,low,close,volume,amount,turnover,factor\n"+
			"sh600000,2024-01-02,0,0,0,7.25,100,0,0,1\n",
		string(data))
}

func TestCSVWriterRejectsNonStruct(t *testing.T) {
	_, err := NewCSVStream[int](&bytes.Buffer{})
	assert.Error(t, err)
}
