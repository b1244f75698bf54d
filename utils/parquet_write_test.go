package utils

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "quotes.parquet")
	w, err := NewParquetWriter[model.Quote](path)
	require.NoError(t, err)

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Write([]model.Quote{
		{Symbol: "sh600000", Date: day, Close: 7.25, Factor: 1},
		{Symbol: "sh600000", Date: day.AddDate(0, 0, 1), Close: 7.5, Factor: 1},
	}))
	assert.Equal(t, int64(2), w.Rows())
	require.NoError(t, w.Close())

	rows, err := parquet.ReadFile[model.Quote](path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 7.5, rows[1].Close)
	assert.Equal(t, "sh600000", rows[0].Symbol)
}
