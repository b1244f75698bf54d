package utils

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineRun(t *testing.T) {
	p := NewPipeline[int, int](WithConcurrency(3), WithBufferSize(1))

	var active, peak atomic.Int32
	var got []int
	res, err := p.Run(context.Background(), []int{1, 2, 3, 4, 5, 6, 7, 8},
		func(ctx context.Context, n int) ([]int, error) {
			cur := active.Add(1)
			defer active.Add(-1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			switch n {
			case 4:
				return nil, errors.New("boom")
			case 6:
				panic("bad input")
			}
			return []int{n * 10}, nil
		},
		func(rows []int) error {
			got = append(got, rows...)
			return nil
		})
	require.NoError(t, err)

	sort.Ints(got)
	assert.Equal(t, []int{10, 20, 30, 50, 70, 80}, got)
	assert.Equal(t, 8, res.TotalItems)
	assert.Equal(t, int64(6), res.ProcessedItems)
	assert.Equal(t, int64(6), res.OutputRows)
	assert.Len(t, res.Errors, 2)
	assert.True(t, res.HasErrors())
	assert.NotEmpty(t, res.ErrorSummary())
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPipelineConsumeError(t *testing.T) {
	p := NewPipeline[int, int](WithConcurrency(2))
	res, err := p.Run(context.Background(), []int{1, 2},
		func(ctx context.Context, n int) ([]int, error) { return []int{n}, nil },
		func(rows []int) error { return errors.New("disk full") })
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.OutputRows)
	assert.Len(t, res.Errors, 2)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := make([]int, 1000)
	p := NewPipeline[int, int](WithConcurrency(2), WithBufferSize(1))
	res, err := p.Run(ctx, inputs,
		func(ctx context.Context, n int) ([]int, error) { return []int{n}, nil },
		func(rows []int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, res.ProcessedItems, int64(1000))
}

func TestPipelineEmpty(t *testing.T) {
	res, err := NewPipeline[int, int]().Run(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalItems)
	assert.Nil(t, res.FirstError())
}
