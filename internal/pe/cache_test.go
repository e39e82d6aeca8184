package pe

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellCachesSuccess(t *testing.T) {
	var c cell[int]
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.get(compute)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 1, calls)
}

func TestCellRetriesFailure(t *testing.T) {
	var c cell[string]
	errBoom := errors.New("boom")

	_, err := c.get(func() (string, error) { return "partial", errBoom })
	assert.ErrorIs(t, err, errBoom)

	v, err := c.get(func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCellConcurrent(t *testing.T) {
	var c cell[[]int]
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.get(func() ([]int, error) {
				calls.Add(1)
				return []int{1, 2, 3}, nil
			})
			assert.NoError(t, err)
			assert.Len(t, v, 3)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}
