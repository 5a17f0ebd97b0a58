package par

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestForCoversRange(t *testing.T) {
	table := []struct {
		n, workers int
	}{
		{0, 4}, {1, 4}, {100, 1}, {127, 8}, {128, 8}, {1000, 3}, {10000, 16},
	}

	for i, test := range table {
		hits := make([]int32, test.n)
		err := For(test.n, test.workers, func(lo, hi int) error {
			for j := lo; j < hi; j++ {
				atomic.AddInt32(&hits[j], 1)
			}
			return nil
		})
		require.NoError(t, err, "%d)", i+1)

		for j, h := range hits {
			if h != 1 {
				t.Fatalf("%d) index %d visited %d times", i+1, j, h)
			}
		}
	}
}

func TestForError(t *testing.T) {
	sentinel := errors.New("boom")
	err := For(5000, 4, func(lo, hi int) error {
		if lo <= 2500 && 2500 < hi {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestForPanic(t *testing.T) {
	err := For(5000, 4, func(lo, hi int) error {
		if lo == 0 {
			panic("bad chunk")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad chunk")
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Workers(3))
	assert.GreaterOrEqual(t, Workers(0), 1)
}
