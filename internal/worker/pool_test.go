package worker

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("all tasks without errors", func(t *testing.T) {
		var runs int32
		tasks := make([]Task, 0, 50)
		for i := 0; i < 50; i++ {
			tasks = append(tasks, func() error {
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&runs, 1)
				return nil
			})
		}
		require.NoError(t, Run(tasks, 5, 1))
		require.Equal(t, int32(50), runs)
	})

	t.Run("errors limit", func(t *testing.T) {
		var runs int32
		tasks := make([]Task, 0, 50)
		for i := 0; i < 50; i++ {
			tasks = append(tasks, func() error {
				atomic.AddInt32(&runs, 1)
				return errors.New("fail")
			})
		}
		err := Run(tasks, 2, 10)
		require.ErrorIs(t, err, ErrErrorsLimitExceeded)
		require.LessOrEqual(t, atomic.LoadInt32(&runs), int32(10+2+1))
	})

	t.Run("no limit runs everything", func(t *testing.T) {
		var runs int32
		tasks := make([]Task, 0, 20)
		for i := 0; i < 20; i++ {
			tasks = append(tasks, func() error {
				atomic.AddInt32(&runs, 1)
				return errors.New("fail")
			})
		}
		require.NoError(t, Run(tasks, 3, 0))
		require.Equal(t, int32(20), runs)
	})

	t.Run("sequential", func(t *testing.T) {
		var order []int
		tasks := make([]Task, 0, 5)
		for i := 0; i < 5; i++ {
			i := i
			tasks = append(tasks, func() error {
				order = append(order, i)
				return nil
			})
		}
		require.NoError(t, Run(tasks, 1, 0))
		require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	})

	t.Run("incorrect workers", func(t *testing.T) {
		require.ErrorIs(t, Run(nil, 0, 0), ErrIncorrectWorkersCount)
	})
}
