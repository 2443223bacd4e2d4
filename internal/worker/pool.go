package worker

import (
	"errors"
	"sync"
)

var (
	ErrErrorsLimitExceeded   = errors.New("errors limit exceeded")
	ErrIncorrectWorkersCount = errors.New("incorrect number of workers")
)

type Task func() error

// Run starts tasks in n goroutines and stops handing out tasks after m of them
// failed. m <= 0 disables the limit. Tasks already running are waited for.
func Run(tasks []Task, n, m int) error {
	if n <= 0 {
		return ErrIncorrectWorkersCount
	}
	if len(tasks) == 0 {
		return nil
	}

	done := make(chan struct{})
	tasksCh := make(chan Task)
	results := make(chan error)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasksCh {
				results <- task()
			}
		}()
	}

	go func() {
		defer func() {
			close(tasksCh)
			wg.Wait()
			close(results)
		}()
		for _, task := range tasks {
			select {
			case <-done:
				return
			default:
			}
			select {
			case tasksCh <- task:
			case <-done:
				return
			}
		}
	}()

	var errCount int
	var limitErr error
	for result := range results {
		if result == nil {
			continue
		}
		errCount++
		if m > 0 && errCount == m {
			close(done)
			limitErr = ErrErrorsLimitExceeded
		}
	}
	return limitErr
}
