// Package worker runs independent tasks on a fixed number of goroutines.
package worker

import (
	"context"
	"sync"
)

// Func processes one task.
type Func[T, R any] func(ctx context.Context, task T) (R, error)

// Result pairs a task with its outcome.
type Result[T, R any] struct {
	Task  T
	Value R
	Err   error
}

// Pool fans tasks out to a bounded set of workers.
type Pool[T, R any] struct {
	workers int
}

// NewPool creates a pool with n workers; n < 1 is treated as 1.
func NewPool[T, R any](n int) *Pool[T, R] {
	if n < 1 {
		n = 1
	}
	return &Pool[T, R]{workers: n}
}

// Workers returns the pool size.
func (p *Pool[T, R]) Workers() int {
	return p.workers
}

// Run feeds tasks through a queue to the workers and streams results back.
// Every task yields exactly one Result; tasks still queued when ctx ends are
// returned with ctx.Err() without running. The channel closes once all
// results are delivered. Results arrive in completion order.
func (p *Pool[T, R]) Run(ctx context.Context, tasks []T, fn Func[T, R]) <-chan Result[T, R] {
	queue := make(chan T)
	results := make(chan Result[T, R], p.workers)

	var wg sync.WaitGroup
	for range min(p.workers, max(len(tasks), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				if err := ctx.Err(); err != nil {
					results <- Result[T, R]{Task: task, Err: err}
					continue
				}
				v, err := fn(ctx, task)
				results <- Result[T, R]{Task: task, Value: v, Err: err}
			}
		}()
	}

	go func() {
		defer close(queue)
		for i, task := range tasks {
			select {
			case queue <- task:
			case <-ctx.Done():
				for _, rest := range tasks[i:] {
					results <- Result[T, R]{Task: rest, Err: ctx.Err()}
				}
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// Collect runs the pool and gathers every result.
func (p *Pool[T, R]) Collect(ctx context.Context, tasks []T, fn Func[T, R]) []Result[T, R] {
	out := make([]Result[T, R], 0, len(tasks))
	for r := range p.Run(ctx, tasks, fn) {
		out = append(out, r)
	}
	return out
}
