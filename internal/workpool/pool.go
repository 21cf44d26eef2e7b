// Package workpool runs independent tasks on a fixed number of goroutines and
// returns their results in submission order.
package workpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// Result is the outcome of the task submitted at Index.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Pool is a bounded pool of workers. The zero value is not usable; use New.
type Pool struct {
	workers int
	name    string
	logger  *slog.Logger
}

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkers sets the number of concurrent workers. Non-positive values are ignored.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithName sets the pool name used in log records.
func WithName(name string) Option {
	return func(p *Pool) {
		if name != "" {
			p.name = name
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pool sized to runtime.NumCPU() unless overridden.
func New(opts ...Option) *Pool {
	p := &Pool{
		workers: runtime.NumCPU(),
		name:    "pool",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the configured concurrency.
func (p *Pool) Workers() int { return p.workers }

// Map applies fn to every input on the pool and returns one Result per input,
// with out[i] belonging to in[i] regardless of completion order. A failing or
// panicking task only affects its own Result. Tasks not yet started when ctx
// is cancelled report ctx.Err().
func Map[In, Out any](ctx context.Context, p *Pool, in []In, fn func(context.Context, In) (Out, error)) []Result[Out] {
	out := make([]Result[Out], len(in))
	if len(in) == 0 {
		return out
	}

	workers := min(p.workers, len(in))
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = runTask(ctx, p, i, in[i], fn)
			}
		}()
	}

	for i := range in {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	p.logger.Debug("pool batch complete", "pool", p.name, "tasks", len(in), "workers", workers)
	return out
}

func runTask[In, Out any](ctx context.Context, p *Pool, i int, v In, fn func(context.Context, In) (Out, error)) (res Result[Out]) {
	res.Index = i
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "pool", p.name, "index", i, "panic", r)
			res.Err = fmt.Errorf("task %d panicked: %v", i, r)
		}
	}()
	res.Value, res.Err = fn(ctx, v)
	return res
}
