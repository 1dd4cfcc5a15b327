package retry

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batch holds per-position results of Parallel. Exactly one of Values[i]
// and Errors[i] is meaningful for each i.
type Batch[T any] struct {
	Values []T
	Errors []error
}

// OK reports whether operation i succeeded.
func (b Batch[T]) OK(i int) bool {
	return b.Errors[i] == nil
}

// Succeeded returns the values of successful operations in input order.
func (b Batch[T]) Succeeded() []T {
	out := make([]T, 0, len(b.Values))
	for i, v := range b.Values {
		if b.Errors[i] == nil {
			out = append(out, v)
		}
	}
	return out
}

// Failed returns the positions of failed operations.
func (b Batch[T]) Failed() []int {
	var out []int
	for i, err := range b.Errors {
		if err != nil {
			out = append(out, i)
		}
	}
	return out
}

// Parallel runs each operation under its own retry loop concurrently. A
// failing operation never cancels the others, and Parallel itself never
// fails. limit bounds concurrency when positive.
func Parallel[T any](ctx context.Context, e *Executor, p Policy, ops []Operation[T], limit int) Batch[T] {
	b := Batch[T]{
		Values: make([]T, len(ops)),
		Errors: make([]error, len(ops)),
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, op := range ops {
		g.Go(func() error {
			b.Values[i], b.Errors[i] = Do(ctx, e, p, op)
			return nil
		})
	}
	_ = g.Wait()
	return b
}
