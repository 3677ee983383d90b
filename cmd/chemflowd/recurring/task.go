package recurring

import (
	"context"

	"github.com/molsys/chemflow/pkg/loop"
)

// Task is one cycle of recurring daemon work.
//
// Return:
//
// - T : same as return value T of github.com/molsys/chemflow/pkg/loop.Task[T]
//
// - bool : true when this task did something in this cycle, and more
// backlog can be. otherwise false.
//
// - error : same as err of github.com/molsys/chemflow/pkg/loop.Break(err)
type Task[T any] func(context.Context, T) (T, bool, error)

// a loop.Task which executes rt and lets p decide what happens next.
func (rt Task[T]) Applied(p Policy) loop.Task[T] {
	return func(ctx context.Context, t T) (T, loop.Next) {
		updated, ok, err := rt(ctx, t)
		return updated, p.Next(ok, err)
	}
}
