package loop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/molsys/chemflow/pkg/loop"
	"github.com/molsys/chemflow/pkg/utils/try"
)

func TestStart(t *testing.T) {
	t.Run("it repeats the task with interval until context gets done", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		actual, err := loop.Start(
			ctx, int64(0), func(_ context.Context, v int64) (int64, loop.Next) {
				return v + 1, loop.Continue(10 * time.Millisecond)
			},
		)

		if !errors.Is(err, context.DeadlineExceeded) {
			t.Error("expected error (DeadlineExceeded) is not returned: ", err)
		}

		// 100ms lifetime / 10ms interval. Leave slack for scheduling.
		if actual < 2 || 11 < actual {
			t.Errorf("task ran too much/less: %d", actual)
		}
	})

	t.Run("it passes a deadlined context when WithTimeout is given", func(t *testing.T) {
		ctx := context.Background()

		timeout := 100 * time.Millisecond

		try.To(loop.Start(
			ctx, int64(1), func(ctx context.Context, v int64) (int64, loop.Next) {
				now := time.Now()

				if deadline, ok := ctx.Deadline(); !ok {
					t.Errorf("deadline is not set")
				} else if !(deadline.Sub(now) <= timeout) {
					t.Errorf(
						"unexpected deadline\n===actual===\n%s\n===expected===\n(near) %s",
						deadline, now.Add(timeout),
					)
				}

				if 3 <= v {
					return v + 1, loop.Break(nil)
				}
				return v + 1, loop.Continue(20 * time.Millisecond)
			},
			loop.WithTimeout(timeout),
		)).OrFatal(t)
	})

	t.Run("it passes a deadline-free context when WithTimeout is not given", func(t *testing.T) {
		ctx := context.Background()

		try.To(loop.Start(
			ctx, int64(1), func(ctx context.Context, v int64) (int64, loop.Next) {
				if deadline, ok := ctx.Deadline(); ok {
					t.Errorf("deadline is set: %s (now = %s)", deadline, time.Now())
				}

				if 3 <= v {
					return v + 1, loop.Break(nil)
				}
				return v + 1, loop.Continue(20 * time.Millisecond)
			},
		)).OrFatal(t)
	})

	t.Run("when context has been done before starting, it does nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		actual, err := loop.Start(
			ctx, 1, func(ctx context.Context, v int) (int, loop.Next) {
				return v + 1, loop.Continue(0)
			},
		)

		if !errors.Is(err, context.Canceled) {
			t.Fatal(err)
		}

		if actual != 1 {
			t.Errorf("loop does not honour context")
		}
	})

	t.Run("it repeats the task until it Breaks", func(t *testing.T) {
		ctx := context.Background()

		expected := 10
		actual, err := loop.Start(ctx, 1, func(ctx context.Context, v int) (int, loop.Next) {
			next := v + 1
			if expected <= next {
				return next, loop.Break(nil)
			}
			return next, loop.Continue(0)
		})

		if err != nil {
			t.Fatal(err)
		}

		if actual != expected {
			t.Errorf("repeats too much/less. (actual, expected) = (%d, %d)", actual, expected)
		}
	})

	t.Run("it passes the error of Break through", func(t *testing.T) {
		ctx := context.Background()

		expectedErr := errors.New("break!")

		expected := 10
		actual, err := loop.Start(ctx, 1, func(ctx context.Context, v int) (int, loop.Next) {
			next := v + 1
			if expected <= next {
				return next, loop.Break(expectedErr)
			}
			return next, loop.Continue(0)
		})

		if !errors.Is(err, expectedErr) {
			t.Errorf("error is unexpected one. (actual, expected) = (%v, %v) ", err, expectedErr)
		}

		if actual != expected {
			t.Errorf("repeats too much/less. (actual, expected) = (%d, %d)", actual, expected)
		}
	})
}
