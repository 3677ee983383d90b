// Package loop runs a task over and over until it decides to stop or
// its context is done. The daemon's recurring work (submitting jobs,
// ingesting results, creating jobs from rules) is written as such
// tasks.
package loop

import (
	"context"
	"fmt"
	"time"
)

// Next is a task's verdict about its own future.
type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop with interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}

	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// run the task once more, after sleeping interval (can be 0).
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// stop the loop. err may be nil for a regular stop.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task receives the value its previous cycle returned and yields a new
// value with the verdict for the next cycle. The value can be
// statistics, a cursor, or whatever the task needs to carry over.
type Task[T any] func(context.Context, T) (T, Next)

// Start runs task in a loop.
//
// The first cycle is task(ctx, init); later cycles receive the value
// the previous one returned. The loop ends when the task returns
// Break(err) (then Start returns err) or when ctx is done (then Start
// returns ctx.Err()). In either case the last value is returned too.
//
// Example, counting 1 to 10:
//
//	Start(ctx, 1, func(_ context.Context, value int) (int, Next) {
//		value += 1
//		if 10 <= value {
//			return value, Break(nil)
//		}
//		return value, Continue(0)
//	})
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		interval := 0 * time.Nanosecond

		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			ctx := lc.ctx
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		} else if n.quit {
			return v, nil
		} else {
			value = v
			interval = n.interval
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			// shutting down takes priority over the pending timer.
			if !timer.Stop() {
				<-timer.C // drain. see: time.Timer.Stop's document
			}
			return value, ctx.Err()

		case <-timer.C:
			continue
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

type LoopOption func(*loopConfig) *loopConfig

// set timeout per cycle.
//
// this timeout is set on context.Context passed to task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
