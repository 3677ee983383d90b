// Package queue is the hand-off point between the workflow tracker and
// the compute side. The tracker pushes job descriptions into per-recipe
// queues for external runners, and consumes result envelopes the
// runners queue back.
package queue

import (
	"context"
	"errors"
)

// no message is queued right now.
var ErrEmpty = errors.New("queue is empty")

// Message is one queued payload with the key to acknowledge it by.
type Message struct {
	Key     string
	Payload []byte
}

// Consumer reads one named queue, oldest message first.
//
// A message stays queued until Delete is called with its key, so a
// consumer crashing mid-processing sees the same message again on the
// next cycle.
type Consumer interface {
	// the oldest queued message. Returns ErrEmpty when there is none.
	Next(ctx context.Context) (Message, error)

	// acknowledge the message, removing it from the queue.
	Delete(ctx context.Context, key string) error
}

// Producer appends payloads to named queues.
type Producer interface {
	// enqueue payload. Returns the key the message is queued under.
	Push(ctx context.Context, queue string, payload []byte) (string, error)
}
