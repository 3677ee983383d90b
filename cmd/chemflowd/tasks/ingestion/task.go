// Package ingestion is the loop consuming result envelopes from the
// results queue and writing them through the parser.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/molsys/chemflow/cmd/chemflowd/recurring"
	"github.com/molsys/chemflow/pkg/queue"
	"github.com/molsys/chemflow/pkg/workflow/deserial"
	"github.com/molsys/chemflow/pkg/workflow/parse"
)

// Task ingests one envelope per cycle. The carried value counts
// envelopes ingested over the loop's lifetime.
//
// Envelopes the store will never accept (unreadable JSON, validation
// failures) are pushed to the error queue and acknowledged, so one
// poisoned message cannot wedge the queue. Duplicates are acknowledged
// silently. On store trouble the message stays queued and the error
// breaks the loop.
func Task(
	logger *log.Logger,
	consumer queue.Consumer,
	producer queue.Producer,
	errorQueue string,
	parser *parse.Parser,
) recurring.Task[int] {
	return func(ctx context.Context, ingested int) (int, bool, error) {
		msg, err := consumer.Next(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			return ingested, false, nil
		}
		if err != nil {
			return ingested, false, err
		}

		var envelope parse.JobResults
		if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
			logger.Printf("unreadable envelope %s: %s", msg.Key, err)
			return ingested, true, quarantine(ctx, consumer, producer, errorQueue, msg)
		}

		result, err := parser.Parse(ctx, envelope)
		switch {
		case err == nil:
			logger.Printf(
				"ingested results of job %d (%d nodes) from %s",
				result.Job.Id, len(result.Nodes), msg.Key,
			)
			ingested += 1
		case errors.Is(err, parse.ErrRejected):
			logger.Printf("skipping %s: %s", msg.Key, err)
		case errors.Is(err, deserial.ErrValidation),
			errors.Is(err, deserial.ErrDeserialize),
			errors.Is(err, deserial.ErrUnknownEntityType):
			logger.Printf("malformed envelope %s: %s", msg.Key, err)
			return ingested, true, quarantine(ctx, consumer, producer, errorQueue, msg)
		default:
			// store trouble; leave the message queued.
			return ingested, false, err
		}
		return ingested, true, consumer.Delete(ctx, msg.Key)
	}
}

// move a message the store will never accept to the error queue, as
// received, and acknowledge it.
func quarantine(
	ctx context.Context,
	consumer queue.Consumer, producer queue.Producer,
	errorQueue string, msg queue.Message,
) error {
	if _, err := producer.Push(ctx, errorQueue, msg.Payload); err != nil {
		return err
	}
	return consumer.Delete(ctx, msg.Key)
}
