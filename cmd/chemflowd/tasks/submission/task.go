// Package submission is the loop handing Ready jobs to the queues.
package submission

import (
	"context"
	"log"

	"github.com/molsys/chemflow/cmd/chemflowd/recurring"
	"github.com/molsys/chemflow/pkg/workflow/submit"
)

// Task submits up to limit Ready jobs per cycle. The carried value
// counts jobs submitted over the loop's lifetime.
func Task(logger *log.Logger, submitter *submit.Submitter, limit int) recurring.Task[int] {
	return func(ctx context.Context, total int) (int, bool, error) {
		ids, err := submitter.Submit(ctx, limit)
		total += len(ids)
		if err != nil {
			return total, false, err
		}
		if 0 < len(ids) {
			logger.Printf("handed %d jobs over to the queues: %v", len(ids), ids)
		}
		return total, 0 < len(ids), nil
	}
}
