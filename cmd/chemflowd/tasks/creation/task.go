// Package creation is the loop evaluating job creation rules.
package creation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/molsys/chemflow/cmd/chemflowd/recurring"
	"github.com/molsys/chemflow/pkg/configs/rules"
	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/workflow/create"
)

// Task re-reads the rules file and runs every rule once per cycle.
// The carried value counts jobs created over the loop's lifetime.
// With dryRun the eligible jobs are only counted and logged.
//
// A rule whose target experiment or recipe does not exist yet is
// skipped, not an error: targets are registered by ingesting results,
// which may simply not have happened yet.
func Task(logger *log.Logger, database kdb.ChemDatabase, rulesPath string, batchSize int, dryRun bool) recurring.Task[int] {
	return func(ctx context.Context, total int) (int, bool, error) {
		loaded, err := rules.Load(rulesPath)
		if err != nil {
			return total, false, err
		}

		for _, rule := range loaded {
			conf := rule.Config
			conf.BatchSize = batchSize

			jobs, err := createJobs(ctx, database, rule.Mode, conf, dryRun)
			if errors.Is(err, kdb.ErrMissing) {
				logger.Printf("rule %s is not applicable yet: %s", rule.Name, err)
				continue
			}
			if err != nil {
				return total, false, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
			if dryRun {
				logger.Printf("rule %s: would create %d jobs", rule.Name, len(jobs))
				continue
			}
			if 0 < len(jobs) {
				logger.Printf("rule %s: created %d jobs", rule.Name, len(jobs))
			}
			total += len(jobs)
		}

		// each cycle evaluates every rule; there is no backlog to chase.
		return total, false, nil
	}
}

func createJobs(
	ctx context.Context, database kdb.ChemDatabase, mode rules.Mode, conf create.Config, dryRun bool,
) ([]kdb.Job, error) {
	switch mode {
	case rules.Simple:
		creator, err := create.NewSimple(ctx, database, conf)
		if err != nil {
			return nil, err
		}
		jobs, _, err := creator.Create(ctx, dryRun)
		return jobs, err
	case rules.Tuple:
		creator, err := create.NewTuple(ctx, database, conf)
		if err != nil {
			return nil, err
		}
		jobs, _, err := creator.Create(ctx, dryRun)
		return jobs, err
	default:
		return nil, fmt.Errorf("unknown creation mode: %s", mode)
	}
}
