package deserial

import (
	"context"
	"fmt"

	kdb "github.com/molsys/chemflow/pkg/db"
)

// A job payload either names an existing row (by id or uuid) and
// updates its mutable fields, or declares a new job under an
// experiment and recipe given as nested references. A payload with no
// status is taken as Done, whether it names a row or declares one:
// envelopes describe finished work.
func (r *Resolver) resolveJob(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	if id, ok, err := intField(fields, "id"); err != nil {
		return nil, err
	} else if ok {
		jobs, err := r.store.Jobs().Get(ctx, []int{id})
		if err != nil {
			return nil, err
		}
		job, ok := jobs[id]
		if !ok {
			return nil, fmt.Errorf("%w: no job with id %d", ErrValidation, id)
		}
		return r.updateJob(ctx, job, fields)
	}

	if uid, ok, err := uuidField(fields, "uuid"); err != nil {
		return nil, err
	} else if ok {
		job, err := r.store.Jobs().GetByUuid(ctx, uid)
		if err != nil {
			return nil, err
		}
		return r.updateJob(ctx, job, fields)
	}

	return r.createJob(ctx, fields)
}

func (r *Resolver) updateJob(ctx context.Context, job kdb.Job, fields map[string]interface{}) (interface{}, error) {
	if rawStatus, ok, err := stringField(fields, "status"); err != nil {
		return nil, err
	} else if ok {
		status, err := kdb.AsJobStatus(rawStatus)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrValidation, err)
		}
		job.Status = status
	} else {
		job.Status = kdb.Done
	}

	if options, ok, err := mapField(fields, "options"); err != nil {
		return nil, err
	} else if ok {
		job.Options = options
	}

	if tags, ok, err := stringsField(fields, "tags"); err != nil {
		return nil, err
	} else if ok {
		job.Tags = tags
	}

	return r.store.Jobs().Update(ctx, job)
}

func (r *Resolver) createJob(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	rawExperiment, ok, err := mapField(fields, "experiment")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job needs an experiment", ErrValidation)
	}
	entity, err := r.nested(ctx, rawExperiment, (*Resolver).resolveExperiment)
	if err != nil {
		return nil, err
	}
	experiment, ok := entity.(kdb.Experiment)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an experiment", ErrDeserialize, entity)
	}

	rawRecipe, ok, err := mapField(fields, "recipe")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job needs a recipe", ErrValidation)
	}
	entity, err = r.nested(ctx, rawRecipe, (*Resolver).resolveRecipe)
	if err != nil {
		return nil, err
	}
	recipe, ok := entity.(kdb.JobRecipe)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a recipe", ErrDeserialize, entity)
	}

	job := kdb.Job{
		JobBody:    kdb.JobBody{Status: kdb.Done},
		Experiment: experiment,
		Recipe:     recipe,
	}

	if rawStatus, ok, err := stringField(fields, "status"); err != nil {
		return nil, err
	} else if ok {
		status, err := kdb.AsJobStatus(rawStatus)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrValidation, err)
		}
		job.Status = status
	}

	if isRoot, ok, err := boolField(fields, "isroot"); err != nil {
		return nil, err
	} else if ok {
		job.IsRoot = isRoot
	}

	if options, ok, err := mapField(fields, "options"); err != nil {
		return nil, err
	} else if ok {
		job.Options = options
	}

	if tags, ok, err := stringsField(fields, "tags"); err != nil {
		return nil, err
	} else if ok {
		job.Tags = tags
	}

	return r.store.Jobs().Create(ctx, job)
}

// AsRunStats builds run statistics from a stats dict.
//
// The duration comes in as wall time in float seconds and is rounded
// to microsecond resolution. Reserved tag keys, if present, are
// ignored; a stats dict has exactly one shape.
func AsRunStats(fields map[string]interface{}) (kdb.RunStats, error) {
	stats := kdb.RunStats{}

	var err error
	if stats.Host, _, err = stringField(fields, "host"); err != nil {
		return kdb.RunStats{}, err
	}
	if stats.Cluster, _, err = stringField(fields, "cluster"); err != nil {
		return kdb.RunStats{}, err
	}
	if stats.PkgVersion, _, err = stringField(fields, "pkgversion"); err != nil {
		return kdb.RunStats{}, err
	}
	if stats.NCores, _, err = intField(fields, "ncores"); err != nil {
		return kdb.RunStats{}, err
	}
	if stats.NGpus, _, err = intField(fields, "ngpus"); err != nil {
		return kdb.RunStats{}, err
	}

	seconds, ok, err := floatField(fields, "duration")
	if err != nil {
		return kdb.RunStats{}, err
	}
	if ok {
		stats.Duration = kdb.DurationFromSeconds(seconds)
	}

	return stats, nil
}
