// Package submit hands Ready jobs over to the compute side: each job
// is serialized and pushed into the queue named after its recipe, then
// marked Running.
package submit

import (
	"context"
	"encoding/json"
	"fmt"

	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/queue"
)

// JobInfo is the payload queued for external runners.
type JobInfo struct {
	Id         int                    `json:"id"`
	Uuid       string                 `json:"uuid"`
	Experiment string                 `json:"experiment"`
	Recipe     string                 `json:"recipe"`
	Method     string                 `json:"method"`
	Options    map[string]interface{} `json:"options"`
	Inputs     []int                  `json:"inputs"`
	Tags       []string               `json:"tags"`
}

// Options of the queued payload are the recipe's defaults overlaid
// with the job's own options.
func InfoOf(job kdb.Job) JobInfo {
	options := map[string]interface{}{}
	for k, v := range job.Recipe.Defaults {
		options[k] = v
	}
	for k, v := range job.Options {
		options[k] = v
	}

	return JobInfo{
		Id:         job.Id,
		Uuid:       job.Uuid.String(),
		Experiment: job.Experiment.Name,
		Recipe:     job.Recipe.Name,
		Method:     job.Recipe.Method.String(),
		Options:    options,
		Inputs:     job.Inputs,
		Tags:       job.Tags,
	}
}

type Submitter struct {
	db       kdb.ChemDatabase
	producer queue.Producer
}

func New(database kdb.ChemDatabase, producer queue.Producer) *Submitter {
	return &Submitter{db: database, producer: producer}
}

// Submit pushes up to limit Ready jobs (all of them when limit <= 0)
// and moves each to Running, oldest id first.
//
// Pushing and the status update are not atomic: a crash in between can
// queue a job twice. Runners should treat the queued payload as
// at-least-once.
func (s *Submitter) Submit(ctx context.Context, limit int) ([]int, error) {
	ids, err := s.db.Jobs().Find(ctx, kdb.JobFindQuery{
		Status: []kdb.JobStatus{kdb.Ready},
	})
	if err != nil {
		return nil, err
	}
	if 0 < limit && limit < len(ids) {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return []int{}, nil
	}

	jobs, err := s.db.Jobs().Get(ctx, ids)
	if err != nil {
		return nil, err
	}

	submitted := []int{}
	for _, id := range ids {
		job, ok := jobs[id]
		if !ok {
			continue // deleted between Find and Get
		}

		payload, err := json.Marshal(InfoOf(job))
		if err != nil {
			return submitted, err
		}
		if _, err := s.producer.Push(ctx, job.Recipe.Name, payload); err != nil {
			return submitted, fmt.Errorf("failed to queue job %d: %w", id, err)
		}
		if err := s.db.Jobs().SetStatus(ctx, id, kdb.Running); err != nil {
			return submitted, err
		}
		submitted = append(submitted, id)
	}
	return submitted, nil
}
