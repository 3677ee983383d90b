package db

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/molsys/chemflow/pkg/cmp"
)

type JobStatus string

const (
	// This Job is created and waiting to be submitted.
	Ready JobStatus = "Y"

	// This Job has been handed to a queue engine and is running.
	Running JobStatus = "R"

	// This Job was withdrawn before it started.
	Stopped JobStatus = "S"

	// This Job ran and failed.
	Errored JobStatus = "E"

	// This Job ran and its results are ingested.
	Done JobStatus = "D"
)

func (js JobStatus) String() string {
	return string(js)
}

func AsJobStatus(status string) (JobStatus, error) {
	switch status {
	case string(Ready):
		return Ready, nil
	case string(Running):
		return Running, nil
	case string(Stopped):
		return Stopped, nil
	case string(Errored):
		return Errored, nil
	case string(Done):
		return Done, nil
	default:
		return "", fmt.Errorf("'%s' is not JobStatus", status)
	}
}

// statuses of jobs whose results are not ingested yet.
func IncompleteStatuses() []JobStatus {
	return []JobStatus{Ready, Running, Stopped}
}

// statuses of jobs which finished, one way or the other.
func CompleteStatuses() []JobStatus {
	return []JobStatus{Errored, Done}
}

// Legal status moves are Ready -> Running -> {Done, Errored}
// and Ready -> Stopped. Everything else is refused.
func (js JobStatus) CanTransitTo(next JobStatus) bool {
	switch js {
	case Ready:
		return next == Running || next == Stopped
	case Running:
		return next == Done || next == Errored
	default:
		return false
	}
}

// RunStats records where and how long a job actually ran.
// Owned 1:1 by a Job, optional.
type RunStats struct {
	EntryBody
	Host       string
	Cluster    string
	Duration   time.Duration
	NCores     int
	NGpus      int
	PkgVersion string
}

func (rs *RunStats) Equal(o *RunStats) bool {
	if (rs == nil) || (o == nil) {
		return (rs == nil) && (o == nil)
	}
	return rs.Host == o.Host &&
		rs.Cluster == o.Cluster &&
		rs.Duration == o.Duration &&
		rs.NCores == o.NCores &&
		rs.NGpus == o.NGpus &&
		rs.PkgVersion == o.PkgVersion
}

// Convert wall time given as float seconds into a Duration with
// microsecond resolution. Sub-microsecond noise (floating point dust
// from upstream timers) is rounded away.
func DurationFromSeconds(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds*1e6)) * time.Microsecond
}

// Core part of a job, without its relations.
type JobBody struct {
	EntryBody
	Status  JobStatus
	Options map[string]interface{}
	IsRoot  bool
	Tags    []string
}

func (jb *JobBody) Equal(o *JobBody) bool {
	if (jb == nil) || (o == nil) {
		return (jb == nil) && (o == nil)
	}
	return jb.Status == o.Status &&
		jb.IsRoot == o.IsRoot &&
		mapDeepEqual(jb.Options, o.Options) &&
		cmp.SliceContentEq(jb.Tags, o.Tags)
}

// Job is a unit of work: it belongs to an experiment, names a recipe,
// consumes zero or more chem nodes produced by earlier jobs, and (once
// its results are parsed) owns the nodes it produced.
type Job struct {
	JobBody

	Experiment Experiment
	Recipe     JobRecipe

	// run statistics, attached when results are ingested.
	RunStats *RunStats

	// ids of the chem nodes this job consumes.
	Inputs []int
}

func (j *Job) Equal(o *Job) bool {
	if (j == nil) || (o == nil) {
		return (j == nil) && (o == nil)
	}
	return j.JobBody.Equal(&o.JobBody) &&
		j.Experiment.Equal(&o.Experiment) &&
		j.Recipe.Equal(&o.Recipe) &&
		j.RunStats.Equal(o.RunStats) &&
		cmp.SliceContentEq(j.Inputs, o.Inputs)
}

// Tagged-dict representation of the job, ready to pass back through the
// polymorphic deserializer.
func (j *Job) AsDict() map[string]interface{} {
	return map[string]interface{}{
		"@module": "chemflow.jobs",
		"@class":  "Job",
		"id":      j.Id,
		"uuid":    j.Uuid.String(),
		"experiment": map[string]interface{}{
			"name": j.Experiment.Name,
			"project": map[string]interface{}{
				"name": j.Experiment.Project.Name,
			},
		},
		"recipe": map[string]interface{}{
			"name": j.Recipe.Name,
		},
		"status":  j.Status.String(),
		"isroot":  j.IsRoot,
		"options": j.Options,
		"tags":    j.Tags,
	}
}

// NewJob is the payload for bulk job registration.
// Registered jobs start Ready and are never roots.
type NewJob struct {
	Options map[string]interface{}
	Tags    []string

	// chem node ids the new job consumes, one association per id.
	Inputs []int
}

// names the (experiment, recipe) pair new jobs are created under.
type JobTarget struct {
	Experiment string
	Recipe     string
}

// parameter to query jobs.
//
// When all dimensions match a job, this query matches the job.
type JobFindQuery struct {
	// match if job's status is one of these. Empty = match any.
	Status []JobStatus

	// match if job's experiment has one of these names. Empty = match any.
	Experiment []string

	// match if job's recipe has one of these names. Empty = match any.
	Recipe []string

	// match if job's project has one of these names. Empty = match any.
	Project []string

	// match if job's options equal this map exactly. Nil = match any.
	OptionsEq map[string]interface{}
}

func (q JobFindQuery) Equal(other JobFindQuery) bool {
	return cmp.SliceContentEq(q.Status, other.Status) &&
		cmp.SliceContentEq(q.Experiment, other.Experiment) &&
		cmp.SliceContentEq(q.Recipe, other.Recipe) &&
		cmp.SliceContentEq(q.Project, other.Project) &&
		((q.OptionsEq == nil && other.OptionsEq == nil) ||
			(q.OptionsEq != nil && other.OptionsEq != nil &&
				mapDeepEqual(q.OptionsEq, other.OptionsEq)))
}

type JobInterface interface {
	// Retrieve jobs by id.
	//
	// Returns mapping id -> Job. Ids with no job are left out;
	// asking for missing jobs is not an error.
	Get(ctx context.Context, ids []int) (map[int]Job, error)

	// Retrieve a single job by uuid.
	//
	// Returns error wrapping ErrMissing when no such job exists.
	GetByUuid(ctx context.Context, id uuid.UUID) (Job, error)

	// find ids of jobs matching the query.
	Find(ctx context.Context, query JobFindQuery) ([]int, error)

	// Bulk-register jobs under the (experiment, recipe) target.
	//
	// Every job is created Ready, non-root, with its tags and one
	// input association per entry of NewJob.Inputs. Writes are chunked
	// by batchSize (<= 0 means one chunk) but the whole registration
	// commits or rolls back as one unit.
	//
	// Returns the created jobs, in the order given.
	Register(ctx context.Context, experimentId int, recipeId int, jobs []NewJob, batchSize int) ([]Job, error)

	// input-id sets already consumed together by jobs of the
	// (experiment, recipe) target. Each set is sorted ascending.
	// Jobs without inputs contribute nothing.
	ExistingInputSets(ctx context.Context, experimentId int, recipeId int) ([][]int, error)

	// insert a single job as given (status, isroot, options, tags).
	// Used by the result parser for jobs declared in envelopes.
	Create(ctx context.Context, job Job) (Job, error)

	// update mutable fields (status, options, tags) of the job row.
	//
	// Experiment, recipe and inputs of a persisted job are fixed;
	// provenance is append-only.
	Update(ctx context.Context, job Job) (Job, error)

	// update job status, enforcing CanTransitTo.
	//
	// Returns ErrInvalidStatusChange when the move is not legal,
	// error wrapping ErrMissing when the job is not found.
	SetStatus(ctx context.Context, id int, newStatus JobStatus) error

	// persist stats and set the 1:1 reference on the job.
	AttachRunStats(ctx context.Context, jobId int, stats RunStats) (RunStats, error)

	// Delete the job and its whole provenance subtree, post-order:
	// first every child job (a job consuming one of this job's produced
	// chem nodes), recursively, then this job's run stats, calc nodes,
	// chem nodes, and the job row itself.
	//
	// One atomic operation: either the whole subtree goes, or nothing.
	//
	// Returns error wrapping ErrMissing when the job is not found.
	DeleteTree(ctx context.Context, id int) error
}

func mapDeepEqual(a, b map[string]interface{}) bool {
	return cmp.MapJSONEq(a, b)
}
