package mocks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	kdb "github.com/molsys/chemflow/pkg/db"
)

type JobInterface struct {
	Impl struct {
		Get               func(ctx context.Context, ids []int) (map[int]kdb.Job, error)
		GetByUuid         func(ctx context.Context, id uuid.UUID) (kdb.Job, error)
		Find              func(ctx context.Context, query kdb.JobFindQuery) ([]int, error)
		Register          func(ctx context.Context, experimentId int, recipeId int, jobs []kdb.NewJob, batchSize int) ([]kdb.Job, error)
		ExistingInputSets func(ctx context.Context, experimentId int, recipeId int) ([][]int, error)
		Create            func(ctx context.Context, job kdb.Job) (kdb.Job, error)
		Update            func(ctx context.Context, job kdb.Job) (kdb.Job, error)
		SetStatus         func(ctx context.Context, id int, newStatus kdb.JobStatus) error
		AttachRunStats    func(ctx context.Context, jobId int, stats kdb.RunStats) (kdb.RunStats, error)
		DeleteTree        func(ctx context.Context, id int) error
	}

	Calls struct {
		Get       CallLog[[]int]
		GetByUuid CallLog[uuid.UUID]
		Find      CallLog[kdb.JobFindQuery]
		Register  CallLog[struct {
			ExperimentId int
			RecipeId     int
			Jobs         []kdb.NewJob
			BatchSize    int
		}]
		ExistingInputSets CallLog[struct {
			ExperimentId int
			RecipeId     int
		}]
		Create    CallLog[kdb.Job]
		Update    CallLog[kdb.Job]
		SetStatus CallLog[struct {
			Id        int
			NewStatus kdb.JobStatus
		}]
		AttachRunStats CallLog[struct {
			JobId int
			Stats kdb.RunStats
		}]
		DeleteTree CallLog[int]
	}
}

func NewJobInterface() *JobInterface {
	return &JobInterface{}
}

var _ kdb.JobInterface = &JobInterface{}

func (m *JobInterface) Get(ctx context.Context, ids []int) (map[int]kdb.Job, error) {
	m.Calls.Get = append(m.Calls.Get, ids)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, ids)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) GetByUuid(ctx context.Context, id uuid.UUID) (kdb.Job, error) {
	m.Calls.GetByUuid = append(m.Calls.GetByUuid, id)
	if m.Impl.GetByUuid != nil {
		return m.Impl.GetByUuid(ctx, id)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) Find(ctx context.Context, query kdb.JobFindQuery) ([]int, error) {
	m.Calls.Find = append(m.Calls.Find, query)
	if m.Impl.Find != nil {
		return m.Impl.Find(ctx, query)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) Register(
	ctx context.Context, experimentId int, recipeId int, jobs []kdb.NewJob, batchSize int,
) ([]kdb.Job, error) {
	m.Calls.Register = append(m.Calls.Register, struct {
		ExperimentId int
		RecipeId     int
		Jobs         []kdb.NewJob
		BatchSize    int
	}{
		ExperimentId: experimentId,
		RecipeId:     recipeId,
		Jobs:         jobs,
		BatchSize:    batchSize,
	})
	if m.Impl.Register != nil {
		return m.Impl.Register(ctx, experimentId, recipeId, jobs, batchSize)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) ExistingInputSets(ctx context.Context, experimentId int, recipeId int) ([][]int, error) {
	m.Calls.ExistingInputSets = append(m.Calls.ExistingInputSets, struct {
		ExperimentId int
		RecipeId     int
	}{ExperimentId: experimentId, RecipeId: recipeId})
	if m.Impl.ExistingInputSets != nil {
		return m.Impl.ExistingInputSets(ctx, experimentId, recipeId)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) Create(ctx context.Context, job kdb.Job) (kdb.Job, error) {
	m.Calls.Create = append(m.Calls.Create, job)
	if m.Impl.Create != nil {
		return m.Impl.Create(ctx, job)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) Update(ctx context.Context, job kdb.Job) (kdb.Job, error) {
	m.Calls.Update = append(m.Calls.Update, job)
	if m.Impl.Update != nil {
		return m.Impl.Update(ctx, job)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) SetStatus(ctx context.Context, id int, newStatus kdb.JobStatus) error {
	m.Calls.SetStatus = append(m.Calls.SetStatus, struct {
		Id        int
		NewStatus kdb.JobStatus
	}{Id: id, NewStatus: newStatus})
	if m.Impl.SetStatus != nil {
		return m.Impl.SetStatus(ctx, id, newStatus)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) AttachRunStats(ctx context.Context, jobId int, stats kdb.RunStats) (kdb.RunStats, error) {
	m.Calls.AttachRunStats = append(m.Calls.AttachRunStats, struct {
		JobId int
		Stats kdb.RunStats
	}{JobId: jobId, Stats: stats})
	if m.Impl.AttachRunStats != nil {
		return m.Impl.AttachRunStats(ctx, jobId, stats)
	}
	panic(errors.New("it should not be called"))
}

func (m *JobInterface) DeleteTree(ctx context.Context, id int) error {
	m.Calls.DeleteTree = append(m.Calls.DeleteTree, id)
	if m.Impl.DeleteTree != nil {
		return m.Impl.DeleteTree(ctx, id)
	}
	panic(errors.New("it should not be called"))
}
