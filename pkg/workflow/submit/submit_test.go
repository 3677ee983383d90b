package submit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/molsys/chemflow/pkg/cmp"
	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/db/mocks"
	"github.com/molsys/chemflow/pkg/utils/try"
	"github.com/molsys/chemflow/pkg/workflow/submit"
)

type pushed struct {
	Queue   string
	Payload []byte
}

type mockProducer struct {
	pushes []pushed
	err    error
}

func (m *mockProducer) Push(ctx context.Context, queue string, payload []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.pushes = append(m.pushes, pushed{Queue: queue, Payload: payload})
	return "key", nil
}

func readyJob(id int, recipe string, options map[string]interface{}, inputs []int) kdb.Job {
	job := kdb.Job{
		Experiment: kdb.Experiment{Name: "zeolites"},
		Recipe: kdb.JobRecipe{
			Name:     recipe,
			Method:   kdb.DFT,
			Defaults: map[string]interface{}{"encut": 520.0, "kpoints": "gamma"},
		},
		Inputs: inputs,
	}
	job.Id = id
	job.Uuid = uuid.New()
	job.Status = kdb.Ready
	job.Options = options
	job.Tags = []string{"auto"}
	return job
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("it queues Ready jobs per recipe and marks them Running", func(t *testing.T) {
		jobs := map[int]kdb.Job{
			1: readyJob(1, "vasp.relax", map[string]interface{}{"encut": 650.0}, []int{10}),
			2: readyJob(2, "vasp.static", nil, []int{11, 12}),
		}

		store := mocks.NewChemDatabase()
		store.JobInterface.Impl.Find = func(_ context.Context, query kdb.JobFindQuery) ([]int, error) {
			expected := kdb.JobFindQuery{Status: []kdb.JobStatus{kdb.Ready}}
			if !query.Equal(expected) {
				t.Errorf("unexpected query: %+v", query)
			}
			return []int{1, 2}, nil
		}
		store.JobInterface.Impl.Get = func(_ context.Context, ids []int) (map[int]kdb.Job, error) {
			return jobs, nil
		}
		store.JobInterface.Impl.SetStatus = func(_ context.Context, id int, newStatus kdb.JobStatus) error {
			if newStatus != kdb.Running {
				t.Errorf("job %d: unexpected status: %s", id, newStatus)
			}
			return nil
		}

		producer := &mockProducer{}
		submitted := try.To(submit.New(store, producer).Submit(ctx, 0)).OrFatal(t)

		if !cmp.SliceEq(submitted, []int{1, 2}) {
			t.Errorf("unexpected submitted ids: %v", submitted)
		}
		if len(producer.pushes) != 2 {
			t.Fatalf("expected 2 pushes, got %d", len(producer.pushes))
		}
		if producer.pushes[0].Queue != "vasp.relax" || producer.pushes[1].Queue != "vasp.static" {
			t.Errorf(
				"unexpected queues: %s, %s",
				producer.pushes[0].Queue, producer.pushes[1].Queue,
			)
		}

		var info submit.JobInfo
		if err := json.Unmarshal(producer.pushes[0].Payload, &info); err != nil {
			t.Fatal(err)
		}
		if info.Id != 1 || info.Experiment != "zeolites" || info.Method != "DFT" {
			t.Errorf("unexpected payload: %+v", info)
		}
		// the job's encut wins over the recipe default; untouched
		// defaults survive.
		if info.Options["encut"] != 650.0 || info.Options["kpoints"] != "gamma" {
			t.Errorf("unexpected options: %+v", info.Options)
		}
		if !cmp.SliceEq(info.Inputs, []int{10}) {
			t.Errorf("unexpected inputs: %v", info.Inputs)
		}
	})

	t.Run("it honours the limit", func(t *testing.T) {
		jobs := map[int]kdb.Job{
			1: readyJob(1, "vasp.relax", nil, nil),
			2: readyJob(2, "vasp.relax", nil, nil),
			3: readyJob(3, "vasp.relax", nil, nil),
		}

		store := mocks.NewChemDatabase()
		store.JobInterface.Impl.Find = func(_ context.Context, _ kdb.JobFindQuery) ([]int, error) {
			return []int{1, 2, 3}, nil
		}
		store.JobInterface.Impl.Get = func(_ context.Context, ids []int) (map[int]kdb.Job, error) {
			if !cmp.SliceEq(ids, []int{1, 2}) {
				t.Errorf("unexpected ids: %v", ids)
			}
			return jobs, nil
		}
		store.JobInterface.Impl.SetStatus = func(context.Context, int, kdb.JobStatus) error {
			return nil
		}

		producer := &mockProducer{}
		submitted := try.To(submit.New(store, producer).Submit(ctx, 2)).OrFatal(t)

		if !cmp.SliceEq(submitted, []int{1, 2}) {
			t.Errorf("unexpected submitted ids: %v", submitted)
		}
	})

	t.Run("nothing Ready means nothing queued", func(t *testing.T) {
		store := mocks.NewChemDatabase()
		store.JobInterface.Impl.Find = func(context.Context, kdb.JobFindQuery) ([]int, error) {
			return []int{}, nil
		}

		producer := &mockProducer{}
		submitted := try.To(submit.New(store, producer).Submit(ctx, 0)).OrFatal(t)

		if len(submitted) != 0 {
			t.Errorf("unexpected submitted ids: %v", submitted)
		}
		if len(producer.pushes) != 0 {
			t.Errorf("unexpected pushes: %+v", producer.pushes)
		}
	})

	t.Run("a push failure stops the batch and reports what went through", func(t *testing.T) {
		jobs := map[int]kdb.Job{1: readyJob(1, "vasp.relax", nil, nil)}

		store := mocks.NewChemDatabase()
		store.JobInterface.Impl.Find = func(context.Context, kdb.JobFindQuery) ([]int, error) {
			return []int{1}, nil
		}
		store.JobInterface.Impl.Get = func(context.Context, []int) (map[int]kdb.Job, error) {
			return jobs, nil
		}

		expected := errors.New("queue is read-only")
		producer := &mockProducer{err: expected}

		submitted, err := submit.New(store, producer).Submit(ctx, 0)
		if !errors.Is(err, expected) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(submitted) != 0 {
			t.Errorf("unexpected submitted ids: %v", submitted)
		}
		if len(store.JobInterface.Calls.SetStatus) != 0 {
			t.Error("no job should change status when its push failed")
		}
	})
}
