package creation_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/molsys/chemflow/cmd/chemflowd/tasks/creation"
	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/db/mocks"
)

func rulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const singleRule = `
rules:
  - name: screen-candidates
    mode: simple
    experiment: zeolites
    recipe: vasp.relax
    options:
      encut: 650
    inputs:
      - filter:
          kind: [Molecule]
          status: [D]
`

func TestTask(t *testing.T) {
	ctx := context.Background()
	logger := log.New(log.Writer(), "test: ", 0)

	t.Run("it creates one job per eligible node", func(t *testing.T) {
		store := mocks.NewChemDatabase()
		store.MetaInterface.Impl.GetExperiment = func(_ context.Context, name string) (kdb.Experiment, error) {
			return kdb.Experiment{EntryBody: kdb.EntryBody{Id: 10}, Name: name}, nil
		}
		store.MetaInterface.Impl.GetRecipe = func(_ context.Context, name string) (kdb.JobRecipe, error) {
			return kdb.JobRecipe{EntryBody: kdb.EntryBody{Id: 20}, Name: name}, nil
		}
		store.NodeInterface.Impl.FindChem = func(_ context.Context, query kdb.NodeQuery) ([]kdb.ChemNode, error) {
			return []kdb.ChemNode{
				kdb.Molecule{NodeBody: kdb.NodeBody{EntryBody: kdb.EntryBody{Id: 101}}},
				kdb.Molecule{NodeBody: kdb.NodeBody{EntryBody: kdb.EntryBody{Id: 102}}},
			}, nil
		}
		store.JobInterface.Impl.Register = func(
			_ context.Context, _ int, _ int, jobs []kdb.NewJob, _ int,
		) ([]kdb.Job, error) {
			created := make([]kdb.Job, len(jobs))
			for n, nj := range jobs {
				created[n] = kdb.Job{
					JobBody: kdb.JobBody{
						EntryBody: kdb.EntryBody{Id: 1000 + n},
						Status:    kdb.Ready,
						Options:   nj.Options,
					},
					Inputs: nj.Inputs,
				}
			}
			return created, nil
		}

		task := creation.Task(logger, store, rulesFile(t, singleRule), 250, false)

		total, updated, err := task(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if total != 2 || updated {
			t.Errorf("unexpected result: (%d, %v)", total, updated)
		}

		if len(store.JobInterface.Calls.Register) != 1 {
			t.Fatalf("unexpected Register calls: %d", len(store.JobInterface.Calls.Register))
		}
		registered := store.JobInterface.Calls.Register[0]
		if registered.ExperimentId != 10 || registered.RecipeId != 20 {
			t.Errorf(
				"jobs are registered under a wrong target: (%d, %d)",
				registered.ExperimentId, registered.RecipeId,
			)
		}
		if registered.BatchSize != 250 {
			t.Errorf("unexpected batch size: %d", registered.BatchSize)
		}
		for _, nj := range registered.Jobs {
			if encut, ok := nj.Options["encut"]; !ok || encut != 650 {
				t.Errorf("rule options are not carried: %v", nj.Options)
			}
		}
	})

	t.Run("a dry run writes nothing", func(t *testing.T) {
		store := mocks.NewChemDatabase()
		store.MetaInterface.Impl.GetExperiment = func(_ context.Context, name string) (kdb.Experiment, error) {
			return kdb.Experiment{EntryBody: kdb.EntryBody{Id: 10}, Name: name}, nil
		}
		store.MetaInterface.Impl.GetRecipe = func(_ context.Context, name string) (kdb.JobRecipe, error) {
			return kdb.JobRecipe{EntryBody: kdb.EntryBody{Id: 20}, Name: name}, nil
		}
		store.NodeInterface.Impl.FindChem = func(_ context.Context, query kdb.NodeQuery) ([]kdb.ChemNode, error) {
			return []kdb.ChemNode{
				kdb.Molecule{NodeBody: kdb.NodeBody{EntryBody: kdb.EntryBody{Id: 101}}},
			}, nil
		}

		task := creation.Task(logger, store, rulesFile(t, singleRule), 250, true)

		total, updated, err := task(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if total != 0 || updated {
			t.Errorf("unexpected result: (%d, %v)", total, updated)
		}
		if len(store.JobInterface.Calls.Register) != 0 {
			t.Error("no jobs should be registered")
		}
	})

	t.Run("a rule with no target yet is skipped", func(t *testing.T) {
		store := mocks.NewChemDatabase()
		store.MetaInterface.Impl.GetExperiment = func(_ context.Context, name string) (kdb.Experiment, error) {
			return kdb.Experiment{}, fmt.Errorf(
				"experiment %s: %w", name, kdb.ErrMissing,
			)
		}

		task := creation.Task(logger, store, rulesFile(t, singleRule), 250, false)

		total, updated, err := task(ctx, 5)
		if err != nil {
			t.Fatal(err)
		}
		if total != 5 || updated {
			t.Errorf("unexpected result: (%d, %v)", total, updated)
		}
		if len(store.JobInterface.Calls.Register) != 0 {
			t.Error("no jobs should be registered")
		}
	})

	t.Run("a broken rules file stops the loop", func(t *testing.T) {
		store := mocks.NewChemDatabase()
		path := rulesFile(t, `
rules:
  - name: broken
    mode: cartesian
    experiment: zeolites
    recipe: vasp.relax
    inputs:
      - filter: {}
`)
		task := creation.Task(logger, store, path, 250, false)

		if _, _, err := task(ctx, 0); err == nil {
			t.Error("error is expected")
		}
		if len(store.MetaInterface.Calls.GetExperiment) != 0 {
			t.Error("the store should not be touched")
		}
	})

	t.Run("a missing rules file stops the loop", func(t *testing.T) {
		store := mocks.NewChemDatabase()
		path := filepath.Join(t.TempDir(), "no-such-rules.yaml")
		task := creation.Task(logger, store, path, 250, false)

		if _, _, err := task(ctx, 0); err == nil {
			t.Error("error is expected")
		}
	})
}
