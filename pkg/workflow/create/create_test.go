package create_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/molsys/chemflow/pkg/cmp"
	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/db/mocks"
	"github.com/molsys/chemflow/pkg/utils"
	"github.com/molsys/chemflow/pkg/utils/try"
	"github.com/molsys/chemflow/pkg/workflow/create"
)

func fixtureExperiment() kdb.Experiment {
	return kdb.Experiment{
		EntryBody: kdb.EntryBody{Id: 10},
		Name:      "zeolites",
		Project:   kdb.Project{EntryBody: kdb.EntryBody{Id: 1}, Name: "catalysis"},
	}
}

func fixtureRecipe() kdb.JobRecipe {
	return kdb.JobRecipe{
		EntryBody: kdb.EntryBody{Id: 20},
		Name:      "vasp.relax",
		Method:    kdb.DFT,
	}
}

// a store whose meta layer resolves the fixture target pair.
func newMockStore() *mocks.ChemDatabase {
	mdb := mocks.NewChemDatabase()
	mdb.MetaInterface.Impl.GetExperiment = func(ctx context.Context, name string) (kdb.Experiment, error) {
		if name != "zeolites" {
			return kdb.Experiment{}, fmt.Errorf("experiment %s: %w", name, kdb.ErrMissing)
		}
		return fixtureExperiment(), nil
	}
	mdb.MetaInterface.Impl.GetRecipe = func(ctx context.Context, name string) (kdb.JobRecipe, error) {
		if name != "vasp.relax" {
			return kdb.JobRecipe{}, fmt.Errorf("recipe %s: %w", name, kdb.ErrMissing)
		}
		return fixtureRecipe(), nil
	}
	return mdb
}

func molecules(ids ...int) []kdb.ChemNode {
	return utils.Map(ids, func(id int) kdb.ChemNode {
		return kdb.Molecule{
			NodeBody: kdb.NodeBody{EntryBody: kdb.EntryBody{Id: id}, ParentJob: 1},
			InchiKey: fmt.Sprintf("KEY-%d", id),
		}
	})
}

func TestSimple_configuration(t *testing.T) {
	theory := func(inputs []create.InputQuery) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()
			_, err := create.NewSimple(ctx, newMockStore(), create.Config{
				Inputs:        inputs,
				OutExperiment: "zeolites",
				OutRecipe:     "vasp.relax",
			})
			if !errors.Is(err, create.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %+v", err)
			}
		}
	}

	t.Run("when no input query is given, it refuses", theory(nil))
	t.Run("when two input queries are given, it refuses", theory(
		[]create.InputQuery{
			{Filter: kdb.NodePredicate{Kind: []kdb.NodeKind{kdb.KindMolecule}}},
			{Filter: kdb.NodePredicate{Kind: []kdb.NodeKind{kdb.KindCrystal}}},
		},
	))
}

func TestSimple_missingTarget(t *testing.T) {
	oneInput := []create.InputQuery{
		{Filter: kdb.NodePredicate{Kind: []kdb.NodeKind{kdb.KindMolecule}}},
	}

	t.Run("when the experiment does not exist, it passes ErrMissing through", func(t *testing.T) {
		ctx := context.Background()
		_, err := create.NewSimple(ctx, newMockStore(), create.Config{
			Inputs:        oneInput,
			OutExperiment: "no-such-experiment",
			OutRecipe:     "vasp.relax",
		})
		if !errors.Is(err, kdb.ErrMissing) {
			t.Errorf("expected ErrMissing, got %+v", err)
		}
	})

	t.Run("when the recipe does not exist, it passes ErrMissing through", func(t *testing.T) {
		ctx := context.Background()
		_, err := create.NewSimple(ctx, newMockStore(), create.Config{
			Inputs:        oneInput,
			OutExperiment: "zeolites",
			OutRecipe:     "no-such-recipe",
		})
		if !errors.Is(err, kdb.ErrMissing) {
			t.Errorf("expected ErrMissing, got %+v", err)
		}
	})
}

func TestSimple_Create(t *testing.T) {
	filter := kdb.NodePredicate{
		ParentExperiment: []string{"screening"},
		Kind:             []kdb.NodeKind{kdb.KindMolecule},
	}
	exclude := kdb.NodePredicate{Tags: []string{"discard"}}

	conf := create.Config{
		Inputs:        []create.InputQuery{{Filter: filter, Exclude: exclude}},
		OutExperiment: "zeolites",
		OutRecipe:     "vasp.relax",
		Options:       map[string]interface{}{"encut": 520},
		Tags:          []string{"auto"},
	}

	t.Run("it registers one job per unconsumed node", func(t *testing.T) {
		ctx := context.Background()
		mdb := newMockStore()

		// nodes 3, 5 and 6 already consumed; the store filters them out.
		eligible := molecules(1, 2, 4, 7)
		mdb.NodeInterface.Impl.FindChem = func(ctx context.Context, query kdb.NodeQuery) ([]kdb.ChemNode, error) {
			return eligible, nil
		}
		mdb.JobInterface.Impl.Register = func(
			ctx context.Context, experimentId int, recipeId int, jobs []kdb.NewJob, batchSize int,
		) ([]kdb.Job, error) {
			return utils.Map(jobs, func(nj kdb.NewJob) kdb.Job {
				return kdb.Job{
					JobBody: kdb.JobBody{
						EntryBody: kdb.EntryBody{Id: 100 + nj.Inputs[0]},
						Status:    kdb.Ready,
						Options:   nj.Options,
						Tags:      nj.Tags,
					},
					Experiment: fixtureExperiment(),
					Recipe:     fixtureRecipe(),
					Inputs:     nj.Inputs,
				}
			}), nil
		}

		creator := try.To(create.NewSimple(ctx, mdb, conf)).OrFatal(t)
		jobs, inputs, err := creator.Create(ctx, false)
		if err != nil {
			t.Fatalf("Create failed: %+v", err)
		}

		if len(jobs) != 4 {
			t.Errorf("expected 4 jobs, got %d", len(jobs))
		}
		if !cmp.SliceEqWith(inputs, eligible, func(a, b kdb.ChemNode) bool {
			return a.ChemBody().Id == b.ChemBody().Id
		}) {
			t.Errorf("unexpected inputs: %+v", inputs)
		}

		if mdb.NodeInterface.Calls.FindChem.Times() != 1 {
			t.Fatalf("FindChem should be called once")
		}
		query := mdb.NodeInterface.Calls.FindChem[0]
		if !query.Equal(kdb.NodeQuery{
			Filter:  filter,
			Exclude: exclude,
			ExcludeConsumedBy: &kdb.TargetPair{
				ExperimentId: fixtureExperiment().Id,
				RecipeId:     fixtureRecipe().Id,
			},
		}) {
			t.Errorf("unexpected node query: %+v", query)
		}

		if mdb.JobInterface.Calls.Register.Times() != 1 {
			t.Fatalf("Register should be called once")
		}
		reg := mdb.JobInterface.Calls.Register[0]
		if reg.ExperimentId != 10 || reg.RecipeId != 20 {
			t.Errorf("registered under wrong target: %+v", reg)
		}
		gotInputs := utils.Map(reg.Jobs, func(nj kdb.NewJob) []int { return nj.Inputs })
		wantInputs := [][]int{{1}, {2}, {4}, {7}}
		if !cmp.SliceEqWith(gotInputs, wantInputs, cmp.SliceEq[int]) {
			t.Errorf("expected inputs %v, got %v", wantInputs, gotInputs)
		}
	})

	t.Run("when dry run, it writes nothing and previews jobs", func(t *testing.T) {
		ctx := context.Background()
		mdb := newMockStore()
		mdb.NodeInterface.Impl.FindChem = func(ctx context.Context, query kdb.NodeQuery) ([]kdb.ChemNode, error) {
			return molecules(1, 2), nil
		}

		creator := try.To(create.NewSimple(ctx, mdb, conf)).OrFatal(t)
		jobs, _, err := creator.Create(ctx, true)
		if err != nil {
			t.Fatalf("Create failed: %+v", err)
		}

		if mdb.JobInterface.Calls.Register.Times() != 0 {
			t.Errorf("dry run should not register jobs")
		}
		for _, j := range jobs {
			if j.Id != 0 {
				t.Errorf("dry-run job should not have an id: %+v", j)
			}
			if j.Status != kdb.Ready {
				t.Errorf("previewed job should be Ready: %+v", j)
			}
		}
	})

	t.Run("when no node is eligible, it registers an empty batch", func(t *testing.T) {
		ctx := context.Background()
		mdb := newMockStore()
		mdb.NodeInterface.Impl.FindChem = func(ctx context.Context, query kdb.NodeQuery) ([]kdb.ChemNode, error) {
			return []kdb.ChemNode{}, nil
		}
		mdb.JobInterface.Impl.Register = func(
			ctx context.Context, experimentId int, recipeId int, jobs []kdb.NewJob, batchSize int,
		) ([]kdb.Job, error) {
			if len(jobs) != 0 {
				t.Errorf("expected empty batch, got %+v", jobs)
			}
			return []kdb.Job{}, nil
		}

		creator := try.To(create.NewSimple(ctx, mdb, conf)).OrFatal(t)
		jobs, _, err := creator.Create(ctx, false)
		if err != nil {
			t.Fatalf("Create failed: %+v", err)
		}
		if len(jobs) != 0 {
			t.Errorf("expected no jobs, got %+v", jobs)
		}
	})
}

func TestTuple_configuration(t *testing.T) {
	t.Run("when no input query is given, it refuses", func(t *testing.T) {
		ctx := context.Background()
		_, err := create.NewTuple(ctx, newMockStore(), create.Config{
			OutExperiment: "zeolites",
			OutRecipe:     "vasp.relax",
		})
		if !errors.Is(err, create.ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %+v", err)
		}
	})
}

func TestTuple_GetInputs(t *testing.T) {
	type When struct {
		slots    [][]int
		existing [][]int
	}
	type Then struct {
		combos [][]int
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()
			mdb := newMockStore()

			slot := 0
			mdb.NodeInterface.Impl.ChemIds = func(ctx context.Context, query kdb.NodeQuery) ([]int, error) {
				ids := when.slots[slot]
				slot += 1
				return ids, nil
			}
			mdb.JobInterface.Impl.ExistingInputSets = func(ctx context.Context, experimentId int, recipeId int) ([][]int, error) {
				return when.existing, nil
			}

			inputs := utils.Map(when.slots, func([]int) create.InputQuery {
				return create.InputQuery{}
			})
			creator := try.To(create.NewTuple(ctx, mdb, create.Config{
				Inputs:        inputs,
				OutExperiment: "zeolites",
				OutRecipe:     "vasp.relax",
			})).OrFatal(t)

			combos, err := creator.GetInputs(ctx)
			if err != nil {
				t.Fatalf("GetInputs failed: %+v", err)
			}
			if !cmp.SliceEqWith(combos, then.combos, cmp.SliceEq[int]) {
				t.Errorf("expected combinations %v, got %v", then.combos, combos)
			}
		}
	}

	t.Run("when one slot is given, it degenerates to one job per node", theory(
		When{slots: [][]int{{3, 1, 2}}},
		Then{combos: [][]int{{1}, {2}, {3}}},
	))

	t.Run("when slots overlap, it drops tuples repeating a node", theory(
		When{slots: [][]int{{1, 2}, {2, 3}}},
		Then{combos: [][]int{{1, 2}, {1, 3}, {2, 3}}},
	))

	t.Run("when two tuples are the same set, it keeps the set once", theory(
		When{slots: [][]int{{1, 2}, {1, 2}}},
		// (1,2) and (2,1) are both the set {1,2}.
		Then{combos: [][]int{{1, 2}}},
	))

	t.Run("when combinations already have jobs, it skips them", theory(
		When{
			slots:    [][]int{{1, 2, 3}, {4, 5}},
			existing: [][]int{{1, 4}, {3, 5}},
		},
		Then{combos: [][]int{{1, 5}, {2, 4}, {2, 5}, {3, 4}}},
	))

	t.Run("when every combination has a job, it finds nothing", theory(
		When{
			slots:    [][]int{{1, 2}, {3}},
			existing: [][]int{{1, 3}, {2, 3}},
		},
		Then{combos: [][]int{}},
	))

	t.Run("when existing sets come unsorted, it still matches them", theory(
		When{
			slots:    [][]int{{1, 2}, {3}},
			existing: [][]int{{3, 1}},
		},
		Then{combos: [][]int{{2, 3}}},
	))

	t.Run("when a slot is empty, there is no combination", theory(
		When{slots: [][]int{{1, 2}, {}}},
		Then{combos: [][]int{}},
	))
}

// a sizeable pairing: 7 candidates against 5, partly overlapping, with
// jobs already existing for some pairs. The expectation is enumerated
// here by hand, not derived from the code under test.
func TestTuple_GetInputs_largeSlots(t *testing.T) {
	ctx := context.Background()
	mdb := newMockStore()

	slots := [][]int{
		{1, 2, 3, 4, 5, 6, 7},
		{4, 5, 6, 7, 8},
	}
	existing := [][]int{{1, 4}, {2, 8}, {6, 7}}

	slot := 0
	mdb.NodeInterface.Impl.ChemIds = func(ctx context.Context, query kdb.NodeQuery) ([]int, error) {
		ids := slots[slot]
		slot += 1
		return ids, nil
	}
	mdb.JobInterface.Impl.ExistingInputSets = func(ctx context.Context, experimentId int, recipeId int) ([][]int, error) {
		return existing, nil
	}

	creator := try.To(create.NewTuple(ctx, mdb, create.Config{
		Inputs:        []create.InputQuery{{}, {}},
		OutExperiment: "zeolites",
		OutRecipe:     "vasp.relax",
	})).OrFatal(t)

	combos := try.To(creator.GetInputs(ctx)).OrFatal(t)

	// 7x5 = 35 raw pairs. Minus 4 self-pairings (4,4), (5,5), (6,6),
	// (7,7). The overlap folds 12 ordered pairs into 6 sets: {4,5},
	// {4,6}, {4,7}, {5,6}, {5,7}, {6,7}. Of the 25 sets left, 3 have
	// jobs already. 22 remain.
	want := [][]int{
		{1, 5}, {1, 6}, {1, 7}, {1, 8},
		{2, 4}, {2, 5}, {2, 6}, {2, 7},
		{3, 4}, {3, 5}, {3, 6}, {3, 7}, {3, 8},
		{4, 5}, {4, 6}, {4, 7}, {4, 8},
		{5, 6}, {5, 7}, {5, 8},
		{6, 8},
		{7, 8},
	}
	if !cmp.SliceEqWith(combos, want, cmp.SliceEq[int]) {
		t.Errorf("expected %d combinations %v, got %v", len(want), want, combos)
	}
}

// slot enumeration order must not leak into the result.
func TestTuple_GetInputs_orderIndependence(t *testing.T) {
	ctx := context.Background()

	run := func(slots [][]int) [][]int {
		mdb := newMockStore()
		slot := 0
		mdb.NodeInterface.Impl.ChemIds = func(ctx context.Context, query kdb.NodeQuery) ([]int, error) {
			ids := slots[slot]
			slot += 1
			return ids, nil
		}
		mdb.JobInterface.Impl.ExistingInputSets = func(ctx context.Context, experimentId int, recipeId int) ([][]int, error) {
			return [][]int{}, nil
		}
		creator := try.To(create.NewTuple(ctx, mdb, create.Config{
			Inputs:        []create.InputQuery{{}, {}},
			OutExperiment: "zeolites",
			OutRecipe:     "vasp.relax",
		})).OrFatal(t)
		return try.To(creator.GetInputs(ctx)).OrFatal(t)
	}

	a := run([][]int{{1, 2, 3}, {4, 5}})
	b := run([][]int{{3, 2, 1}, {5, 4}})

	if !cmp.SliceEqWith(a, b, cmp.SliceEq[int]) {
		t.Errorf("combinations depend on id order: %v vs %v", a, b)
	}
}

func TestTuple_Create(t *testing.T) {
	t.Run("it registers one job per combination and is idempotent", func(t *testing.T) {
		ctx := context.Background()
		mdb := newMockStore()

		slots := [][]int{{1, 2}, {3}}
		registered := [][]int{}

		slot := 0
		mdb.NodeInterface.Impl.ChemIds = func(ctx context.Context, query kdb.NodeQuery) ([]int, error) {
			ids := slots[slot%len(slots)]
			slot += 1
			return ids, nil
		}
		mdb.JobInterface.Impl.ExistingInputSets = func(ctx context.Context, experimentId int, recipeId int) ([][]int, error) {
			return registered, nil
		}
		mdb.JobInterface.Impl.Register = func(
			ctx context.Context, experimentId int, recipeId int, jobs []kdb.NewJob, batchSize int,
		) ([]kdb.Job, error) {
			created := []kdb.Job{}
			for n, nj := range jobs {
				registered = append(registered, nj.Inputs)
				created = append(created, kdb.Job{
					JobBody: kdb.JobBody{
						EntryBody: kdb.EntryBody{Id: 100 + n},
						Status:    kdb.Ready,
						Options:   nj.Options,
						Tags:      nj.Tags,
					},
					Experiment: fixtureExperiment(),
					Recipe:     fixtureRecipe(),
					Inputs:     nj.Inputs,
				})
			}
			return created, nil
		}

		conf := create.Config{
			Inputs:        []create.InputQuery{{}, {}},
			OutExperiment: "zeolites",
			OutRecipe:     "vasp.relax",
		}

		creator := try.To(create.NewTuple(ctx, mdb, conf)).OrFatal(t)
		jobs, combos, err := creator.Create(ctx, false)
		if err != nil {
			t.Fatalf("Create failed: %+v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(jobs))
		}
		if !cmp.SliceEqWith(combos, [][]int{{1, 3}, {2, 3}}, cmp.SliceEq[int]) {
			t.Errorf("unexpected combinations: %v", combos)
		}

		// second pass: everything already registered.
		again := try.To(create.NewTuple(ctx, mdb, conf)).OrFatal(t)
		jobs, combos, err = again.Create(ctx, false)
		if err != nil {
			t.Fatalf("second Create failed: %+v", err)
		}
		if len(jobs) != 0 || len(combos) != 0 {
			t.Errorf("second pass should create nothing, got %d jobs", len(jobs))
		}
	})
}
