package create

import (
	"context"

	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/utils"
	"github.com/molsys/chemflow/pkg/utils/combination"
)

// Tuple creates one job per combination of chem nodes, one node drawn
// from each input query.
//
// A combination is an unordered set: tuples differing only in slot
// order are the same combination, and a node may not appear twice in
// one. Combinations already registered for the target pair are
// skipped, so repeated runs converge to zero new jobs.
type Tuple struct {
	base
}

// NewTuple builds a Tuple creator.
//
// Args
//
// - ctx
//
// - database: store to read nodes from and write jobs into.
//
// - conf: must carry at least one input query. Its OutExperiment and
// OutRecipe must name existing records.
//
// Returns
//
// - *Tuple
//
// - error: ErrConfiguration when no input query is given, or the
// store's ErrMissing when the target pair does not exist.
func NewTuple(ctx context.Context, database kdb.ChemDatabase, conf Config) (*Tuple, error) {
	if len(conf.Inputs) < 1 {
		return nil, errInputCount("tuple creator", "at least one", len(conf.Inputs))
	}
	b, err := newBase(ctx, database, conf)
	if err != nil {
		return nil, err
	}
	return &Tuple{base: b}, nil
}

// GetInputs enumerates the input-id combinations still missing a job.
//
// Each returned tuple is sorted ascending. The tuples themselves come
// in lexicographic order, whatever order the store returned ids in.
func (c *Tuple) GetInputs(ctx context.Context) ([][]int, error) {
	slots := make([][]int, 0, len(c.conf.Inputs))
	for _, iq := range c.conf.Inputs {
		ids, err := c.db.Nodes().ChemIds(ctx, kdb.NodeQuery{
			Filter:  iq.Filter,
			Exclude: iq.Exclude,
		})
		if err != nil {
			return nil, err
		}
		slots = append(slots, ids)
	}

	existing, err := c.db.Jobs().ExistingInputSets(ctx, c.experiment.Id, c.recipe.Id)
	if err != nil {
		return nil, err
	}

	return newCombinations(slots, existing), nil
}

// Create registers one job per missing combination.
//
// When dryRun is true nothing is written; the returned jobs are
// templates with zero ids.
//
// Returns
//
// - []kdb.Job: the jobs created (or previewed), one per combination.
//
// - [][]int: the combinations that fed them, in matching order.
//
// - error
func (c *Tuple) Create(ctx context.Context, dryRun bool) ([]kdb.Job, [][]int, error) {
	combos, err := c.GetInputs(ctx)
	if err != nil {
		return nil, nil, err
	}

	newJobs := utils.Map(combos, func(tup []int) kdb.NewJob {
		return c.newJob(tup)
	})

	if dryRun {
		return c.preview(newJobs), combos, nil
	}

	created, err := c.register(ctx, newJobs)
	if err != nil {
		return nil, nil, err
	}
	return created, combos, nil
}

// newCombinations takes the cartesian product of the slots and keeps
// the combinations worth a job: no node repeated within a tuple, each
// unordered combination once, and none already in existing.
func newCombinations(slots [][]int, existing [][]int) [][]int {
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[comboKey(canonical(e))] = struct{}{}
	}

	out := [][]int{}
	for _, tup := range combination.Cartesian(slots) {
		if hasRepeatedId(tup) {
			continue
		}
		canon := canonical(tup)
		key := comboKey(canon)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, canon)
	}

	sortTuples(out)
	return out
}
