// Package create computes and registers new jobs from chem nodes
// already in the store.
//
// A creator is configured with input queries (what may feed the new
// jobs) and an output (experiment, recipe) target pair. It never
// creates the same work twice: nodes and node combinations already
// consumed by jobs of the target pair are skipped.
package create

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/utils"
)

// caller passed a configuration no creator can act on. Fatal, no retry.
var ErrConfiguration = errors.New("invalid job creator configuration")

// InputQuery selects candidate input nodes for one slot of a job.
type InputQuery struct {
	// nodes must match Filter...
	Filter kdb.NodePredicate

	// ...and must not match Exclude.
	Exclude kdb.NodePredicate
}

// Config is shared by every creator variant.
type Config struct {
	// one InputQuery per input slot of the jobs to be created.
	Inputs []InputQuery

	// name of the experiment the new jobs belong to. Must exist.
	OutExperiment string

	// name of the recipe the new jobs run. Must exist.
	OutRecipe string

	// options overriding the recipe defaults, copied to every new job.
	Options map[string]interface{}

	// tags attached to every new job.
	Tags []string

	// chunk size for bulk writes. <= 0 means a single chunk.
	BatchSize int
}

type base struct {
	db         kdb.ChemDatabase
	conf       Config
	experiment kdb.Experiment
	recipe     kdb.JobRecipe
}

// resolve the output target pair. A missing experiment or recipe name
// surfaces as the store's ErrMissing; nothing is created implicitly.
func newBase(ctx context.Context, database kdb.ChemDatabase, conf Config) (base, error) {
	experiment, err := database.Meta().GetExperiment(ctx, conf.OutExperiment)
	if err != nil {
		return base{}, err
	}
	recipe, err := database.Meta().GetRecipe(ctx, conf.OutRecipe)
	if err != nil {
		return base{}, err
	}

	return base{
		db:         database,
		conf:       conf,
		experiment: experiment,
		recipe:     recipe,
	}, nil
}

func (b *base) newJob(inputs []int) kdb.NewJob {
	options := b.conf.Options
	if options == nil {
		options = map[string]interface{}{}
	}
	return kdb.NewJob{
		Options: options,
		Tags:    b.conf.Tags,
		Inputs:  inputs,
	}
}

// unsaved job values as Create would build them. Used for dry runs.
func (b *base) preview(newJobs []kdb.NewJob) []kdb.Job {
	return utils.Map(newJobs, func(nj kdb.NewJob) kdb.Job {
		return kdb.Job{
			JobBody: kdb.JobBody{
				Status:  kdb.Ready,
				Options: nj.Options,
				Tags:    nj.Tags,
			},
			Experiment: b.experiment,
			Recipe:     b.recipe,
			Inputs:     nj.Inputs,
		}
	})
}

func (b *base) register(ctx context.Context, newJobs []kdb.NewJob) ([]kdb.Job, error) {
	var created []kdb.Job
	err := b.db.Transaction(ctx, func(s kdb.ChemStore) error {
		jobs, err := s.Jobs().Register(
			ctx, b.experiment.Id, b.recipe.Id, newJobs, b.conf.BatchSize,
		)
		if err != nil {
			return err
		}
		created = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// canonical form of an input-id tuple: ids sorted ascending.
func canonical(tup []int) []int {
	return utils.Sorted(tup, func(a, b int) bool { return a < b })
}

func comboKey(canon []int) string {
	return strings.Join(
		utils.Map(canon, strconv.Itoa), ",",
	)
}

func hasRepeatedId(tup []int) bool {
	seen := make(map[int]struct{}, len(tup))
	for _, id := range tup {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// sort tuples lexicographically, so the result of combinatorial work
// does not depend on slot enumeration order.
func sortTuples(tups [][]int) {
	sort.Slice(tups, func(i, j int) bool {
		a, b := tups[i], tups[j]
		for n := 0; n < len(a) && n < len(b); n++ {
			if a[n] != b[n] {
				return a[n] < b[n]
			}
		}
		return len(a) < len(b)
	})
}

func errInputCount(creator string, want string, got int) error {
	return fmt.Errorf(
		"%w: %s takes %s input query, got %d",
		ErrConfiguration, creator, want, got,
	)
}
