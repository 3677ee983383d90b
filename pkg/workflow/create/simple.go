package create

import (
	"context"

	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/utils"
)

// Simple creates one job per matching chem node.
//
// Nodes already feeding a job of the target (experiment, recipe) pair
// are excluded at query time, so running the same Simple twice creates
// nothing on the second pass.
type Simple struct {
	base
}

// NewSimple builds a Simple creator.
//
// Args
//
// - ctx
//
// - database: store to read nodes from and write jobs into.
//
// - conf: must carry exactly one input query. Its OutExperiment and
// OutRecipe must name existing records.
//
// Returns
//
// - *Simple
//
// - error: ErrConfiguration when the input query count is not 1,
// or the store's ErrMissing when the target pair does not exist.
func NewSimple(ctx context.Context, database kdb.ChemDatabase, conf Config) (*Simple, error) {
	if len(conf.Inputs) != 1 {
		return nil, errInputCount("simple creator", "exactly one", len(conf.Inputs))
	}
	b, err := newBase(ctx, database, conf)
	if err != nil {
		return nil, err
	}
	return &Simple{base: b}, nil
}

// GetInputs lists the chem nodes eligible to feed a new job.
func (c *Simple) GetInputs(ctx context.Context) ([]kdb.ChemNode, error) {
	iq := c.conf.Inputs[0]
	return c.db.Nodes().FindChem(ctx, kdb.NodeQuery{
		Filter:  iq.Filter,
		Exclude: iq.Exclude,
		ExcludeConsumedBy: &kdb.TargetPair{
			ExperimentId: c.experiment.Id,
			RecipeId:     c.recipe.Id,
		},
	})
}

// Create registers one job per eligible node.
//
// When dryRun is true nothing is written; the returned jobs are
// templates with zero ids.
//
// Returns
//
// - []kdb.Job: the jobs created (or previewed), one per input node.
//
// - []kdb.ChemNode: the nodes that fed them, in matching order.
//
// - error
func (c *Simple) Create(ctx context.Context, dryRun bool) ([]kdb.Job, []kdb.ChemNode, error) {
	inputs, err := c.GetInputs(ctx)
	if err != nil {
		return nil, nil, err
	}

	newJobs := utils.Map(inputs, func(n kdb.ChemNode) kdb.NewJob {
		return c.newJob([]int{n.ChemBody().Id})
	})

	if dryRun {
		return c.preview(newJobs), inputs, nil
	}

	created, err := c.register(ctx, newJobs)
	if err != nil {
		return nil, nil, err
	}
	return created, inputs, nil
}
