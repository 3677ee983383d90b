package db

import (
	"context"
	"fmt"
)

// Project groups experiments. Identified by its unique name.
type Project struct {
	EntryBody
	Name        string
	Description string
}

func (p *Project) Equal(o *Project) bool {
	if (p == nil) || (o == nil) {
		return (p == nil) && (o == nil)
	}
	return p.Name == o.Name && p.Description == o.Description
}

// Experiment belongs to exactly one project and owns jobs.
type Experiment struct {
	EntryBody
	Name        string
	Description string
	Project     Project
}

func (e *Experiment) Equal(o *Experiment) bool {
	if (e == nil) || (o == nil) {
		return (e == nil) && (o == nil)
	}
	return e.Name == o.Name &&
		e.Description == o.Description &&
		e.Project.Equal(&o.Project)
}

// JobPackage names the software producing a recipe.
type JobPackage struct {
	EntryBody
	Name string
}

func (p *JobPackage) Equal(o *JobPackage) bool {
	if (p == nil) || (o == nil) {
		return (p == nil) && (o == nil)
	}
	return p.Name == o.Name
}

type RecipeMethod string

const (
	DFT RecipeMethod = "DFT" // density functional theory
	FF  RecipeMethod = "FF"  // force field
	WF  RecipeMethod = "WF"  // wavefunction
	ML  RecipeMethod = "ML"  // machine learning
	FT  RecipeMethod = "FT"  // featurization
	EXT RecipeMethod = "EXT" // external source
	GEN RecipeMethod = "GEN" // generation
)

func (rm RecipeMethod) String() string {
	return string(rm)
}

func AsRecipeMethod(method string) (RecipeMethod, error) {
	switch method {
	case string(DFT):
		return DFT, nil
	case string(FF):
		return FF, nil
	case string(WF):
		return WF, nil
	case string(ML):
		return ML, nil
	case string(FT):
		return FT, nil
	case string(EXT):
		return EXT, nil
	case string(GEN):
		return GEN, nil
	default:
		return "", fmt.Errorf("'%s' is not RecipeMethod", method)
	}
}

// JobRecipe is the named computational method of a job,
// together with its default options.
type JobRecipe struct {
	EntryBody
	Name     string
	Method   RecipeMethod
	Defaults map[string]interface{}
	Package  JobPackage
}

func (r *JobRecipe) Equal(o *JobRecipe) bool {
	if (r == nil) || (o == nil) {
		return (r == nil) && (o == nil)
	}
	return r.Name == o.Name &&
		r.Method == o.Method &&
		mapDeepEqual(r.Defaults, o.Defaults) &&
		r.Package.Equal(&o.Package)
}

// Formula is a normalized chemical formula string with an integer charge.
// Unique by name.
type Formula struct {
	Id     int
	Name   string
	Charge int
}

func (f *Formula) Equal(o *Formula) bool {
	if (f == nil) || (o == nil) {
		return (f == nil) && (o == nil)
	}
	return f.Name == o.Name && f.Charge == o.Charge
}

type MetaInterface interface {
	// get a project by its unique name.
	//
	// Returns error wrapping ErrMissing when no such project exists.
	GetProject(ctx context.Context, name string) (Project, error)

	// get a project by name, creating it first when absent. Idempotent.
	GetOrCreateProject(ctx context.Context, proto Project) (Project, error)

	GetExperiment(ctx context.Context, name string) (Experiment, error)

	// get an experiment by name, creating it (and its project, by name)
	// first when absent. Idempotent.
	GetOrCreateExperiment(ctx context.Context, proto Experiment) (Experiment, error)

	GetRecipe(ctx context.Context, name string) (JobRecipe, error)

	GetOrCreateRecipe(ctx context.Context, proto JobRecipe) (JobRecipe, error)

	GetOrCreatePackage(ctx context.Context, proto JobPackage) (JobPackage, error)

	GetOrCreateFormula(ctx context.Context, proto Formula) (Formula, error)
}
