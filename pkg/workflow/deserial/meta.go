package deserial

import (
	"context"
	"fmt"

	kdb "github.com/molsys/chemflow/pkg/db"
)

// meta entities are identified by unique name and resolved with
// get-or-create semantics: ingesting results for a known experiment
// never fails on "already exists".

func (r *Resolver) resolveProject(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	name, ok, err := stringField(fields, "name")
	if err != nil {
		return nil, err
	}
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: project needs a name", ErrValidation)
	}
	description, _, err := stringField(fields, "description")
	if err != nil {
		return nil, err
	}

	return r.store.Meta().GetOrCreateProject(ctx, kdb.Project{
		Name:        name,
		Description: description,
	})
}

func (r *Resolver) resolveExperiment(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	name, ok, err := stringField(fields, "name")
	if err != nil {
		return nil, err
	}
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: experiment needs a name", ErrValidation)
	}
	description, _, err := stringField(fields, "description")
	if err != nil {
		return nil, err
	}

	proto := kdb.Experiment{Name: name, Description: description}

	if rawProject, ok, err := mapField(fields, "project"); err != nil {
		return nil, err
	} else if ok {
		entity, err := r.nested(ctx, rawProject, (*Resolver).resolveProject)
		if err != nil {
			return nil, err
		}
		project, ok := entity.(kdb.Project)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a project", ErrDeserialize, entity)
		}
		proto.Project = project
	}

	return r.store.Meta().GetOrCreateExperiment(ctx, proto)
}

func (r *Resolver) resolveRecipe(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	name, ok, err := stringField(fields, "name")
	if err != nil {
		return nil, err
	}
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: recipe needs a name", ErrValidation)
	}

	proto := kdb.JobRecipe{Name: name}

	if rawMethod, ok, err := stringField(fields, "method"); err != nil {
		return nil, err
	} else if ok {
		method, err := kdb.AsRecipeMethod(rawMethod)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrValidation, err)
		}
		proto.Method = method
	}

	if defaults, ok, err := mapField(fields, "defaults"); err != nil {
		return nil, err
	} else if ok {
		proto.Defaults = defaults
	}

	if rawPackage, ok, err := mapField(fields, "package"); err != nil {
		return nil, err
	} else if ok {
		entity, err := r.nested(ctx, rawPackage, (*Resolver).resolvePackage)
		if err != nil {
			return nil, err
		}
		pkg, ok := entity.(kdb.JobPackage)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a package", ErrDeserialize, entity)
		}
		proto.Package = pkg
	}

	return r.store.Meta().GetOrCreateRecipe(ctx, proto)
}

func (r *Resolver) resolvePackage(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	name, ok, err := stringField(fields, "name")
	if err != nil {
		return nil, err
	}
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: package needs a name", ErrValidation)
	}
	return r.store.Meta().GetOrCreatePackage(ctx, kdb.JobPackage{Name: name})
}

func (r *Resolver) resolveFormula(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	name, ok, err := stringField(fields, "name")
	if err != nil {
		return nil, err
	}
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: formula needs a name", ErrValidation)
	}
	charge, _, err := intField(fields, "charge")
	if err != nil {
		return nil, err
	}
	return r.store.Meta().GetOrCreateFormula(ctx, kdb.Formula{
		Name:   name,
		Charge: charge,
	})
}

// nested resolves a sub-payload which may be either a full tagged
// dict or a bare dict whose shape the enclosing entity dictates.
func (r *Resolver) nested(
	ctx context.Context, raw map[string]interface{}, bare resolveFunc,
) (interface{}, error) {
	if _, tagged := raw[KeyClass]; tagged {
		return r.Resolve(ctx, raw)
	}
	return bare(r, ctx, raw)
}
