// Package deserial turns tagged dicts into persisted entities.
//
// A tagged dict is a decoded JSON object carrying the reserved keys
// "@module" and "@class"; the class name selects a resolver in a fixed
// registry. Resolvers look an existing row up by the identity fields
// present in the payload (id, uuid, unique name, inchikey, smiles),
// apply the remaining fields as an update, or persist a new row when
// no identity is given.
//
// Resolvers write to the store as they go and do not roll back on
// their own. Callers ingesting a whole envelope run the resolver
// inside one store transaction.
package deserial

import (
	"context"
	"fmt"

	kdb "github.com/molsys/chemflow/pkg/db"
)

// reserved keys of a tagged dict.
const (
	KeyModule = "@module"
	KeyClass  = "@class"
)

type resolveFunc func(r *Resolver, ctx context.Context, fields map[string]interface{}) (interface{}, error)

// class name -> resolver. Fixed at init; payloads cannot extend it.
//
// Populated in init, not in the declaration: the resolvers reach
// Resolve through nested payloads, so a composite literal here would
// refer to the map it is initializing.
var registry map[string]resolveFunc

func init() {
	registry = map[string]resolveFunc{
		"Project":      (*Resolver).resolveProject,
		"Experiment":   (*Resolver).resolveExperiment,
		"JobRecipe":    (*Resolver).resolveRecipe,
		"JobPackage":   (*Resolver).resolvePackage,
		"Formula":      (*Resolver).resolveFormula,
		"Job":          (*Resolver).resolveJob,
		"Molecule":     (*Resolver).resolveMolecule,
		"Conformer":    (*Resolver).resolveConformer,
		"Crystal":      (*Resolver).resolveCrystal,
		"EnergyForces": (*Resolver).resolveEnergyForces,
		"Feature":      (*Resolver).resolveFeature,
		"ChemNode":     (*Resolver).resolveBareChem,
		"CalcNode":     (*Resolver).resolveBareCalc,
	}
}

// Resolver deserializes tagged dicts against one store handle.
//
// The handle may be the database itself or a transaction-bound store;
// the resolver does not care which.
type Resolver struct {
	store kdb.ChemStore
}

func New(store kdb.ChemStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve deserializes one tagged dict and persists the result.
//
// Args
//
// - ctx
//
// - payload: decoded object with "@module" and "@class" plus the
// entity's fields. Reserved keys are stripped before the entity
// resolver sees them.
//
// Returns
//
// - interface{}: the persisted entity (kdb.Project, kdb.Job,
// a kdb.ChemNode variant, ...). Callers wanting a concrete type use
// the typed wrappers.
//
// - error: ErrDeserialize when the tag keys are absent,
// ErrUnknownEntityType for an unregistered class, ErrValidation for
// bad field content, or the store's error.
func (r *Resolver) Resolve(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
	class, fields, err := splitTag(payload)
	if err != nil {
		return nil, err
	}
	resolve, ok := registry[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, class)
	}
	return resolve(r, ctx, fields)
}

// ResolveJob is Resolve, insisting the payload is a job.
func (r *Resolver) ResolveJob(ctx context.Context, payload map[string]interface{}) (kdb.Job, error) {
	entity, err := r.Resolve(ctx, payload)
	if err != nil {
		return kdb.Job{}, err
	}
	job, ok := entity.(kdb.Job)
	if !ok {
		return kdb.Job{}, fmt.Errorf("%w: %T is not a job", ErrDeserialize, entity)
	}
	return job, nil
}

// ResolveChem is Resolve, insisting the payload is a chem node variant.
func (r *Resolver) ResolveChem(ctx context.Context, payload map[string]interface{}) (kdb.ChemNode, error) {
	entity, err := r.Resolve(ctx, payload)
	if err != nil {
		return nil, err
	}
	node, ok := entity.(kdb.ChemNode)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a chem node", ErrDeserialize, entity)
	}
	return node, nil
}

// ResolveCalc is Resolve, insisting the payload is a calc node variant.
func (r *Resolver) ResolveCalc(ctx context.Context, payload map[string]interface{}) (kdb.CalcNode, error) {
	entity, err := r.Resolve(ctx, payload)
	if err != nil {
		return nil, err
	}
	node, ok := entity.(kdb.CalcNode)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a calc node", ErrDeserialize, entity)
	}
	return node, nil
}

// splitTag pulls the class name out of a tagged dict and returns the
// remaining fields as a copy. The original payload is not modified.
func splitTag(payload map[string]interface{}) (string, map[string]interface{}, error) {
	rawClass, ok := payload[KeyClass]
	if !ok {
		return "", nil, fmt.Errorf("%w: missing %s", ErrDeserialize, KeyClass)
	}
	class, ok := rawClass.(string)
	if !ok || class == "" {
		return "", nil, fmt.Errorf("%w: %s should be a non-empty string", ErrDeserialize, KeyClass)
	}
	if _, ok := payload[KeyModule]; !ok {
		return "", nil, fmt.Errorf("%w: missing %s", ErrDeserialize, KeyModule)
	}

	fields := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == KeyClass || k == KeyModule {
			continue
		}
		fields[k] = v
	}
	return class, fields, nil
}
