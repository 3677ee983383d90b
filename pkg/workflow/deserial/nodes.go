package deserial

import (
	"context"
	"fmt"

	kdb "github.com/molsys/chemflow/pkg/db"
)

// Chem node payloads may name an existing row (molecules also by
// inchikey or smiles); found rows are updated in place with the parent
// job left untouched. Calc nodes are never looked up: they only exist
// as part of ingesting one job's results, so every calc payload is a
// new row.

func moleculeRef(fields map[string]interface{}) (kdb.MoleculeRef, error) {
	ref := kdb.MoleculeRef{}

	if id, ok, err := intField(fields, "id"); err != nil {
		return ref, err
	} else if ok {
		ref.Id = &id
	}
	if uid, ok, err := uuidField(fields, "uuid"); err != nil {
		return ref, err
	} else if ok {
		ref.Uuid = &uid
	}
	if inchikey, ok, err := stringField(fields, "inchikey"); err != nil {
		return ref, err
	} else if ok && inchikey != "" {
		ref.InchiKey = &inchikey
	}
	if smiles, ok, err := stringField(fields, "smiles"); err != nil {
		return ref, err
	} else if ok && smiles != "" {
		ref.Smiles = &smiles
	}

	return ref, nil
}

func parentJobField(fields map[string]interface{}, kind kdb.NodeKind) (int, error) {
	id, ok, err := intField(fields, "parentjob")
	if err != nil {
		return 0, err
	}
	if !ok || id <= 0 {
		return 0, fmt.Errorf("%w: %s needs a parent job", ErrValidation, kind)
	}
	return id, nil
}

func (r *Resolver) resolveMolecule(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	ref, err := moleculeRef(fields)
	if err != nil {
		return nil, err
	}

	if !ref.Empty() {
		found, err := r.store.Nodes().FindMolecules(ctx, ref)
		if err != nil {
			return nil, err
		}
		if len(found) > 1 {
			return nil, fmt.Errorf(
				"%w: molecule reference matches %d rows", ErrValidation, len(found),
			)
		}
		if len(found) == 1 {
			return r.updateMolecule(ctx, found[0], fields)
		}
	}

	parentJob, err := parentJobField(fields, kdb.KindMolecule)
	if err != nil {
		return nil, err
	}
	inchikey, _, err := stringField(fields, "inchikey")
	if err != nil {
		return nil, err
	}
	if inchikey == "" {
		return nil, fmt.Errorf("%w: new molecule needs an inchikey", ErrValidation)
	}
	smiles, _, err := stringField(fields, "smiles")
	if err != nil {
		return nil, err
	}
	siteProps, _, err := mapField(fields, "siteprops")
	if err != nil {
		return nil, err
	}
	attributes, _, err := mapField(fields, "attributes")
	if err != nil {
		return nil, err
	}
	tags, _, err := stringsField(fields, "tags")
	if err != nil {
		return nil, err
	}

	return r.store.Nodes().CreateChem(ctx, kdb.Molecule{
		NodeBody:   kdb.NodeBody{ParentJob: parentJob},
		InchiKey:   inchikey,
		Smiles:     smiles,
		SiteProps:  siteProps,
		Attributes: attributes,
		Tags:       tags,
	})
}

func (r *Resolver) updateMolecule(ctx context.Context, mol kdb.Molecule, fields map[string]interface{}) (interface{}, error) {
	if smiles, ok, err := stringField(fields, "smiles"); err != nil {
		return nil, err
	} else if ok && smiles != "" {
		mol.Smiles = smiles
	}
	if siteProps, ok, err := mapField(fields, "siteprops"); err != nil {
		return nil, err
	} else if ok {
		mol.SiteProps = siteProps
	}
	if attributes, ok, err := mapField(fields, "attributes"); err != nil {
		return nil, err
	} else if ok {
		mol.Attributes = attributes
	}
	if tags, ok, err := stringsField(fields, "tags"); err != nil {
		return nil, err
	} else if ok {
		mol.Tags = tags
	}

	return r.store.Nodes().UpdateChem(ctx, mol)
}

func (r *Resolver) resolveConformer(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	if found, ok, err := r.lookupChem(ctx, fields); err != nil {
		return nil, err
	} else if ok {
		conformer, isConformer := found.(kdb.Conformer)
		if !isConformer {
			return nil, fmt.Errorf(
				"%w: node %d is %s, not %s",
				ErrValidation, found.ChemBody().Id, found.Kind(), kdb.KindConformer,
			)
		}
		return r.updateConformer(ctx, conformer, fields)
	}

	parentJob, err := parentJobField(fields, kdb.KindConformer)
	if err != nil {
		return nil, err
	}
	conformer := kdb.Conformer{NodeBody: kdb.NodeBody{ParentJob: parentJob}}
	if err := r.applyConformerFields(ctx, &conformer, fields); err != nil {
		return nil, err
	}
	return r.store.Nodes().CreateChem(ctx, conformer)
}

func (r *Resolver) updateConformer(ctx context.Context, conformer kdb.Conformer, fields map[string]interface{}) (interface{}, error) {
	if err := r.applyConformerFields(ctx, &conformer, fields); err != nil {
		return nil, err
	}
	return r.store.Nodes().UpdateChem(ctx, conformer)
}

func (r *Resolver) applyConformerFields(ctx context.Context, conformer *kdb.Conformer, fields map[string]interface{}) error {
	molId, err := r.moleculeIdRef(ctx, fields, "mol")
	if err != nil {
		return err
	}
	if molId != nil {
		conformer.Mol = molId
	}

	if species, ok, err := stringsField(fields, "species"); err != nil {
		return err
	} else if ok {
		conformer.Species = species
	}
	if coords, ok, err := matrixField(fields, "coords"); err != nil {
		return err
	} else if ok {
		conformer.Coords = coords
	}
	if siteProps, ok, err := mapField(fields, "siteprops"); err != nil {
		return err
	} else if ok {
		conformer.SiteProps = siteProps
	}
	if attributes, ok, err := mapField(fields, "attributes"); err != nil {
		return err
	} else if ok {
		conformer.Attributes = attributes
	}
	return nil
}

func (r *Resolver) resolveCrystal(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	if found, ok, err := r.lookupChem(ctx, fields); err != nil {
		return nil, err
	} else if ok {
		crystal, isCrystal := found.(kdb.Crystal)
		if !isCrystal {
			return nil, fmt.Errorf(
				"%w: node %d is %s, not %s",
				ErrValidation, found.ChemBody().Id, found.Kind(), kdb.KindCrystal,
			)
		}
		return r.updateCrystal(ctx, crystal, fields)
	}

	parentJob, err := parentJobField(fields, kdb.KindCrystal)
	if err != nil {
		return nil, err
	}
	crystal := kdb.Crystal{NodeBody: kdb.NodeBody{ParentJob: parentJob}}
	if err := r.applyCrystalFields(ctx, &crystal, fields); err != nil {
		return nil, err
	}
	return r.store.Nodes().CreateChem(ctx, crystal)
}

func (r *Resolver) updateCrystal(ctx context.Context, crystal kdb.Crystal, fields map[string]interface{}) (interface{}, error) {
	if err := r.applyCrystalFields(ctx, &crystal, fields); err != nil {
		return nil, err
	}
	return r.store.Nodes().UpdateChem(ctx, crystal)
}

func (r *Resolver) applyCrystalFields(ctx context.Context, crystal *kdb.Crystal, fields map[string]interface{}) error {
	formulaId, err := r.formulaIdRef(ctx, fields, "formula")
	if err != nil {
		return err
	}
	if formulaId != nil {
		crystal.Formula = formulaId
	}

	if spaceGroup, ok, err := intField(fields, "spacegroup"); err != nil {
		return err
	} else if ok {
		crystal.SpaceGroup = spaceGroup
	}
	if species, ok, err := stringsField(fields, "species"); err != nil {
		return err
	} else if ok {
		crystal.Species = species
	}
	if coords, ok, err := matrixField(fields, "coords"); err != nil {
		return err
	} else if ok {
		crystal.Coords = coords
	}
	if lattice, ok, err := matrixField(fields, "lattice"); err != nil {
		return err
	} else if ok {
		crystal.Lattice = lattice
	}
	if siteProps, ok, err := mapField(fields, "siteprops"); err != nil {
		return err
	} else if ok {
		crystal.SiteProps = siteProps
	}
	if attributes, ok, err := mapField(fields, "attributes"); err != nil {
		return err
	} else if ok {
		crystal.Attributes = attributes
	}
	if tags, ok, err := stringsField(fields, "tags"); err != nil {
		return err
	} else if ok {
		crystal.Tags = tags
	}
	return nil
}

func (r *Resolver) resolveBareChem(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	if found, ok, err := r.lookupChem(ctx, fields); err != nil {
		return nil, err
	} else if ok {
		return found, nil
	}

	parentJob, err := parentJobField(fields, kdb.KindChemNode)
	if err != nil {
		return nil, err
	}
	return r.store.Nodes().CreateChem(ctx, kdb.BareChem{
		NodeBody: kdb.NodeBody{ParentJob: parentJob},
	})
}

// lookupChem fetches the chem node a payload names by id or uuid.
// Reports (nil, false, nil) when the payload carries no identity.
func (r *Resolver) lookupChem(ctx context.Context, fields map[string]interface{}) (kdb.ChemNode, bool, error) {
	id, ok, err := intField(fields, "id")
	if err != nil {
		return nil, false, err
	}
	if ok {
		node, err := r.store.Nodes().GetChem(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return node, true, nil
	}

	uid, ok, err := uuidField(fields, "uuid")
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	node, err := r.store.Nodes().GetChemByUuid(ctx, uid)
	if err != nil {
		return nil, false, err
	}
	return node, true, nil
}

// moleculeIdRef reads a molecule reference field holding either a bare
// id or a nested payload, and resolves it to a row id.
func (r *Resolver) moleculeIdRef(ctx context.Context, fields map[string]interface{}, key string) (*int, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, nil
	}

	if id, isNumber := asNumber(raw); isNumber {
		n := int(id)
		return &n, nil
	}

	sub, isMap := raw.(map[string]interface{})
	if !isMap {
		return nil, errFieldType(key, "molecule reference", raw)
	}
	entity, err := r.nested(ctx, sub, (*Resolver).resolveMolecule)
	if err != nil {
		return nil, err
	}
	mol, ok := entity.(kdb.Molecule)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a molecule", ErrDeserialize, entity)
	}
	n := mol.Id
	return &n, nil
}

// formulaIdRef reads a formula reference field holding either a bare
// id or a {name, charge} payload, and resolves it to a row id.
func (r *Resolver) formulaIdRef(ctx context.Context, fields map[string]interface{}, key string) (*int, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, nil
	}

	if id, isNumber := asNumber(raw); isNumber {
		n := int(id)
		return &n, nil
	}

	sub, isMap := raw.(map[string]interface{})
	if !isMap {
		return nil, errFieldType(key, "formula reference", raw)
	}
	entity, err := r.nested(ctx, sub, (*Resolver).resolveFormula)
	if err != nil {
		return nil, err
	}
	formula, ok := entity.(kdb.Formula)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a formula", ErrDeserialize, entity)
	}
	n := formula.Id
	return &n, nil
}

func calcBodyFields(fields map[string]interface{}, kind kdb.NodeKind) (kdb.CalcBody, error) {
	parentJob, ok, err := intField(fields, "parentjob")
	if err != nil {
		return kdb.CalcBody{}, err
	}
	if !ok || parentJob <= 0 {
		return kdb.CalcBody{}, fmt.Errorf("%w: %s needs a parent job", ErrValidation, kind)
	}

	chemNode, ok, err := intField(fields, "chemnode")
	if err != nil {
		return kdb.CalcBody{}, err
	}
	if !ok || chemNode <= 0 {
		return kdb.CalcBody{}, fmt.Errorf("%w: %s needs a chem node to annotate", ErrValidation, kind)
	}

	return kdb.CalcBody{ParentJob: parentJob, ChemNode: chemNode}, nil
}

func (r *Resolver) resolveEnergyForces(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	body, err := calcBodyFields(fields, kdb.KindEnergyForces)
	if err != nil {
		return nil, err
	}

	node := kdb.EnergyForces{Body: body}
	if energy, ok, err := floatField(fields, "energy"); err != nil {
		return nil, err
	} else if ok {
		node.Energy = &energy
	}
	if forces, ok, err := matrixField(fields, "forces"); err != nil {
		return nil, err
	} else if ok {
		node.Forces = forces
	}

	return r.store.Nodes().CreateCalc(ctx, node)
}

func (r *Resolver) resolveFeature(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	body, err := calcBodyFields(fields, kdb.KindFeature)
	if err != nil {
		return nil, err
	}

	node := kdb.Feature{Body: body}
	if value, ok, err := vectorField(fields, "value"); err != nil {
		return nil, err
	} else if ok {
		node.Value = value
	}

	return r.store.Nodes().CreateCalc(ctx, node)
}

func (r *Resolver) resolveBareCalc(ctx context.Context, fields map[string]interface{}) (interface{}, error) {
	body, err := calcBodyFields(fields, kdb.KindCalcNode)
	if err != nil {
		return nil, err
	}

	node := kdb.BareCalc{Body: body}
	if data, ok, err := mapField(fields, "data"); err != nil {
		return nil, err
	} else if ok {
		node.Data = data
	}

	return r.store.Nodes().CreateCalc(ctx, node)
}
