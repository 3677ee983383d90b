package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/molsys/chemflow/pkg/cmp"
)

type NodeKind string

const (
	KindChemNode     NodeKind = "ChemNode"
	KindMolecule     NodeKind = "Molecule"
	KindConformer    NodeKind = "Conformer"
	KindCrystal      NodeKind = "Crystal"
	KindCalcNode     NodeKind = "CalcNode"
	KindEnergyForces NodeKind = "EnergyForces"
	KindFeature      NodeKind = "Feature"
)

func (k NodeKind) String() string {
	return string(k)
}

func AsNodeKind(kind string) (NodeKind, error) {
	switch kind {
	case string(KindChemNode):
		return KindChemNode, nil
	case string(KindMolecule):
		return KindMolecule, nil
	case string(KindConformer):
		return KindConformer, nil
	case string(KindCrystal):
		return KindCrystal, nil
	case string(KindCalcNode):
		return KindCalcNode, nil
	case string(KindEnergyForces):
		return KindEnergyForces, nil
	case string(KindFeature):
		return KindFeature, nil
	default:
		return "", fmt.Errorf("'%s' is not NodeKind", kind)
	}
}

// NodeBody is shared by every chem node variant.
//
// Nodes are only ever created by ingesting one job's results, so every
// node points at the job which produced it. That reference is fixed for
// the node's whole life; provenance is append-only.
type NodeBody struct {
	EntryBody

	// id of the job which produced this node.
	ParentJob int
}

func (nb *NodeBody) Equal(o *NodeBody) bool {
	if (nb == nil) || (o == nil) {
		return (nb == nil) && (o == nil)
	}
	return nb.EntryBody.Equal(&o.EntryBody) && nb.ParentJob == o.ParentJob
}

// ChemNode is a chemical-structure record: one of Molecule, Conformer,
// Crystal, or the bare base node.
type ChemNode interface {
	ChemBody() NodeBody
	Kind() NodeKind
}

// Molecule holds a molecular graph, identified by inchikey and smiles.
type Molecule struct {
	NodeBody
	InchiKey   string
	Smiles     string
	SiteProps  map[string]interface{}
	Attributes map[string]interface{}
	Tags       []string
}

func (m Molecule) ChemBody() NodeBody { return m.NodeBody }
func (m Molecule) Kind() NodeKind     { return KindMolecule }

func (m Molecule) Equal(o Molecule) bool {
	return m.NodeBody.Equal(&o.NodeBody) &&
		m.InchiKey == o.InchiKey &&
		m.Smiles == o.Smiles &&
		cmp.MapJSONEq(m.SiteProps, o.SiteProps) &&
		cmp.MapJSONEq(m.Attributes, o.Attributes) &&
		cmp.SliceContentEq(m.Tags, o.Tags)
}

// Conformer is a 3d realization of a molecule.
type Conformer struct {
	NodeBody

	// id of the molecule this conformer realizes, if known.
	Mol *int

	Species    []string
	Coords     [][]float64
	SiteProps  map[string]interface{}
	Attributes map[string]interface{}
}

func (c Conformer) ChemBody() NodeBody { return c.NodeBody }
func (c Conformer) Kind() NodeKind     { return KindConformer }

func (c Conformer) Equal(o Conformer) bool {
	return c.NodeBody.Equal(&o.NodeBody) &&
		cmp.PEqEq(c.Mol, o.Mol) &&
		cmp.SliceEq(c.Species, o.Species) &&
		coordsEq(c.Coords, o.Coords) &&
		cmp.MapJSONEq(c.SiteProps, o.SiteProps) &&
		cmp.MapJSONEq(c.Attributes, o.Attributes)
}

// Crystal is a periodic structure.
type Crystal struct {
	NodeBody

	// id of the formula row, if assigned.
	Formula *int

	SpaceGroup int
	Species    []string
	Coords     [][]float64
	Lattice    [][]float64
	SiteProps  map[string]interface{}
	Attributes map[string]interface{}
	Tags       []string
}

func (c Crystal) ChemBody() NodeBody { return c.NodeBody }
func (c Crystal) Kind() NodeKind     { return KindCrystal }

func (c Crystal) Equal(o Crystal) bool {
	return c.NodeBody.Equal(&o.NodeBody) &&
		cmp.PEqEq(c.Formula, o.Formula) &&
		c.SpaceGroup == o.SpaceGroup &&
		cmp.SliceEq(c.Species, o.Species) &&
		coordsEq(c.Coords, o.Coords) &&
		coordsEq(c.Lattice, o.Lattice) &&
		cmp.MapJSONEq(c.SiteProps, o.SiteProps) &&
		cmp.MapJSONEq(c.Attributes, o.Attributes) &&
		cmp.SliceContentEq(c.Tags, o.Tags)
}

// BareChem is a chem node with no structured payload of its own.
type BareChem struct {
	NodeBody
}

func (b BareChem) ChemBody() NodeBody { return b.NodeBody }
func (b BareChem) Kind() NodeKind     { return KindChemNode }

// CalcBody is shared by every calc node variant.
//
// A calc node annotates exactly one chem node; an unattached calc node
// is floating information and is rejected by the store.
type CalcBody struct {
	EntryBody

	// id of the job which produced this node.
	ParentJob int

	// id of the chem node this calculation annotates.
	ChemNode int
}

func (cb *CalcBody) Equal(o *CalcBody) bool {
	if (cb == nil) || (o == nil) {
		return (cb == nil) && (o == nil)
	}
	return cb.EntryBody.Equal(&o.EntryBody) &&
		cb.ParentJob == o.ParentJob &&
		cb.ChemNode == o.ChemNode
}

// CalcNode is a calculation result annotating one chem node:
// one of EnergyForces, Feature, or the bare base node.
type CalcNode interface {
	CalcBody() CalcBody
	Kind() NodeKind
}

type EnergyForces struct {
	Body   CalcBody
	Energy *float64
	Forces [][]float64
}

func (ef EnergyForces) CalcBody() CalcBody { return ef.Body }
func (ef EnergyForces) Kind() NodeKind     { return KindEnergyForces }

func (ef EnergyForces) Equal(o EnergyForces) bool {
	return ef.Body.Equal(&o.Body) &&
		cmp.PEqEq(ef.Energy, o.Energy) &&
		coordsEq(ef.Forces, o.Forces)
}

type Feature struct {
	Body  CalcBody
	Value []float64
}

func (f Feature) CalcBody() CalcBody { return f.Body }
func (f Feature) Kind() NodeKind     { return KindFeature }

func (f Feature) Equal(o Feature) bool {
	return f.Body.Equal(&o.Body) && cmp.SliceEq(f.Value, o.Value)
}

type BareCalc struct {
	Body CalcBody
	Data map[string]interface{}
}

func (b BareCalc) CalcBody() CalcBody { return b.Body }
func (b BareCalc) Kind() NodeKind     { return KindCalcNode }

func (b BareCalc) Equal(o BareCalc) bool {
	return b.Body.Equal(&o.Body) && cmp.MapJSONEq(b.Data, o.Data)
}

// predicate over chem node attributes.
//
// When all dimensions match a node, this predicate matches the node.
type NodePredicate struct {
	// match if the producing job's experiment has one of these names.
	// Empty = match any.
	ParentExperiment []string

	// match if the producing job's recipe has one of these names.
	// Empty = match any.
	ParentRecipe []string

	// match if the producing job's status is one of these.
	// Empty = match any.
	ParentStatus []JobStatus

	// match if the node is one of these kinds. Empty = match any.
	Kind []NodeKind

	// match if the node carries one of these tags. Empty = match any.
	Tags []string
}

func (p NodePredicate) Equal(other NodePredicate) bool {
	return cmp.SliceContentEq(p.ParentExperiment, other.ParentExperiment) &&
		cmp.SliceContentEq(p.ParentRecipe, other.ParentRecipe) &&
		cmp.SliceContentEq(p.ParentStatus, other.ParentStatus) &&
		cmp.SliceContentEq(p.Kind, other.Kind) &&
		cmp.SliceContentEq(p.Tags, other.Tags)
}

// true when no dimension is set.
func (p NodePredicate) Empty() bool {
	return len(p.ParentExperiment) == 0 &&
		len(p.ParentRecipe) == 0 &&
		len(p.ParentStatus) == 0 &&
		len(p.Kind) == 0 &&
		len(p.Tags) == 0
}

// names an (experiment, recipe) pair by id.
type TargetPair struct {
	ExperimentId int
	RecipeId     int
}

// parameter to query chem nodes.
type NodeQuery struct {
	// nodes must match Filter...
	Filter NodePredicate

	// ...and must not match Exclude (an empty Exclude excludes nothing).
	Exclude NodePredicate

	// when set, drop nodes which already feed some job of this
	// (experiment, recipe) pair.
	ExcludeConsumedBy *TargetPair
}

func (q NodeQuery) Equal(other NodeQuery) bool {
	return q.Filter.Equal(other.Filter) &&
		q.Exclude.Equal(other.Exclude) &&
		cmp.PEqualWith(
			q.ExcludeConsumedBy, other.ExcludeConsumedBy,
			func(a, b TargetPair) bool { return a == b },
		)
}

// identity fields to look up molecules. Any set field must match.
type MoleculeRef struct {
	Id       *int
	Uuid     *uuid.UUID
	InchiKey *string
	Smiles   *string
}

func (r MoleculeRef) Empty() bool {
	return r.Id == nil && r.Uuid == nil && r.InchiKey == nil && r.Smiles == nil
}

type NodeInterface interface {
	// chem nodes matching the query, ordered by id.
	FindChem(ctx context.Context, query NodeQuery) ([]ChemNode, error)

	// like FindChem but only ids. Cheaper for combinatorial work.
	ChemIds(ctx context.Context, query NodeQuery) ([]int, error)

	// Retrieve one chem node with its concrete variant.
	//
	// Returns error wrapping ErrMissing when no such node exists.
	GetChem(ctx context.Context, id int) (ChemNode, error)

	// like GetChem, by uuid.
	GetChemByUuid(ctx context.Context, id uuid.UUID) (ChemNode, error)

	// molecules matching every set field of ref, ordered by id.
	FindMolecules(ctx context.Context, ref MoleculeRef) ([]Molecule, error)

	// persist a chem node variant. The returned node carries the
	// assigned id/uuid/timestamps.
	CreateChem(ctx context.Context, node ChemNode) (ChemNode, error)

	// update a chem node variant's payload fields. Parent job is fixed.
	UpdateChem(ctx context.Context, node ChemNode) (ChemNode, error)

	// persist a calc node variant. Rejects nodes without an owning
	// chem node id.
	CreateCalc(ctx context.Context, node CalcNode) (CalcNode, error)
}

func coordsEq(a, b [][]float64) bool {
	return cmp.SliceEqWith(a, b, cmp.SliceEq[float64])
}
