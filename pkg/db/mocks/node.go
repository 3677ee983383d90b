package mocks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	kdb "github.com/molsys/chemflow/pkg/db"
)

type NodeInterface struct {
	Impl struct {
		FindChem      func(ctx context.Context, query kdb.NodeQuery) ([]kdb.ChemNode, error)
		ChemIds       func(ctx context.Context, query kdb.NodeQuery) ([]int, error)
		GetChem       func(ctx context.Context, id int) (kdb.ChemNode, error)
		GetChemByUuid func(ctx context.Context, id uuid.UUID) (kdb.ChemNode, error)
		FindMolecules func(ctx context.Context, ref kdb.MoleculeRef) ([]kdb.Molecule, error)
		CreateChem    func(ctx context.Context, node kdb.ChemNode) (kdb.ChemNode, error)
		UpdateChem    func(ctx context.Context, node kdb.ChemNode) (kdb.ChemNode, error)
		CreateCalc    func(ctx context.Context, node kdb.CalcNode) (kdb.CalcNode, error)
	}

	Calls struct {
		FindChem      CallLog[kdb.NodeQuery]
		ChemIds       CallLog[kdb.NodeQuery]
		GetChem       CallLog[int]
		GetChemByUuid CallLog[uuid.UUID]
		FindMolecules CallLog[kdb.MoleculeRef]
		CreateChem    CallLog[kdb.ChemNode]
		UpdateChem    CallLog[kdb.ChemNode]
		CreateCalc    CallLog[kdb.CalcNode]
	}
}

func NewNodeInterface() *NodeInterface {
	return &NodeInterface{}
}

var _ kdb.NodeInterface = &NodeInterface{}

func (m *NodeInterface) FindChem(ctx context.Context, query kdb.NodeQuery) ([]kdb.ChemNode, error) {
	m.Calls.FindChem = append(m.Calls.FindChem, query)
	if m.Impl.FindChem != nil {
		return m.Impl.FindChem(ctx, query)
	}
	panic(errors.New("it should not be called"))
}

func (m *NodeInterface) ChemIds(ctx context.Context, query kdb.NodeQuery) ([]int, error) {
	m.Calls.ChemIds = append(m.Calls.ChemIds, query)
	if m.Impl.ChemIds != nil {
		return m.Impl.ChemIds(ctx, query)
	}
	panic(errors.New("it should not be called"))
}

func (m *NodeInterface) GetChem(ctx context.Context, id int) (kdb.ChemNode, error) {
	m.Calls.GetChem = append(m.Calls.GetChem, id)
	if m.Impl.GetChem != nil {
		return m.Impl.GetChem(ctx, id)
	}
	panic(errors.New("it should not be called"))
}

func (m *NodeInterface) GetChemByUuid(ctx context.Context, id uuid.UUID) (kdb.ChemNode, error) {
	m.Calls.GetChemByUuid = append(m.Calls.GetChemByUuid, id)
	if m.Impl.GetChemByUuid != nil {
		return m.Impl.GetChemByUuid(ctx, id)
	}
	panic(errors.New("it should not be called"))
}

func (m *NodeInterface) FindMolecules(ctx context.Context, ref kdb.MoleculeRef) ([]kdb.Molecule, error) {
	m.Calls.FindMolecules = append(m.Calls.FindMolecules, ref)
	if m.Impl.FindMolecules != nil {
		return m.Impl.FindMolecules(ctx, ref)
	}
	panic(errors.New("it should not be called"))
}

func (m *NodeInterface) CreateChem(ctx context.Context, node kdb.ChemNode) (kdb.ChemNode, error) {
	m.Calls.CreateChem = append(m.Calls.CreateChem, node)
	if m.Impl.CreateChem != nil {
		return m.Impl.CreateChem(ctx, node)
	}
	panic(errors.New("it should not be called"))
}

func (m *NodeInterface) UpdateChem(ctx context.Context, node kdb.ChemNode) (kdb.ChemNode, error) {
	m.Calls.UpdateChem = append(m.Calls.UpdateChem, node)
	if m.Impl.UpdateChem != nil {
		return m.Impl.UpdateChem(ctx, node)
	}
	panic(errors.New("it should not be called"))
}

func (m *NodeInterface) CreateCalc(ctx context.Context, node kdb.CalcNode) (kdb.CalcNode, error) {
	m.Calls.CreateCalc = append(m.Calls.CreateCalc, node)
	if m.Impl.CreateCalc != nil {
		return m.Impl.CreateCalc(ctx, node)
	}
	panic(errors.New("it should not be called"))
}
