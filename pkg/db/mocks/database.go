package mocks

import (
	"context"

	kdb "github.com/molsys/chemflow/pkg/db"
)

// ChemDatabase is a mock store bundle.
//
// Transaction, unless stubbed, runs the operation against the bundle
// itself; tests observing only the calls on the sub-interfaces do not
// care about transaction boundaries.
type ChemDatabase struct {
	MetaInterface   *MetaInterface
	JobInterface    *JobInterface
	NodeInterface   *NodeInterface
	SchemaInterface *SchemaInterface

	Impl struct {
		Transaction func(ctx context.Context, operation func(kdb.ChemStore) error) error
		Close       func() error
	}

	Calls struct {
		Transaction CallLog[struct{}]
		Close       CallLog[struct{}]
	}
}

func NewChemDatabase() *ChemDatabase {
	return &ChemDatabase{
		MetaInterface:   NewMetaInterface(),
		JobInterface:    NewJobInterface(),
		NodeInterface:   NewNodeInterface(),
		SchemaInterface: NewSchemaInterface(),
	}
}

var _ kdb.ChemDatabase = &ChemDatabase{}

func (m *ChemDatabase) Meta() kdb.MetaInterface {
	return m.MetaInterface
}

func (m *ChemDatabase) Jobs() kdb.JobInterface {
	return m.JobInterface
}

func (m *ChemDatabase) Nodes() kdb.NodeInterface {
	return m.NodeInterface
}

func (m *ChemDatabase) Schema() kdb.SchemaInterface {
	return m.SchemaInterface
}

func (m *ChemDatabase) Transaction(ctx context.Context, operation func(kdb.ChemStore) error) error {
	m.Calls.Transaction = append(m.Calls.Transaction, struct{}{})
	if m.Impl.Transaction != nil {
		return m.Impl.Transaction(ctx, operation)
	}
	return operation(m)
}

func (m *ChemDatabase) Close() error {
	m.Calls.Close = append(m.Calls.Close, struct{}{})
	if m.Impl.Close != nil {
		return m.Impl.Close()
	}
	return nil
}
