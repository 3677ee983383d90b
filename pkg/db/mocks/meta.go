package mocks

import (
	"context"
	"errors"

	kdb "github.com/molsys/chemflow/pkg/db"
)

type MetaInterface struct {
	Impl struct {
		GetProject            func(ctx context.Context, name string) (kdb.Project, error)
		GetOrCreateProject    func(ctx context.Context, proto kdb.Project) (kdb.Project, error)
		GetExperiment         func(ctx context.Context, name string) (kdb.Experiment, error)
		GetOrCreateExperiment func(ctx context.Context, proto kdb.Experiment) (kdb.Experiment, error)
		GetRecipe             func(ctx context.Context, name string) (kdb.JobRecipe, error)
		GetOrCreateRecipe     func(ctx context.Context, proto kdb.JobRecipe) (kdb.JobRecipe, error)
		GetOrCreatePackage    func(ctx context.Context, proto kdb.JobPackage) (kdb.JobPackage, error)
		GetOrCreateFormula    func(ctx context.Context, proto kdb.Formula) (kdb.Formula, error)
	}

	Calls struct {
		GetProject            CallLog[string]
		GetOrCreateProject    CallLog[kdb.Project]
		GetExperiment         CallLog[string]
		GetOrCreateExperiment CallLog[kdb.Experiment]
		GetRecipe             CallLog[string]
		GetOrCreateRecipe     CallLog[kdb.JobRecipe]
		GetOrCreatePackage    CallLog[kdb.JobPackage]
		GetOrCreateFormula    CallLog[kdb.Formula]
	}
}

func NewMetaInterface() *MetaInterface {
	return &MetaInterface{}
}

var _ kdb.MetaInterface = &MetaInterface{}

func (m *MetaInterface) GetProject(ctx context.Context, name string) (kdb.Project, error) {
	m.Calls.GetProject = append(m.Calls.GetProject, name)
	if m.Impl.GetProject != nil {
		return m.Impl.GetProject(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

func (m *MetaInterface) GetOrCreateProject(ctx context.Context, proto kdb.Project) (kdb.Project, error) {
	m.Calls.GetOrCreateProject = append(m.Calls.GetOrCreateProject, proto)
	if m.Impl.GetOrCreateProject != nil {
		return m.Impl.GetOrCreateProject(ctx, proto)
	}
	panic(errors.New("it should not be called"))
}

func (m *MetaInterface) GetExperiment(ctx context.Context, name string) (kdb.Experiment, error) {
	m.Calls.GetExperiment = append(m.Calls.GetExperiment, name)
	if m.Impl.GetExperiment != nil {
		return m.Impl.GetExperiment(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

func (m *MetaInterface) GetOrCreateExperiment(ctx context.Context, proto kdb.Experiment) (kdb.Experiment, error) {
	m.Calls.GetOrCreateExperiment = append(m.Calls.GetOrCreateExperiment, proto)
	if m.Impl.GetOrCreateExperiment != nil {
		return m.Impl.GetOrCreateExperiment(ctx, proto)
	}
	panic(errors.New("it should not be called"))
}

func (m *MetaInterface) GetRecipe(ctx context.Context, name string) (kdb.JobRecipe, error) {
	m.Calls.GetRecipe = append(m.Calls.GetRecipe, name)
	if m.Impl.GetRecipe != nil {
		return m.Impl.GetRecipe(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

func (m *MetaInterface) GetOrCreateRecipe(ctx context.Context, proto kdb.JobRecipe) (kdb.JobRecipe, error) {
	m.Calls.GetOrCreateRecipe = append(m.Calls.GetOrCreateRecipe, proto)
	if m.Impl.GetOrCreateRecipe != nil {
		return m.Impl.GetOrCreateRecipe(ctx, proto)
	}
	panic(errors.New("it should not be called"))
}

func (m *MetaInterface) GetOrCreatePackage(ctx context.Context, proto kdb.JobPackage) (kdb.JobPackage, error) {
	m.Calls.GetOrCreatePackage = append(m.Calls.GetOrCreatePackage, proto)
	if m.Impl.GetOrCreatePackage != nil {
		return m.Impl.GetOrCreatePackage(ctx, proto)
	}
	panic(errors.New("it should not be called"))
}

func (m *MetaInterface) GetOrCreateFormula(ctx context.Context, proto kdb.Formula) (kdb.Formula, error) {
	m.Calls.GetOrCreateFormula = append(m.Calls.GetOrCreateFormula, proto)
	if m.Impl.GetOrCreateFormula != nil {
		return m.Impl.GetOrCreateFormula(ctx, proto)
	}
	panic(errors.New("it should not be called"))
}
