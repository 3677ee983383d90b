// Package meta is the postgres repository for projects, experiments,
// recipes, packages and formulas.
//
// These entities are identified by unique name. Get-or-create runs as
// insert-on-conflict followed by a read, so concurrent callers racing
// on the same name both end up with the same row.
package meta

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	kdb "github.com/molsys/chemflow/pkg/db"
	kpgerr "github.com/molsys/chemflow/pkg/db/postgres/errors"
	"github.com/molsys/chemflow/pkg/db/postgres/marshal"
	kpool "github.com/molsys/chemflow/pkg/db/postgres/pool"
)

type metaPG struct { // implements kdb.MetaInterface
	pool kpool.Handle
}

func New(pool kpool.Handle) *metaPG {
	return &metaPG{pool: pool}
}

var _ kdb.MetaInterface = &metaPG{}

// names identify rows here. Inserting under an empty name would mint
// an anonymous row that every later nameless payload silently reuses,
// so get-or-create refuses before touching the table.
func validName(table string, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s", kdb.ErrNameless, table)
	}
	return nil
}

func (m *metaPG) GetProject(ctx context.Context, name string) (kdb.Project, error) {
	return m.getProject(ctx, m.pool, name)
}

func (m *metaPG) getProject(ctx context.Context, q kpool.Queryer, name string) (kdb.Project, error) {
	var p kdb.Project
	var uid string
	err := q.QueryRow(
		ctx,
		`
		select "id", "uuid"::text, "name", "description", "created_at", "updated_at"
		from "project" where "name" = $1
		`,
		name,
	).Scan(&p.Id, &uid, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return kdb.Project{}, kpgerr.Missing{
			Table: "project", Identity: fmt.Sprintf("name='%s'", name),
		}
	}
	if err != nil {
		return kdb.Project{}, err
	}
	if p.Uuid, err = uuid.Parse(uid); err != nil {
		return kdb.Project{}, err
	}
	return p, nil
}

func (m *metaPG) GetOrCreateProject(ctx context.Context, proto kdb.Project) (kdb.Project, error) {
	if err := validName("project", proto.Name); err != nil {
		return kdb.Project{}, err
	}
	if _, err := m.pool.Exec(
		ctx,
		`
		insert into "project" ("uuid", "name", "description")
		values ($1, $2, $3)
		on conflict ("name") do nothing
		`,
		uuid.New().String(), proto.Name, proto.Description,
	); err != nil {
		return kdb.Project{}, err
	}
	return m.getProject(ctx, m.pool, proto.Name)
}

func (m *metaPG) GetExperiment(ctx context.Context, name string) (kdb.Experiment, error) {
	return m.getExperiment(ctx, m.pool, name)
}

func (m *metaPG) getExperiment(ctx context.Context, q kpool.Queryer, name string) (kdb.Experiment, error) {
	var e kdb.Experiment
	var euid, puid string
	err := q.QueryRow(
		ctx,
		`
		select
			"e"."id", "e"."uuid"::text, "e"."name", "e"."description",
			"e"."created_at", "e"."updated_at",
			"p"."id", "p"."uuid"::text, "p"."name", "p"."description",
			"p"."created_at", "p"."updated_at"
		from "experiment" as "e"
		inner join "project" as "p" on "e"."project_id" = "p"."id"
		where "e"."name" = $1
		`,
		name,
	).Scan(
		&e.Id, &euid, &e.Name, &e.Description, &e.CreatedAt, &e.UpdatedAt,
		&e.Project.Id, &puid, &e.Project.Name, &e.Project.Description,
		&e.Project.CreatedAt, &e.Project.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return kdb.Experiment{}, kpgerr.Missing{
			Table: "experiment", Identity: fmt.Sprintf("name='%s'", name),
		}
	}
	if err != nil {
		return kdb.Experiment{}, err
	}
	if e.Uuid, err = uuid.Parse(euid); err != nil {
		return kdb.Experiment{}, err
	}
	if e.Project.Uuid, err = uuid.Parse(puid); err != nil {
		return kdb.Experiment{}, err
	}
	return e, nil
}

func (m *metaPG) GetOrCreateExperiment(ctx context.Context, proto kdb.Experiment) (kdb.Experiment, error) {
	if err := validName("experiment", proto.Name); err != nil {
		return kdb.Experiment{}, err
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return kdb.Experiment{}, err
	}
	defer tx.Rollback(ctx)

	// a payload may name a known experiment without repeating its
	// project. Only a new experiment needs one.
	if experiment, err := m.getExperiment(ctx, tx, proto.Name); err == nil {
		if err := tx.Commit(ctx); err != nil {
			return kdb.Experiment{}, err
		}
		return experiment, nil
	} else if !errors.Is(err, kdb.ErrMissing) {
		return kdb.Experiment{}, err
	}

	if err := validName("project", proto.Project.Name); err != nil {
		return kdb.Experiment{}, err
	}

	project, err := m.getProject(ctx, tx, proto.Project.Name)
	if errors.Is(err, kdb.ErrMissing) {
		if _, err := tx.Exec(
			ctx,
			`
			insert into "project" ("uuid", "name", "description")
			values ($1, $2, $3)
			on conflict ("name") do nothing
			`,
			uuid.New().String(), proto.Project.Name, proto.Project.Description,
		); err != nil {
			return kdb.Experiment{}, err
		}
		if project, err = m.getProject(ctx, tx, proto.Project.Name); err != nil {
			return kdb.Experiment{}, err
		}
	} else if err != nil {
		return kdb.Experiment{}, err
	}

	if _, err := tx.Exec(
		ctx,
		`
		insert into "experiment" ("uuid", "name", "description", "project_id")
		values ($1, $2, $3, $4)
		on conflict ("name") do nothing
		`,
		uuid.New().String(), proto.Name, proto.Description, project.Id,
	); err != nil {
		return kdb.Experiment{}, err
	}

	experiment, err := m.getExperiment(ctx, tx, proto.Name)
	if err != nil {
		return kdb.Experiment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return kdb.Experiment{}, err
	}
	return experiment, nil
}

func (m *metaPG) GetRecipe(ctx context.Context, name string) (kdb.JobRecipe, error) {
	return m.getRecipe(ctx, m.pool, name)
}

func (m *metaPG) getRecipe(ctx context.Context, q kpool.Queryer, name string) (kdb.JobRecipe, error) {
	var r kdb.JobRecipe
	var ruid string
	var method string
	var defaults marshal.JSONMap
	var packageId *int
	err := q.QueryRow(
		ctx,
		`
		select
			"id", "uuid"::text, "name", "method", "defaults",
			"package_id", "created_at", "updated_at"
		from "job_recipe" where "name" = $1
		`,
		name,
	).Scan(
		&r.Id, &ruid, &r.Name, &method, &defaults,
		&packageId, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return kdb.JobRecipe{}, kpgerr.Missing{
			Table: "job_recipe", Identity: fmt.Sprintf("name='%s'", name),
		}
	}
	if err != nil {
		return kdb.JobRecipe{}, err
	}
	if r.Uuid, err = uuid.Parse(ruid); err != nil {
		return kdb.JobRecipe{}, err
	}
	if r.Method, err = kdb.AsRecipeMethod(method); err != nil {
		return kdb.JobRecipe{}, err
	}
	r.Defaults = defaults

	if packageId != nil {
		var puid string
		err := q.QueryRow(
			ctx,
			`
			select "id", "uuid"::text, "name", "created_at", "updated_at"
			from "job_package" where "id" = $1
			`,
			*packageId,
		).Scan(
			&r.Package.Id, &puid, &r.Package.Name,
			&r.Package.CreatedAt, &r.Package.UpdatedAt,
		)
		if err != nil {
			return kdb.JobRecipe{}, err
		}
		if r.Package.Uuid, err = uuid.Parse(puid); err != nil {
			return kdb.JobRecipe{}, err
		}
	}
	return r, nil
}

func (m *metaPG) GetOrCreateRecipe(ctx context.Context, proto kdb.JobRecipe) (kdb.JobRecipe, error) {
	if err := validName("job_recipe", proto.Name); err != nil {
		return kdb.JobRecipe{}, err
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return kdb.JobRecipe{}, err
	}
	defer tx.Rollback(ctx)

	var packageId *int
	if proto.Package.Name != "" {
		pkg, err := m.getOrCreatePackage(ctx, tx, proto.Package)
		if err != nil {
			return kdb.JobRecipe{}, err
		}
		packageId = &pkg.Id
	}

	method := proto.Method
	if method == "" {
		method = kdb.GEN
	}

	if _, err := tx.Exec(
		ctx,
		`
		insert into "job_recipe" ("uuid", "name", "method", "defaults", "package_id")
		values ($1, $2, $3, $4, $5)
		on conflict ("name") do nothing
		`,
		uuid.New().String(), proto.Name, method.String(),
		marshal.JSONMap(proto.Defaults), packageId,
	); err != nil {
		return kdb.JobRecipe{}, err
	}

	recipe, err := m.getRecipe(ctx, tx, proto.Name)
	if err != nil {
		return kdb.JobRecipe{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return kdb.JobRecipe{}, err
	}
	return recipe, nil
}

func (m *metaPG) GetOrCreatePackage(ctx context.Context, proto kdb.JobPackage) (kdb.JobPackage, error) {
	if err := validName("job_package", proto.Name); err != nil {
		return kdb.JobPackage{}, err
	}
	return m.getOrCreatePackage(ctx, m.pool, proto)
}

func (m *metaPG) getOrCreatePackage(ctx context.Context, q kpool.Queryer, proto kdb.JobPackage) (kdb.JobPackage, error) {
	if _, err := q.Exec(
		ctx,
		`
		insert into "job_package" ("uuid", "name")
		values ($1, $2)
		on conflict ("name") do nothing
		`,
		uuid.New().String(), proto.Name,
	); err != nil {
		return kdb.JobPackage{}, err
	}

	var p kdb.JobPackage
	var uid string
	err := q.QueryRow(
		ctx,
		`
		select "id", "uuid"::text, "name", "created_at", "updated_at"
		from "job_package" where "name" = $1
		`,
		proto.Name,
	).Scan(&p.Id, &uid, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return kdb.JobPackage{}, err
	}
	if p.Uuid, err = uuid.Parse(uid); err != nil {
		return kdb.JobPackage{}, err
	}
	return p, nil
}

func (m *metaPG) GetOrCreateFormula(ctx context.Context, proto kdb.Formula) (kdb.Formula, error) {
	if err := validName("formula", proto.Name); err != nil {
		return kdb.Formula{}, err
	}
	if _, err := m.pool.Exec(
		ctx,
		`
		insert into "formula" ("name", "charge")
		values ($1, $2)
		on conflict ("name") do nothing
		`,
		proto.Name, proto.Charge,
	); err != nil {
		return kdb.Formula{}, err
	}

	var f kdb.Formula
	err := m.pool.QueryRow(
		ctx,
		`select "id", "name", "charge" from "formula" where "name" = $1`,
		proto.Name,
	).Scan(&f.Id, &f.Name, &f.Charge)
	if err != nil {
		return kdb.Formula{}, err
	}
	return f, nil
}
