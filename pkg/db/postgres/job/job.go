// Package job is the postgres repository for jobs, their input
// associations, tags and run statistics. It also carries the
// provenance subtree deleter.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	kdb "github.com/molsys/chemflow/pkg/db"
	kpgerr "github.com/molsys/chemflow/pkg/db/postgres/errors"
	"github.com/molsys/chemflow/pkg/db/postgres/marshal"
	kpool "github.com/molsys/chemflow/pkg/db/postgres/pool"
	"github.com/molsys/chemflow/pkg/utils"
)

// recursion limit of DeleteTree. Provenance is a DAG by construction,
// so hitting this means the graph is corrupt, not that work is deep.
const maxTreeDepth = 1000

type jobPG struct { // implements kdb.JobInterface
	pool kpool.Handle
}

func New(pool kpool.Handle) *jobPG {
	return &jobPG{pool: pool}
}

var _ kdb.JobInterface = &jobPG{}

func (j *jobPG) Get(ctx context.Context, ids []int) (map[int]kdb.Job, error) {
	return j.get(ctx, j.pool, ids)
}

func (j *jobPG) get(ctx context.Context, q kpool.Queryer, ids []int) (map[int]kdb.Job, error) {
	if len(ids) == 0 {
		return map[int]kdb.Job{}, nil
	}

	jobs := map[int]kdb.Job{}
	{
		rows, err := q.Query(
			ctx,
			`
			select
				"j"."id", "j"."uuid"::text, "j"."status", "j"."options",
				"j"."is_root", "j"."created_at", "j"."updated_at",
				"e"."id", "e"."uuid"::text, "e"."name", "e"."description",
				"e"."created_at", "e"."updated_at",
				"p"."id", "p"."uuid"::text, "p"."name", "p"."description",
				"p"."created_at", "p"."updated_at",
				"r"."id", "r"."uuid"::text, "r"."name", "r"."method", "r"."defaults",
				"r"."created_at", "r"."updated_at",
				"pk"."id", "pk"."uuid"::text, "pk"."name",
				"pk"."created_at", "pk"."updated_at"
			from "job" as "j"
			inner join "experiment" as "e" on "j"."experiment_id" = "e"."id"
			inner join "project" as "p" on "e"."project_id" = "p"."id"
			inner join "job_recipe" as "r" on "j"."recipe_id" = "r"."id"
			left outer join "job_package" as "pk" on "r"."package_id" = "pk"."id"
			where "j"."id" = any($1::int[])
			`,
			ids,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var job kdb.Job
			var juid, euid, puid, ruid string
			var status, method string
			var options, defaults marshal.JSONMap
			var pkId *int
			var pkUuid, pkName *string
			var pkCreated, pkUpdated *time.Time

			if err := rows.Scan(
				&job.Id, &juid, &status, &options,
				&job.IsRoot, &job.CreatedAt, &job.UpdatedAt,
				&job.Experiment.Id, &euid, &job.Experiment.Name,
				&job.Experiment.Description,
				&job.Experiment.CreatedAt, &job.Experiment.UpdatedAt,
				&job.Experiment.Project.Id, &puid, &job.Experiment.Project.Name,
				&job.Experiment.Project.Description,
				&job.Experiment.Project.CreatedAt, &job.Experiment.Project.UpdatedAt,
				&job.Recipe.Id, &ruid, &job.Recipe.Name, &method, &defaults,
				&job.Recipe.CreatedAt, &job.Recipe.UpdatedAt,
				&pkId, &pkUuid, &pkName, &pkCreated, &pkUpdated,
			); err != nil {
				return nil, err
			}

			if job.Uuid, err = uuid.Parse(juid); err != nil {
				return nil, err
			}
			if job.Experiment.Uuid, err = uuid.Parse(euid); err != nil {
				return nil, err
			}
			if job.Experiment.Project.Uuid, err = uuid.Parse(puid); err != nil {
				return nil, err
			}
			if job.Recipe.Uuid, err = uuid.Parse(ruid); err != nil {
				return nil, err
			}
			if job.Status, err = kdb.AsJobStatus(status); err != nil {
				return nil, err
			}
			if job.Recipe.Method, err = kdb.AsRecipeMethod(method); err != nil {
				return nil, err
			}
			job.Options = options
			job.Recipe.Defaults = defaults

			if pkId != nil {
				job.Recipe.Package.Id = *pkId
				job.Recipe.Package.Name = *pkName
				job.Recipe.Package.CreatedAt = *pkCreated
				job.Recipe.Package.UpdatedAt = *pkUpdated
				if job.Recipe.Package.Uuid, err = uuid.Parse(*pkUuid); err != nil {
					return nil, err
				}
			}

			jobs[job.Id] = job
		}
	}

	if len(jobs) == 0 {
		return jobs, nil
	}
	found := utils.KeysOf(jobs)

	{
		rows, err := q.Query(
			ctx,
			`select "job_id", "tag" from "job_tag" where "job_id" = any($1::int[])`,
			found,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var jobId int
			var tag string
			if err := rows.Scan(&jobId, &tag); err != nil {
				return nil, err
			}
			job := jobs[jobId]
			job.Tags = append(job.Tags, tag)
			jobs[jobId] = job
		}
	}

	{
		rows, err := q.Query(
			ctx,
			`
			select "job_id", "chemnode_id" from "job_input"
			where "job_id" = any($1::int[])
			order by "job_id", "chemnode_id"
			`,
			found,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var jobId, chemNodeId int
			if err := rows.Scan(&jobId, &chemNodeId); err != nil {
				return nil, err
			}
			job := jobs[jobId]
			job.Inputs = append(job.Inputs, chemNodeId)
			jobs[jobId] = job
		}
	}

	{
		rows, err := q.Query(
			ctx,
			`
			select
				"job_id", "id", "uuid"::text, "host", "cluster", "duration_us",
				"ncores", "ngpus", "pkgversion", "created_at", "updated_at"
			from "run_stats" where "job_id" = any($1::int[])
			`,
			found,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var jobId int
			var stats kdb.RunStats
			var uid string
			var durationUs int64
			if err := rows.Scan(
				&jobId, &stats.Id, &uid, &stats.Host, &stats.Cluster, &durationUs,
				&stats.NCores, &stats.NGpus, &stats.PkgVersion,
				&stats.CreatedAt, &stats.UpdatedAt,
			); err != nil {
				return nil, err
			}
			if stats.Uuid, err = uuid.Parse(uid); err != nil {
				return nil, err
			}
			stats.Duration = time.Duration(durationUs) * time.Microsecond
			job := jobs[jobId]
			job.RunStats = &stats
			jobs[jobId] = job
		}
	}

	return jobs, nil
}

func (j *jobPG) GetByUuid(ctx context.Context, id uuid.UUID) (kdb.Job, error) {
	var jobId int
	err := j.pool.QueryRow(
		ctx,
		`select "id" from "job" where "uuid" = $1`,
		id.String(),
	).Scan(&jobId)
	if errors.Is(err, pgx.ErrNoRows) {
		return kdb.Job{}, kpgerr.Missing{
			Table: "job", Identity: fmt.Sprintf("uuid='%s'", id),
		}
	}
	if err != nil {
		return kdb.Job{}, err
	}

	jobs, err := j.get(ctx, j.pool, []int{jobId})
	if err != nil {
		return kdb.Job{}, err
	}
	job, ok := jobs[jobId]
	if !ok {
		return kdb.Job{}, kpgerr.Missing{
			Table: "job", Identity: fmt.Sprintf("uuid='%s'", id),
		}
	}
	return job, nil
}

func (j *jobPG) Find(ctx context.Context, query kdb.JobFindQuery) ([]int, error) {
	sql := `
	select "j"."id" from "job" as "j"
	inner join "experiment" as "e" on "j"."experiment_id" = "e"."id"
	inner join "project" as "p" on "e"."project_id" = "p"."id"
	inner join "job_recipe" as "r" on "j"."recipe_id" = "r"."id"
	`
	conds := []string{}
	args := []interface{}{}

	if 0 < len(query.Status) {
		args = append(args, utils.Map(query.Status, kdb.JobStatus.String))
		conds = append(conds, fmt.Sprintf(`"j"."status" = any($%d::varchar[])`, len(args)))
	}
	if 0 < len(query.Experiment) {
		args = append(args, query.Experiment)
		conds = append(conds, fmt.Sprintf(`"e"."name" = any($%d::varchar[])`, len(args)))
	}
	if 0 < len(query.Recipe) {
		args = append(args, query.Recipe)
		conds = append(conds, fmt.Sprintf(`"r"."name" = any($%d::varchar[])`, len(args)))
	}
	if 0 < len(query.Project) {
		args = append(args, query.Project)
		conds = append(conds, fmt.Sprintf(`"p"."name" = any($%d::varchar[])`, len(args)))
	}
	if query.OptionsEq != nil {
		args = append(args, marshal.JSONMap(query.OptionsEq))
		conds = append(conds, fmt.Sprintf(`"j"."options" = $%d::jsonb`, len(args)))
	}

	for n, cond := range conds {
		if n == 0 {
			sql += " where " + cond
		} else {
			sql += " and " + cond
		}
	}
	sql += ` order by "j"."id"`

	rows, err := j.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (j *jobPG) Register(
	ctx context.Context, experimentId int, recipeId int, jobs []kdb.NewJob, batchSize int,
) ([]kdb.Job, error) {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	createdIds := make([]int, 0, len(jobs))
	for _, chunk := range utils.Chunks(jobs, batchSize) {
		for _, nj := range chunk {
			id, err := j.insertJob(ctx, tx, experimentId, recipeId, insertJobParam{
				Status:  kdb.Ready,
				Options: nj.Options,
				IsRoot:  false,
				Tags:    nj.Tags,
				Inputs:  nj.Inputs,
			})
			if err != nil {
				return nil, err
			}
			createdIds = append(createdIds, id)
		}
	}

	byId, err := j.get(ctx, tx, createdIds)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return utils.Map(createdIds, func(id int) kdb.Job { return byId[id] }), nil
}

type insertJobParam struct {
	Status  kdb.JobStatus
	Options map[string]interface{}
	IsRoot  bool
	Tags    []string
	Inputs  []int
}

func (j *jobPG) insertJob(
	ctx context.Context, q kpool.Queryer, experimentId int, recipeId int, param insertJobParam,
) (int, error) {
	var id int
	if err := q.QueryRow(
		ctx,
		`
		insert into "job" ("uuid", "experiment_id", "recipe_id", "status", "options", "is_root")
		values ($1, $2, $3, $4, $5, $6)
		returning "id"
		`,
		uuid.New().String(), experimentId, recipeId,
		param.Status.String(), marshal.JSONMap(param.Options), param.IsRoot,
	).Scan(&id); err != nil {
		return 0, err
	}

	for _, tag := range utils.Unique(param.Tags) {
		if _, err := q.Exec(
			ctx,
			`insert into "job_tag" ("job_id", "tag") values ($1, $2)`,
			id, tag,
		); err != nil {
			return 0, err
		}
	}

	for _, chemNodeId := range param.Inputs {
		if _, err := q.Exec(
			ctx,
			`insert into "job_input" ("job_id", "chemnode_id") values ($1, $2)`,
			id, chemNodeId,
		); err != nil {
			return 0, err
		}
	}

	return id, nil
}

func (j *jobPG) ExistingInputSets(ctx context.Context, experimentId int, recipeId int) ([][]int, error) {
	rows, err := j.pool.Query(
		ctx,
		`
		select "ji"."job_id", "ji"."chemnode_id"
		from "job_input" as "ji"
		inner join "job" as "j" on "ji"."job_id" = "j"."id"
		where "j"."experiment_id" = $1 and "j"."recipe_id" = $2
		order by "ji"."job_id", "ji"."chemnode_id"
		`,
		experimentId, recipeId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sets := [][]int{}
	lastJobId := 0
	for rows.Next() {
		var jobId, chemNodeId int
		if err := rows.Scan(&jobId, &chemNodeId); err != nil {
			return nil, err
		}
		if jobId != lastJobId {
			sets = append(sets, []int{})
			lastJobId = jobId
		}
		sets[len(sets)-1] = append(sets[len(sets)-1], chemNodeId)
	}
	return sets, nil
}

func (j *jobPG) Create(ctx context.Context, job kdb.Job) (kdb.Job, error) {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return kdb.Job{}, err
	}
	defer tx.Rollback(ctx)

	id, err := j.insertJob(ctx, tx, job.Experiment.Id, job.Recipe.Id, insertJobParam{
		Status:  job.Status,
		Options: job.Options,
		IsRoot:  job.IsRoot,
		Tags:    job.Tags,
		Inputs:  job.Inputs,
	})
	if err != nil {
		return kdb.Job{}, err
	}

	created, err := j.get(ctx, tx, []int{id})
	if err != nil {
		return kdb.Job{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return kdb.Job{}, err
	}
	return created[id], nil
}

func (j *jobPG) Update(ctx context.Context, job kdb.Job) (kdb.Job, error) {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return kdb.Job{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(
		ctx,
		`
		update "job"
		set "status" = $1, "options" = $2, "updated_at" = now()
		where "id" = $3
		`,
		job.Status.String(), marshal.JSONMap(job.Options), job.Id,
	)
	if err != nil {
		return kdb.Job{}, err
	}
	if tag.RowsAffected() == 0 {
		return kdb.Job{}, kpgerr.Missing{
			Table: "job", Identity: fmt.Sprintf("id=%d", job.Id),
		}
	}

	if _, err := tx.Exec(
		ctx, `delete from "job_tag" where "job_id" = $1`, job.Id,
	); err != nil {
		return kdb.Job{}, err
	}
	for _, t := range utils.Unique(job.Tags) {
		if _, err := tx.Exec(
			ctx,
			`insert into "job_tag" ("job_id", "tag") values ($1, $2)`,
			job.Id, t,
		); err != nil {
			return kdb.Job{}, err
		}
	}

	updated, err := j.get(ctx, tx, []int{job.Id})
	if err != nil {
		return kdb.Job{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return kdb.Job{}, err
	}
	return updated[job.Id], nil
}

func (j *jobPG) SetStatus(ctx context.Context, id int, newStatus kdb.JobStatus) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(
		ctx,
		`select "status" from "job" where "id" = $1 for update`,
		id,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return kpgerr.Missing{Table: "job", Identity: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return err
	}

	currentStatus, err := kdb.AsJobStatus(current)
	if err != nil {
		return err
	}
	if !currentStatus.CanTransitTo(newStatus) {
		return kdb.NewErrInvalidStatusChange(currentStatus, newStatus)
	}

	if _, err := tx.Exec(
		ctx,
		`update "job" set "status" = $1, "updated_at" = now() where "id" = $2`,
		newStatus.String(), id,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (j *jobPG) AttachRunStats(ctx context.Context, jobId int, stats kdb.RunStats) (kdb.RunStats, error) {
	var saved kdb.RunStats
	var uid string
	err := j.pool.QueryRow(
		ctx,
		`
		insert into "run_stats"
			("uuid", "job_id", "host", "cluster", "duration_us", "ncores", "ngpus", "pkgversion")
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict ("job_id") do update set
			"host" = excluded."host",
			"cluster" = excluded."cluster",
			"duration_us" = excluded."duration_us",
			"ncores" = excluded."ncores",
			"ngpus" = excluded."ngpus",
			"pkgversion" = excluded."pkgversion",
			"updated_at" = now()
		returning "id", "uuid"::text, "created_at", "updated_at"
		`,
		uuid.New().String(), jobId, stats.Host, stats.Cluster,
		stats.Duration.Microseconds(), stats.NCores, stats.NGpus, stats.PkgVersion,
	).Scan(&saved.Id, &uid, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return kdb.RunStats{}, err
	}
	if saved.Uuid, err = uuid.Parse(uid); err != nil {
		return kdb.RunStats{}, err
	}

	saved.Host = stats.Host
	saved.Cluster = stats.Cluster
	saved.Duration = stats.Duration
	saved.NCores = stats.NCores
	saved.NGpus = stats.NGpus
	saved.PkgVersion = stats.PkgVersion
	return saved, nil
}

func (j *jobPG) DeleteTree(ctx context.Context, id int) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(
		ctx, `select 1 from "job" where "id" = $1 for update`, id,
	).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return kpgerr.Missing{Table: "job", Identity: fmt.Sprintf("id=%d", id)}
	}
	if err != nil {
		return err
	}

	walker := treeWalker{
		children: func(ctx context.Context, id int) ([]int, error) {
			return j.childJobs(ctx, tx, id)
		},
		remove: func(ctx context.Context, id int) error {
			return j.removeJobRows(ctx, tx, id)
		},
	}
	if err := walker.walk(ctx, id, 0); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// treeWalker removes a job and everything downstream of it,
// post-order: child jobs (consumers of this job's produced chem nodes)
// first, then the job itself.
type treeWalker struct {
	children func(ctx context.Context, id int) ([]int, error)
	remove   func(ctx context.Context, id int) error
}

func (w treeWalker) walk(ctx context.Context, id int, depth int) error {
	if maxTreeDepth <= depth {
		return fmt.Errorf(
			"job tree deeper than %d at job %d: provenance should be acyclic",
			maxTreeDepth, id,
		)
	}

	children, err := w.children(ctx, id)
	if err != nil {
		return err
	}
	for _, childId := range children {
		if err := w.walk(ctx, childId, depth+1); err != nil {
			return err
		}
	}
	return w.remove(ctx, id)
}

// jobs consuming chem nodes this job produced.
func (j *jobPG) childJobs(ctx context.Context, tx kpool.Tx, id int) ([]int, error) {
	rows, err := tx.Query(
		ctx,
		`
		select distinct "ji"."job_id"
		from "job_input" as "ji"
		inner join "chem_node" as "c" on "ji"."chemnode_id" = "c"."id"
		where "c"."parentjob_id" = $1 and "ji"."job_id" != $1
		order by "ji"."job_id"
		`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	children := []int{}
	for rows.Next() {
		var childId int
		if err := rows.Scan(&childId); err != nil {
			return nil, err
		}
		children = append(children, childId)
	}
	return children, nil
}

// removeJobRows deletes one job's rows: run stats, calc nodes, input
// associations, chem nodes, then the job row. The job_input restrict
// constraint enforces the same order, so a bug here fails loudly
// instead of orphaning rows.
func (j *jobPG) removeJobRows(ctx context.Context, tx kpool.Tx, id int) error {
	if _, err := tx.Exec(
		ctx, `delete from "run_stats" where "job_id" = $1`, id,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx, `delete from "calc_node" where "parentjob_id" = $1`, id,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx, `delete from "job_input" where "job_id" = $1`, id,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx, `delete from "chem_node" where "parentjob_id" = $1`, id,
	); err != nil {
		return kpgerr.TranslateProtected(err, "chem_node", fmt.Sprintf("parentjob_id=%d", id))
	}
	if _, err := tx.Exec(
		ctx, `delete from "job" where "id" = $1`, id,
	); err != nil {
		return err
	}
	return nil
}
