// Package node is the postgres repository for chem nodes (molecules,
// conformers, crystals) and calc nodes (energies, features) hanging off
// jobs.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	kdb "github.com/molsys/chemflow/pkg/db"
	kpgerr "github.com/molsys/chemflow/pkg/db/postgres/errors"
	"github.com/molsys/chemflow/pkg/db/postgres/marshal"
	kpool "github.com/molsys/chemflow/pkg/db/postgres/pool"
	"github.com/molsys/chemflow/pkg/utils"
)

type nodePG struct { // implements kdb.NodeInterface
	pool kpool.Handle
}

func New(pool kpool.Handle) *nodePG {
	return &nodePG{pool: pool}
}

var _ kdb.NodeInterface = &nodePG{}

// accumulates where-clause fragments with positional args.
type condBuilder struct {
	conds []string
	args  []interface{}
}

// register arg, return its positional placeholder number.
func (b *condBuilder) arg(v interface{}) int {
	b.args = append(b.args, v)
	return len(b.args)
}

func (b *condBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

// fragments matching a node predicate, against aliases
// "c" (chem_node), "j" (job), "e" (experiment), "r" (job_recipe).
func (b *condBuilder) predicate(p kdb.NodePredicate) []string {
	conds := []string{}
	if 0 < len(p.ParentExperiment) {
		conds = append(conds, fmt.Sprintf(
			`"e"."name" = any($%d::varchar[])`, b.arg(p.ParentExperiment),
		))
	}
	if 0 < len(p.ParentRecipe) {
		conds = append(conds, fmt.Sprintf(
			`"r"."name" = any($%d::varchar[])`, b.arg(p.ParentRecipe),
		))
	}
	if 0 < len(p.ParentStatus) {
		conds = append(conds, fmt.Sprintf(
			`"j"."status" = any($%d::varchar[])`,
			b.arg(utils.Map(p.ParentStatus, kdb.JobStatus.String)),
		))
	}
	if 0 < len(p.Kind) {
		conds = append(conds, fmt.Sprintf(
			`"c"."kind" = any($%d::varchar[])`,
			b.arg(utils.Map(p.Kind, kdb.NodeKind.String)),
		))
	}
	if 0 < len(p.Tags) {
		conds = append(conds, fmt.Sprintf(
			`exists (
				select 1 from "node_tag" as "t"
				where "t"."chem_node_id" = "c"."id" and "t"."tag" = any($%d::varchar[])
			)`,
			b.arg(p.Tags),
		))
	}
	return conds
}

func allOf(conds []string) string {
	if len(conds) == 0 {
		return "true"
	}
	joined := conds[0]
	for _, c := range conds[1:] {
		joined += " and " + c
	}
	return joined
}

func (n *nodePG) chemIds(ctx context.Context, q kpool.Queryer, query kdb.NodeQuery) ([]int, error) {
	b := &condBuilder{}

	b.add(allOf(b.predicate(query.Filter)))
	if !query.Exclude.Empty() {
		b.add("not (" + allOf(b.predicate(query.Exclude)) + ")")
	}
	if tgt := query.ExcludeConsumedBy; tgt != nil {
		expArg := b.arg(tgt.ExperimentId)
		recArg := b.arg(tgt.RecipeId)
		b.add(fmt.Sprintf(
			`not exists (
				select 1 from "job_input" as "ji"
				inner join "job" as "cj" on "ji"."job_id" = "cj"."id"
				where "ji"."chemnode_id" = "c"."id"
					and "cj"."experiment_id" = $%d and "cj"."recipe_id" = $%d
			)`,
			expArg, recArg,
		))
	}

	sql := `
	select "c"."id" from "chem_node" as "c"
	inner join "job" as "j" on "c"."parentjob_id" = "j"."id"
	inner join "experiment" as "e" on "j"."experiment_id" = "e"."id"
	inner join "job_recipe" as "r" on "j"."recipe_id" = "r"."id"
	where ` + allOf(b.conds) + `
	order by "c"."id"`

	rows, err := q.Query(ctx, sql, b.args...)
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

func (n *nodePG) ChemIds(ctx context.Context, query kdb.NodeQuery) ([]int, error) {
	return n.chemIds(ctx, n.pool, query)
}

func (n *nodePG) FindChem(ctx context.Context, query kdb.NodeQuery) ([]kdb.ChemNode, error) {
	ids, err := n.chemIds(ctx, n.pool, query)
	if err != nil {
		return nil, err
	}
	byId, err := n.get(ctx, n.pool, ids)
	if err != nil {
		return nil, err
	}
	nodes := make([]kdb.ChemNode, 0, len(ids))
	for _, id := range ids {
		if node, ok := byId[id]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// hydrate chem nodes with their concrete variants.
func (n *nodePG) get(ctx context.Context, q kpool.Queryer, ids []int) (map[int]kdb.ChemNode, error) {
	if len(ids) == 0 {
		return map[int]kdb.ChemNode{}, nil
	}

	bodies := map[int]kdb.NodeBody{}
	kinds := map[int]kdb.NodeKind{}
	{
		rows, err := q.Query(
			ctx,
			`
			select "id", "uuid"::text, "kind", "parentjob_id", "created_at", "updated_at"
			from "chem_node" where "id" = any($1::int[])
			`,
			ids,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var body kdb.NodeBody
			var uid, kind string
			if err := rows.Scan(
				&body.Id, &uid, &kind, &body.ParentJob,
				&body.CreatedAt, &body.UpdatedAt,
			); err != nil {
				return nil, err
			}
			if body.Uuid, err = uuid.Parse(uid); err != nil {
				return nil, err
			}
			bodies[body.Id] = body
			kinds[body.Id] = kdb.NodeKind(kind)
		}
	}
	if len(bodies) == 0 {
		return map[int]kdb.ChemNode{}, nil
	}
	found := utils.KeysOf(bodies)

	tags := map[int][]string{}
	{
		rows, err := q.Query(
			ctx,
			`
			select "chem_node_id", "tag" from "node_tag"
			where "chem_node_id" = any($1::int[])
			order by "chem_node_id", "tag"
			`,
			found,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id int
			var tag string
			if err := rows.Scan(&id, &tag); err != nil {
				return nil, err
			}
			tags[id] = append(tags[id], tag)
		}
	}

	nodes := map[int]kdb.ChemNode{}

	{
		rows, err := q.Query(
			ctx,
			`
			select "chem_node_id", "inchikey", "smiles", "siteprops", "attributes"
			from "molecule" where "chem_node_id" = any($1::int[])
			`,
			found,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id int
			var mol kdb.Molecule
			var siteprops, attributes marshal.JSONMap
			if err := rows.Scan(
				&id, &mol.InchiKey, &mol.Smiles, &siteprops, &attributes,
			); err != nil {
				return nil, err
			}
			mol.NodeBody = bodies[id]
			mol.SiteProps = siteprops
			mol.Attributes = attributes
			mol.Tags = tags[id]
			nodes[id] = mol
		}
	}

	{
		rows, err := q.Query(
			ctx,
			`
			select "chem_node_id", "mol_id", "species", "coords", "siteprops", "attributes"
			from "conformer" where "chem_node_id" = any($1::int[])
			`,
			found,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id int
			var conf kdb.Conformer
			var species pgtype.TextArray
			var coords marshal.JSONMatrix
			var siteprops, attributes marshal.JSONMap
			if err := rows.Scan(
				&id, &conf.Mol, &species, &coords, &siteprops, &attributes,
			); err != nil {
				return nil, err
			}
			if err := species.AssignTo(&conf.Species); err != nil {
				return nil, err
			}
			conf.NodeBody = bodies[id]
			conf.Coords = coords
			conf.SiteProps = siteprops
			conf.Attributes = attributes
			nodes[id] = conf
		}
	}

	{
		rows, err := q.Query(
			ctx,
			`
			select
				"chem_node_id", "formula_id", "spacegroup", "species",
				"coords", "lattice", "siteprops", "attributes"
			from "crystal" where "chem_node_id" = any($1::int[])
			`,
			found,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id int
			var cry kdb.Crystal
			var species pgtype.TextArray
			var coords, lattice marshal.JSONMatrix
			var siteprops, attributes marshal.JSONMap
			if err := rows.Scan(
				&id, &cry.Formula, &cry.SpaceGroup, &species,
				&coords, &lattice, &siteprops, &attributes,
			); err != nil {
				return nil, err
			}
			if err := species.AssignTo(&cry.Species); err != nil {
				return nil, err
			}
			cry.NodeBody = bodies[id]
			cry.Coords = coords
			cry.Lattice = lattice
			cry.SiteProps = siteprops
			cry.Attributes = attributes
			cry.Tags = tags[id]
			nodes[id] = cry
		}
	}

	// whatever has no variant row is a bare node.
	for _, id := range found {
		if _, ok := nodes[id]; !ok {
			nodes[id] = kdb.BareChem{NodeBody: bodies[id]}
		}
	}

	return nodes, nil
}

func (n *nodePG) GetChem(ctx context.Context, id int) (kdb.ChemNode, error) {
	nodes, err := n.get(ctx, n.pool, []int{id})
	if err != nil {
		return nil, err
	}
	node, ok := nodes[id]
	if !ok {
		return nil, kpgerr.Missing{
			Table: "chem_node", Identity: fmt.Sprintf("id=%d", id),
		}
	}
	return node, nil
}

func (n *nodePG) GetChemByUuid(ctx context.Context, id uuid.UUID) (kdb.ChemNode, error) {
	var nodeId int
	err := n.pool.QueryRow(
		ctx,
		`select "id" from "chem_node" where "uuid" = $1`,
		id.String(),
	).Scan(&nodeId)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kpgerr.Missing{
			Table: "chem_node", Identity: fmt.Sprintf("uuid='%s'", id),
		}
	}
	if err != nil {
		return nil, err
	}
	return n.GetChem(ctx, nodeId)
}

func (n *nodePG) FindMolecules(ctx context.Context, ref kdb.MoleculeRef) ([]kdb.Molecule, error) {
	b := &condBuilder{}
	if ref.Id != nil {
		b.add(fmt.Sprintf(`"c"."id" = $%d`, b.arg(*ref.Id)))
	}
	if ref.Uuid != nil {
		b.add(fmt.Sprintf(`"c"."uuid" = $%d`, b.arg(ref.Uuid.String())))
	}
	if ref.InchiKey != nil {
		b.add(fmt.Sprintf(`"m"."inchikey" = $%d`, b.arg(*ref.InchiKey)))
	}
	if ref.Smiles != nil {
		b.add(fmt.Sprintf(`"m"."smiles" = $%d`, b.arg(*ref.Smiles)))
	}

	sql := `
	select "c"."id" from "chem_node" as "c"
	inner join "molecule" as "m" on "m"."chem_node_id" = "c"."id"
	where ` + allOf(b.conds) + `
	order by "c"."id"`

	rows, err := n.pool.Query(ctx, sql, b.args...)
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

	byId, err := n.get(ctx, n.pool, ids)
	if err != nil {
		return nil, err
	}
	mols := make([]kdb.Molecule, 0, len(ids))
	for _, id := range ids {
		if mol, ok := byId[id].(kdb.Molecule); ok {
			mols = append(mols, mol)
		}
	}
	return mols, nil
}

func (n *nodePG) CreateChem(ctx context.Context, node kdb.ChemNode) (kdb.ChemNode, error) {
	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	body := node.ChemBody()
	var id int
	if err := tx.QueryRow(
		ctx,
		`
		insert into "chem_node" ("uuid", "kind", "parentjob_id")
		values ($1, $2, $3)
		returning "id"
		`,
		uuid.New().String(), node.Kind().String(), body.ParentJob,
	).Scan(&id); err != nil {
		return nil, err
	}

	var nodeTags []string
	switch v := node.(type) {
	case kdb.Molecule:
		if _, err := tx.Exec(
			ctx,
			`
			insert into "molecule" ("chem_node_id", "inchikey", "smiles", "siteprops", "attributes")
			values ($1, $2, $3, $4, $5)
			`,
			id, v.InchiKey, v.Smiles,
			marshal.JSONMap(v.SiteProps), marshal.JSONMap(v.Attributes),
		); err != nil {
			return nil, err
		}
		nodeTags = v.Tags
	case kdb.Conformer:
		if _, err := tx.Exec(
			ctx,
			`
			insert into "conformer" ("chem_node_id", "mol_id", "species", "coords", "siteprops", "attributes")
			values ($1, $2, $3, $4, $5, $6)
			`,
			id, v.Mol, textArray(v.Species), marshal.JSONMatrix(v.Coords),
			marshal.JSONMap(v.SiteProps), marshal.JSONMap(v.Attributes),
		); err != nil {
			return nil, err
		}
	case kdb.Crystal:
		if _, err := tx.Exec(
			ctx,
			`
			insert into "crystal"
				("chem_node_id", "formula_id", "spacegroup", "species",
				 "coords", "lattice", "siteprops", "attributes")
			values ($1, $2, $3, $4, $5, $6, $7, $8)
			`,
			id, v.Formula, v.SpaceGroup, textArray(v.Species),
			marshal.JSONMatrix(v.Coords), marshal.JSONMatrix(v.Lattice),
			marshal.JSONMap(v.SiteProps), marshal.JSONMap(v.Attributes),
		); err != nil {
			return nil, err
		}
		nodeTags = v.Tags
	case kdb.BareChem:
		// no variant row.
	default:
		return nil, fmt.Errorf("unsupported chem node variant: %s", node.Kind())
	}

	if err := n.setTags(ctx, tx, id, nodeTags); err != nil {
		return nil, err
	}

	created, err := n.get(ctx, tx, []int{id})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created[id], nil
}

func (n *nodePG) UpdateChem(ctx context.Context, node kdb.ChemNode) (kdb.ChemNode, error) {
	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	body := node.ChemBody()
	tag, err := tx.Exec(
		ctx,
		`update "chem_node" set "updated_at" = now() where "id" = $1 and "kind" = $2`,
		body.Id, node.Kind().String(),
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, kpgerr.Missing{
			Table: "chem_node",
			Identity: fmt.Sprintf("id=%d, kind='%s'", body.Id, node.Kind()),
		}
	}

	replaceTags := false
	var nodeTags []string
	switch v := node.(type) {
	case kdb.Molecule:
		if _, err := tx.Exec(
			ctx,
			`
			update "molecule"
			set "inchikey" = $1, "smiles" = $2, "siteprops" = $3, "attributes" = $4
			where "chem_node_id" = $5
			`,
			v.InchiKey, v.Smiles,
			marshal.JSONMap(v.SiteProps), marshal.JSONMap(v.Attributes),
			body.Id,
		); err != nil {
			return nil, err
		}
		replaceTags, nodeTags = true, v.Tags
	case kdb.Conformer:
		if _, err := tx.Exec(
			ctx,
			`
			update "conformer"
			set "mol_id" = $1, "species" = $2, "coords" = $3,
				"siteprops" = $4, "attributes" = $5
			where "chem_node_id" = $6
			`,
			v.Mol, textArray(v.Species), marshal.JSONMatrix(v.Coords),
			marshal.JSONMap(v.SiteProps), marshal.JSONMap(v.Attributes),
			body.Id,
		); err != nil {
			return nil, err
		}
	case kdb.Crystal:
		if _, err := tx.Exec(
			ctx,
			`
			update "crystal"
			set "formula_id" = $1, "spacegroup" = $2, "species" = $3,
				"coords" = $4, "lattice" = $5, "siteprops" = $6, "attributes" = $7
			where "chem_node_id" = $8
			`,
			v.Formula, v.SpaceGroup, textArray(v.Species),
			marshal.JSONMatrix(v.Coords), marshal.JSONMatrix(v.Lattice),
			marshal.JSONMap(v.SiteProps), marshal.JSONMap(v.Attributes),
			body.Id,
		); err != nil {
			return nil, err
		}
		replaceTags, nodeTags = true, v.Tags
	case kdb.BareChem:
		// nothing beyond the touch above.
	default:
		return nil, fmt.Errorf("unsupported chem node variant: %s", node.Kind())
	}

	if replaceTags {
		if _, err := tx.Exec(
			ctx, `delete from "node_tag" where "chem_node_id" = $1`, body.Id,
		); err != nil {
			return nil, err
		}
		if err := n.setTags(ctx, tx, body.Id, nodeTags); err != nil {
			return nil, err
		}
	}

	updated, err := n.get(ctx, tx, []int{body.Id})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated[body.Id], nil
}

func (n *nodePG) setTags(ctx context.Context, q kpool.Queryer, id int, tags []string) error {
	for _, tag := range utils.Unique(tags) {
		if _, err := q.Exec(
			ctx,
			`insert into "node_tag" ("chem_node_id", "tag") values ($1, $2)`,
			id, tag,
		); err != nil {
			return err
		}
	}
	return nil
}

func (n *nodePG) CreateCalc(ctx context.Context, node kdb.CalcNode) (kdb.CalcNode, error) {
	body := node.CalcBody()
	if body.ChemNode == 0 {
		return nil, fmt.Errorf("calc node needs a chem node to annotate")
	}

	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	data := marshal.JSONMap(nil)
	if bare, ok := node.(kdb.BareCalc); ok {
		data = marshal.JSONMap(bare.Data)
	}

	var saved kdb.CalcBody
	var uid string
	if err := tx.QueryRow(
		ctx,
		`
		insert into "calc_node" ("uuid", "kind", "parentjob_id", "chemnode_id", "data")
		values ($1, $2, $3, $4, $5)
		returning "id", "uuid"::text, "created_at", "updated_at"
		`,
		uuid.New().String(), node.Kind().String(), body.ParentJob, body.ChemNode, data,
	).Scan(&saved.Id, &uid, &saved.CreatedAt, &saved.UpdatedAt); err != nil {
		return nil, err
	}
	if saved.Uuid, err = uuid.Parse(uid); err != nil {
		return nil, err
	}
	saved.ParentJob = body.ParentJob
	saved.ChemNode = body.ChemNode

	var created kdb.CalcNode
	switch v := node.(type) {
	case kdb.EnergyForces:
		if _, err := tx.Exec(
			ctx,
			`
			insert into "energy_forces" ("calc_node_id", "energy", "forces")
			values ($1, $2, $3)
			`,
			saved.Id, v.Energy, marshal.JSONMatrix(v.Forces),
		); err != nil {
			return nil, err
		}
		created = kdb.EnergyForces{Body: saved, Energy: v.Energy, Forces: v.Forces}
	case kdb.Feature:
		if _, err := tx.Exec(
			ctx,
			`insert into "feature" ("calc_node_id", "value") values ($1, $2)`,
			saved.Id, float8Array(v.Value),
		); err != nil {
			return nil, err
		}
		created = kdb.Feature{Body: saved, Value: v.Value}
	case kdb.BareCalc:
		created = kdb.BareCalc{Body: saved, Data: v.Data}
	default:
		return nil, fmt.Errorf("unsupported calc node variant: %s", node.Kind())
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func textArray(elems []string) pgtype.TextArray {
	arr := pgtype.TextArray{}
	if elems == nil {
		elems = []string{}
	}
	arr.Set(elems)
	return arr
}

func float8Array(elems []float64) pgtype.Float8Array {
	arr := pgtype.Float8Array{}
	if elems == nil {
		elems = []float64{}
	}
	arr.Set(elems)
	return arr
}
