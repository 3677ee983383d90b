// Package postgres assembles the repositories into a ChemDatabase
// backed by a pgx connection pool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	kdb "github.com/molsys/chemflow/pkg/db"
	kpgjob "github.com/molsys/chemflow/pkg/db/postgres/job"
	kpgmeta "github.com/molsys/chemflow/pkg/db/postgres/meta"
	kpgnode "github.com/molsys/chemflow/pkg/db/postgres/node"
	kpool "github.com/molsys/chemflow/pkg/db/postgres/pool"
	kpgschema "github.com/molsys/chemflow/pkg/db/postgres/schema"
	xe "github.com/molsys/chemflow/pkg/errors"
)

type Config struct {
	// directory holding versioned schema definitions. Empty means
	// schema management is left to someone else.
	SchemaRepository string
}

func DefaultConfig() Config {
	return Config{}
}

type Option func(*Config) *Config

func WithSchemaRepository(repository string) Option {
	return func(c *Config) *Config {
		c.SchemaRepository = repository
		return c
	}
}

// store is one consistent view: repositories bound to a shared handle,
// either the pool itself or one open transaction.
type store struct {
	meta  kdb.MetaInterface
	jobs  kdb.JobInterface
	nodes kdb.NodeInterface
}

func newStore(h kpool.Handle) *store {
	return &store{
		meta:  kpgmeta.New(h),
		jobs:  kpgjob.New(h),
		nodes: kpgnode.New(h),
	}
}

func (s *store) Meta() kdb.MetaInterface  { return s.meta }
func (s *store) Jobs() kdb.JobInterface   { return s.jobs }
func (s *store) Nodes() kdb.NodeInterface { return s.nodes }

type chemDBPostgres struct {
	pool *pgxpool.Pool
	*store
	schema kdb.SchemaInterface
}

var _ kdb.ChemDatabase = &chemDBPostgres{}

func New(
	ctx context.Context,
	url string,
	options ...Option,
) (kdb.ChemDatabase, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	c := DefaultConfig()
	for _, option := range options {
		c = *option(&c)
	}

	p := kpool.Wrap(pool)
	var schema kdb.SchemaInterface = kpgschema.Null()
	if c.SchemaRepository != "" {
		schema = kpgschema.New(p, c.SchemaRepository)
	}

	return &chemDBPostgres{
		pool:   pool,
		store:  newStore(p),
		schema: schema,
	}, nil
}

func (c *chemDBPostgres) Transaction(ctx context.Context, operation func(kdb.ChemStore) error) error {
	tx, err := kpool.Wrap(c.pool).Begin(ctx)
	if err != nil {
		return xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	if err := operation(newStore(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (c *chemDBPostgres) Schema() kdb.SchemaInterface {
	return c.schema
}

func (c *chemDBPostgres) Close() error {
	c.pool.Close()
	return nil
}
