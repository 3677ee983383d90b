package db

import "context"

// ChemStore bundles the repositories for one consistent view of the
// store: either a live connection pool or a single open transaction.
type ChemStore interface {
	Meta() MetaInterface
	Jobs() JobInterface
	Nodes() NodeInterface
}

// SchemaInterface manages the store's schema version.
type SchemaInterface interface {
	// Upgrade upgrades the schema to the latest version.
	Upgrade(ctx context.Context) error

	// Version returns the current version of the schema.
	Version(ctx context.Context) (int, error)

	// Context returns a context which is cancelled when the schema in
	// the database is not latest.
	Context(ctx context.Context) (context.Context, context.CancelFunc)
}

// ChemDatabase is the entity store handed to the workflow engine.
type ChemDatabase interface {
	ChemStore

	// Run operation against a store bound to one transaction.
	//
	// The transaction commits when operation returns nil and rolls
	// back when it returns an error (the error is passed through).
	Transaction(ctx context.Context, operation func(ChemStore) error) error

	Schema() SchemaInterface

	Close() error
}
