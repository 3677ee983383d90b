package schema

import "context"

type nullSchema struct{}

// Null is a schema which is always up to date. Used when no schema
// repository is configured and migration is managed elsewhere.
func Null() nullSchema {
	return nullSchema{}
}

func (nullSchema) Upgrade(ctx context.Context) error {
	return nil
}

func (nullSchema) Version(ctx context.Context) (int, error) {
	return 0, nil
}

func (nullSchema) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(ctx)
}
