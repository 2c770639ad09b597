package store

import "context"

// New returns a Postgres-backed store when databaseURL is set, otherwise
// an in-memory store suitable for development and tests.
func New(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
