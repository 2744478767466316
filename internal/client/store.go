package client

import "context"

// Store is interface-driven to keep the serving path testable and to allow
// swapping the in-memory store for the redis document store without
// rewiring business code. Implementations return sentinel errors.
type Store interface {
	// Create claims the id atomically; an existing record is ErrConflict.
	Create(ctx context.Context, rec Record) error
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
}
