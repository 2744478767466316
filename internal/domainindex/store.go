// Package domainindex maintains the global mapping from a normalized domain
// to its owning client. The fact is stored twice: a client-scoped listing
// entry and a global reverse-lookup entry. Serving-path reads use only the
// reverse lookup, a single indexed point read.
package domainindex

import (
	"context"
	"time"
)

// Record is one domain binding.
type Record struct {
	Domain    string    `json:"domain"`
	ClientID  string    `json:"client_id"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists domain bindings. Implementations must keep both
// representations of a binding coherent: an insert either lands in both or
// is rolled back, and a remove deletes the client-scoped entry before the
// reverse-lookup entry. Implementations return sentinel errors.
type Store interface {
	// Insert writes both representations of rec. Returns
	// sentinel.ErrConflict when the domain is already bound to any client.
	// When rec.IsPrimary is set, any existing primary for the client is
	// demoted in the same critical section.
	Insert(ctx context.Context, rec Record) error

	// Owner returns the client bound to domain via a single point read.
	Owner(ctx context.Context, domain string) (string, error)

	// Remove deletes both representations for the given client's domain.
	Remove(ctx context.Context, clientID, domain string) error

	// ListByClient returns all bindings of one client.
	ListByClient(ctx context.Context, clientID string) ([]Record, error)

	// SetPrimary atomically demotes the current primary and promotes domain.
	SetPrimary(ctx context.Context, clientID, domain string) error
}
