package geo

import (
	"context"
	"net/netip"
)

// Record is one row of the range database, unredacted.
type Record struct {
	Country    string
	Region     string
	PostalCode string
	IsEU       bool
}

// RangeStore answers point-in-range lookups. A miss is sentinel.ErrNotFound;
// any other error means the store itself failed and the caller must degrade
// rather than guess.
type RangeStore interface {
	Lookup(ctx context.Context, ip netip.Addr) (Record, error)
	Close()
}
