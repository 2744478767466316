package geo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pixelgate/pkg/platform/sentinel"
)

//go:embed schema.sql
var schemaSQL string

// Narrower ranges sort after wider ones on start_ip, so the DESC scan picks
// the most specific match.
const lookupQuery = `
SELECT country, region, postal_code, is_eu
FROM geo_ranges
WHERE start_ip <= $1::inet AND end_ip >= $1::inet
ORDER BY start_ip DESC
LIMIT 1`

// PostgresStore serves range lookups from the geo_ranges table.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, queryTimeout: queryTimeout}
}

// EnsureSchema creates the range table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure geo schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, ip netip.Addr) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var rec Record
	err := s.pool.QueryRow(ctx, lookupQuery, ip.String()).
		Scan(&rec.Country, &rec.Region, &rec.PostalCode, &rec.IsEU)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: geo range lookup: %v", sentinel.ErrUnavailable, err)
	}
	return rec, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
