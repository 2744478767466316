package domainindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pixelgate/pkg/platform/sentinel"
)

const (
	// reverseKeyPrefix holds the global domain -> client binding; this is
	// the only key the serving path reads.
	reverseKeyPrefix = "px:domain:"
	// clientKeyPrefix holds the client-scoped listing as a hash keyed by
	// domain.
	clientKeyPrefix = "px:domains:client:"
)

// RedisStore keeps the index in the shared document store. The global
// reverse-lookup entry is claimed first with SETNX so two writers can never
// bind the same domain; a failed second write is compensated by deleting the
// claim so readers never observe partial state.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Insert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal domain record: %w", err)
	}

	claimed, err := s.client.SetNX(ctx, reverseKeyPrefix+rec.Domain, rec.ClientID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim domain binding: %w", sentinel.ErrUnavailable)
	}
	if !claimed {
		return sentinel.ErrConflict
	}

	if err := s.writeClientEntry(ctx, rec, payload); err != nil {
		// Compensating delete: readers must never see a reverse-lookup
		// entry without its client-scoped counterpart staying writable.
		if delErr := s.client.Del(ctx, reverseKeyPrefix+rec.Domain).Err(); delErr != nil {
			return fmt.Errorf("rollback domain claim for %s: %w", rec.Domain, sentinel.ErrUnavailable)
		}
		return fmt.Errorf("write client domain entry: %w", sentinel.ErrUnavailable)
	}
	return nil
}

// writeClientEntry writes the client-scoped listing entry, demoting any
// existing primary in the same transaction when rec.IsPrimary is set.
func (s *RedisStore) writeClientEntry(ctx context.Context, rec Record, payload []byte) error {
	key := clientKeyPrefix + rec.ClientID
	if !rec.IsPrimary {
		return s.client.HSet(ctx, key, rec.Domain, payload).Err()
	}

	existing, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	for domain, raw := range existing {
		var old Record
		if json.Unmarshal([]byte(raw), &old) != nil || !old.IsPrimary {
			continue
		}
		old.IsPrimary = false
		demoted, err := json.Marshal(old)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, key, domain, demoted)
	}
	pipe.HSet(ctx, key, rec.Domain, payload)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Owner(ctx context.Context, domain string) (string, error) {
	owner, err := s.client.Get(ctx, reverseKeyPrefix+domain).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup domain owner: %w", sentinel.ErrUnavailable)
	}
	return owner, nil
}

func (s *RedisStore) Remove(ctx context.Context, clientID, domain string) error {
	owner, err := s.Owner(ctx, domain)
	if err != nil {
		return err
	}
	if owner != clientID {
		return sentinel.ErrNotFound
	}

	// Client-scoped entry first, reverse-lookup last: a dangling reverse
	// entry keeps Lookup failing closed, whereas a dangling listing entry
	// would let a client appear to own an unbound domain.
	if err := s.client.HDel(ctx, clientKeyPrefix+clientID, domain).Err(); err != nil {
		return fmt.Errorf("delete client domain entry: %w", sentinel.ErrUnavailable)
	}
	if err := s.client.Del(ctx, reverseKeyPrefix+domain).Err(); err != nil {
		return fmt.Errorf("delete domain binding: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *RedisStore) ListByClient(ctx context.Context, clientID string) ([]Record, error) {
	entries, err := s.client.HGetAll(ctx, clientKeyPrefix+clientID).Result()
	if err != nil {
		return nil, fmt.Errorf("list client domains: %w", sentinel.ErrUnavailable)
	}
	records := make([]Record, 0, len(entries))
	for _, raw := range entries {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode domain record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RedisStore) SetPrimary(ctx context.Context, clientID, domain string) error {
	key := clientKeyPrefix + clientID
	entries, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("list client domains: %w", sentinel.ErrUnavailable)
	}
	if _, ok := entries[domain]; !ok {
		return sentinel.ErrNotFound
	}

	// One transaction for demote plus promote; the uniqueness invariant
	// must hold for any reader between the two writes.
	pipe := s.client.TxPipeline()
	for d, raw := range entries {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("decode domain record: %w", err)
		}
		want := d == domain
		if rec.IsPrimary == want {
			continue
		}
		rec.IsPrimary = want
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, key, d, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("switch primary domain: %w", sentinel.ErrUnavailable)
	}
	return nil
}
