package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pixelgate/internal/privacy"
	"pixelgate/pkg/platform/sentinel"
)

const clientKeyPrefix = "px:client:"

// redisRecord is the persisted shape. It differs from Record so the salt is
// stored even though it is never serialized to callers.
type redisRecord struct {
	ID                  string         `json:"client_id"`
	PrivacyLevel        string         `json:"privacy_level"`
	IPCollectionEnabled bool           `json:"ip_collection_enabled"`
	IPSalt              string         `json:"ip_salt,omitempty"`
	ConsentRequired     bool           `json:"consent_required"`
	Features            map[string]any `json:"features"`
	DeploymentType      string         `json:"deployment_type"`
	DeploymentHostname  string         `json:"deployment_hostname,omitempty"`
	IsActive            bool           `json:"is_active"`
	CreatedAt           time.Time      `json:"created_at"`
}

// RedisStore persists client records as JSON documents in the shared
// document store.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func marshalRecord(rec Record) ([]byte, error) {
	doc := redisRecord{
		ID:                  rec.ID,
		PrivacyLevel:        string(rec.PrivacyLevel),
		IPCollectionEnabled: rec.IPCollectionEnabled,
		IPSalt:              rec.IPSalt,
		ConsentRequired:     rec.ConsentRequired,
		Features:            rec.Features,
		DeploymentType:      string(rec.Deployment.Type),
		DeploymentHostname:  rec.Deployment.Hostname,
		IsActive:            rec.IsActive,
		CreatedAt:           rec.CreatedAt,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal client record: %w", err)
	}
	return payload, nil
}

// Create claims the id with SETNX so concurrent creates of the same id
// cannot both succeed with different salts.
func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	payload, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	claimed, err := s.client.SetNX(ctx, clientKeyPrefix+rec.ID, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create client record: %w", sentinel.ErrUnavailable)
	}
	if !claimed {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	// Salt immutability: preserve the stored salt if one exists.
	existing, err := s.Get(ctx, rec.ID)
	if err == nil && existing.IPSalt != "" {
		rec.IPSalt = existing.IPSalt
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}

	payload, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, clientKeyPrefix+rec.ID, payload, 0).Err(); err != nil {
		return fmt.Errorf("save client record: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	payload, err := s.client.Get(ctx, clientKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get client record: %w", sentinel.ErrUnavailable)
	}

	var doc redisRecord
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Record{}, fmt.Errorf("decode client record %s: %w", id, err)
	}
	return Record{
		ID:                  doc.ID,
		PrivacyLevel:        privacy.Level(doc.PrivacyLevel),
		IPCollectionEnabled: doc.IPCollectionEnabled,
		IPSalt:              doc.IPSalt,
		ConsentRequired:     doc.ConsentRequired,
		Features:            doc.Features,
		Deployment: Deployment{
			Type:     DeploymentType(doc.DeploymentType),
			Hostname: doc.DeploymentHostname,
		},
		IsActive:  doc.IsActive,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, clientKeyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("delete client record: %w", sentinel.ErrUnavailable)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
