// Package admin is the management surface: client registration and domain
// binding. It sits in front of the same stores the serving path reads, and
// is the only writer of client records.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pixelgate/internal/client"
	"pixelgate/internal/domainindex"
	"pixelgate/internal/platform/middleware"
	"pixelgate/internal/privacy"
	dErrors "pixelgate/pkg/domain-errors"
	"pixelgate/pkg/platform/sentinel"
)

const defaultStoreTimeout = 3 * time.Second

// CreateClientInput carries the registration request. ClientID is optional;
// a uuid is assigned when absent. Deployment defaults to shared.
type CreateClientInput struct {
	ClientID            string             `json:"client_id,omitempty"`
	PrivacyLevel        string             `json:"privacy_level"`
	IPCollectionEnabled *bool              `json:"ip_collection_enabled,omitempty"`
	Features            map[string]any     `json:"features,omitempty"`
	Deployment          *client.Deployment `json:"deployment,omitempty"`
}

type Service struct {
	clients client.Store
	index   *domainindex.Service
	logger  *slog.Logger

	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func New(clients client.Store, index *domainindex.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		clients: clients,
		index:   index,
		logger:  logger,
		timeout: defaultStoreTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateClient registers a new client. IP collection defaults to enabled;
// the tier decides whether collected addresses get hashed downstream.
func (s *Service) CreateClient(ctx context.Context, in CreateClientInput) (client.Record, error) {
	level, err := privacy.ParseLevel(in.PrivacyLevel)
	if err != nil {
		return client.Record{}, err
	}

	id := in.ClientID
	if id == "" {
		id = s.newID()
	}

	ipCollection := true
	if in.IPCollectionEnabled != nil {
		ipCollection = *in.IPCollectionEnabled
	}
	deployment := client.Deployment{Type: client.DeploymentShared}
	if in.Deployment != nil {
		deployment = *in.Deployment
	}

	rec, err := client.NewRecord(id, level, ipCollection, in.Features, deployment, s.now())
	if err != nil {
		return client.Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// The store claims the id atomically; racing creates lose with a
	// conflict instead of silently overwriting each other's salt.
	if err := s.clients.Create(ctx, rec); errors.Is(err, sentinel.ErrConflict) {
		return client.Record{}, dErrors.New(dErrors.CodeConflict, "client already exists")
	} else if err != nil {
		return client.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save client")
	}

	s.logger.InfoContext(ctx, "client created",
		"request_id", middleware.GetRequestID(ctx),
		"client_id", rec.ID,
		"privacy_level", string(rec.PrivacyLevel),
	)
	return rec, nil
}

func (s *Service) GetClient(ctx context.Context, clientID string) (client.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.clients.Get(ctx, clientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return client.Record{}, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	if err != nil {
		return client.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "client store unavailable")
	}
	return rec, nil
}

// SetClientActive flips the serving flag without touching anything else on
// the record. Deactivation takes effect on the next pixel request.
func (s *Service) SetClientActive(ctx context.Context, clientID string, active bool) (client.Record, error) {
	rec, err := s.GetClient(ctx, clientID)
	if err != nil {
		return client.Record{}, err
	}
	if rec.IsActive == active {
		return rec, nil
	}
	rec.IsActive = active

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.clients.Save(ctx, rec); err != nil {
		return client.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save client")
	}

	s.logger.InfoContext(ctx, "client status changed",
		"request_id", middleware.GetRequestID(ctx),
		"client_id", clientID,
		"is_active", active,
	)
	return rec, nil
}

// DeleteClient removes the record and releases every domain bound to it.
func (s *Service) DeleteClient(ctx context.Context, clientID string) error {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return err
	}

	domains, err := s.index.ListDomains(ctx, clientID)
	if err != nil {
		return err
	}
	for _, d := range domains {
		if err := s.index.RemoveDomain(ctx, clientID, d.Domain); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.clients.Delete(ctx, clientID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete client")
	}

	s.logger.InfoContext(ctx, "client deleted",
		"request_id", middleware.GetRequestID(ctx),
		"client_id", clientID,
		"released_domains", len(domains),
	)
	return nil
}

// AddDomain binds a domain to an existing client.
func (s *Service) AddDomain(ctx context.Context, clientID, domain string, isPrimary bool) (domainindex.Record, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return domainindex.Record{}, err
	}
	return s.index.AddDomain(ctx, clientID, domain, isPrimary)
}

func (s *Service) RemoveDomain(ctx context.Context, clientID, domain string) error {
	return s.index.RemoveDomain(ctx, clientID, domain)
}

func (s *Service) SetPrimaryDomain(ctx context.Context, clientID, domain string) error {
	return s.index.SetPrimary(ctx, clientID, domain)
}

func (s *Service) ListDomains(ctx context.Context, clientID string) ([]domainindex.Record, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.index.ListDomains(ctx, clientID)
}
