package domainindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dErrors "pixelgate/pkg/domain-errors"
	"pixelgate/pkg/platform/sentinel"
)

// Service enforces the index invariants on top of a Store: one owner per
// domain across the whole system, at most one primary per client, and
// fail-closed authorization when the store is unreachable.
type Service struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Service)

// WithTimeout bounds every store round-trip. Defaults to 3s.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  logger,
		timeout: 3 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDomain normalizes and binds rawDomain to clientID. A domain bound to a
// different client yields a conflict naming only the owning client id; a
// domain already bound to the same client yields a conflict as well.
func (s *Service) AddDomain(ctx context.Context, clientID, rawDomain string, isPrimary bool) (Record, error) {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	owner, err := s.store.Owner(ctx, domain)
	switch {
	case err == nil && owner == clientID:
		return Record{}, dErrors.New(dErrors.CodeConflict, "domain already exists for this client")
	case err == nil:
		return Record{}, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("domain is registered to client %s", owner))
	case !errors.Is(err, sentinel.ErrNotFound):
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "domain index unavailable")
	}

	rec := Record{
		Domain:    domain,
		ClientID:  clientID,
		IsPrimary: isPrimary,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race for the binding since the Owner check.
			return Record{}, dErrors.New(dErrors.CodeConflict, "domain is registered to another client")
		}
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register domain")
	}

	s.logger.InfoContext(ctx, "domain registered",
		"client_id", clientID,
		"domain", domain,
		"is_primary", isPrimary,
	)
	return rec, nil
}

// Lookup resolves a domain to its owning client id with a single point
// read. Unknown domains and store failures both deny; a store failure is
// surfaced as an internal error so authorization fails closed, never open.
func (s *Service) Lookup(ctx context.Context, domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "domain is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	owner, err := s.store.Owner(ctx, domain)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotFound, "domain is not authorized")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "domain index unavailable")
	}
	return owner, nil
}

// RemoveDomain deletes both representations of the binding.
func (s *Service) RemoveDomain(ctx context.Context, clientID, rawDomain string) error {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.Remove(ctx, clientID, domain); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "domain is not registered for this client")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove domain")
	}

	s.logger.InfoContext(ctx, "domain removed", "client_id", clientID, "domain", domain)
	return nil
}

// SetPrimary switches the client's primary domain in one transactional
// demote-and-promote.
func (s *Service) SetPrimary(ctx context.Context, clientID, rawDomain string) error {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.SetPrimary(ctx, clientID, domain); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "domain is not registered for this client")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to switch primary domain")
	}
	return nil
}

// ListDomains returns all bindings of one client, for the admin surface.
func (s *Service) ListDomains(ctx context.Context, clientID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.store.ListByClient(ctx, clientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	return records, nil
}
