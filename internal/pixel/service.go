package pixel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"pixelgate/internal/client"
	"pixelgate/internal/domainindex"
	"pixelgate/internal/platform/middleware"
	"pixelgate/internal/privacy"
	"pixelgate/internal/tierconfig"
	dErrors "pixelgate/pkg/domain-errors"
	"pixelgate/pkg/platform/sentinel"
)

const defaultStoreTimeout = 3 * time.Second

// Service ties domain authorization, the client registry and the template
// cache together into the script serving flow. It also backs the read-only
// configuration endpoints used by collectors.
type Service struct {
	index   *domainindex.Service
	clients client.Store
	cache   *TemplateCache
	logger  *slog.Logger

	collectionEndpoint string
	timeout            time.Duration
	now                func() time.Time
}

type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(index *domainindex.Service, clients client.Store, cache *TemplateCache, collectionEndpoint string, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		index:              index,
		clients:            clients,
		cache:              cache,
		logger:             logger,
		collectionEndpoint: collectionEndpoint,
		timeout:            defaultStoreTimeout,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the rendered script plus the request metadata the transport
// layer echoes back in response headers.
type Result struct {
	Body         string
	ClientID     string
	Domain       string
	PrivacyLevel privacy.Level
	GeneratedAt  time.Time
}

// ServePixel authorizes the requesting domain against the claimed client id
// and renders the script. Authorization is decided before the client record
// is consulted: an unbound domain is 404, a domain bound to another client
// is 403, regardless of whether the claimed client exists.
func (s *Service) ServePixel(ctx context.Context, clientID, origin, referer string) (Result, error) {
	if !client.IDPattern.MatchString(clientID) {
		return Result{}, dErrors.New(dErrors.CodeBadRequest, "invalid client id")
	}

	domain, err := requestDomain(origin, referer)
	if err != nil {
		return Result{}, err
	}

	owner, err := s.index.Lookup(ctx, domain)
	if err != nil {
		return Result{}, err
	}
	if owner != clientID {
		s.logger.InfoContext(ctx, "pixel request denied: domain owned by another client",
			"request_id", middleware.GetRequestID(ctx),
			"domain", domain,
			"client_id", clientID,
		)
		return Result{}, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("domain %s is not authorized for this client", domain))
	}

	cfg, err := s.resolveClient(ctx, clientID)
	if err != nil {
		return Result{}, err
	}

	template, err := s.cache.Get()
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	body, err := Generate(template, cfg, s.collectionEndpoint, now)
	if err != nil {
		return Result{}, err
	}

	s.logger.InfoContext(ctx, "pixel served",
		"request_id", middleware.GetRequestID(ctx),
		"client_id", clientID,
		"domain", domain,
		"privacy_level", string(cfg.PrivacyLevel),
	)
	return Result{
		Body:         body,
		ClientID:     clientID,
		Domain:       domain,
		PrivacyLevel: cfg.PrivacyLevel,
		GeneratedAt:  now,
	}, nil
}

// ConfigForDomain resolves the configuration for whichever client owns the
// domain. Collectors use this to interpret events without knowing the
// client id up front.
func (s *Service) ConfigForDomain(ctx context.Context, domain string) (tierconfig.Config, error) {
	owner, err := s.index.Lookup(ctx, domain)
	if err != nil {
		return tierconfig.Config{}, err
	}
	return s.resolveClient(ctx, owner)
}

// ConfigForClient resolves the configuration for a client id directly.
func (s *Service) ConfigForClient(ctx context.Context, clientID string) (tierconfig.Config, error) {
	if !client.IDPattern.MatchString(clientID) {
		return tierconfig.Config{}, dErrors.New(dErrors.CodeBadRequest, "invalid client id")
	}
	return s.resolveClient(ctx, clientID)
}

func (s *Service) resolveClient(ctx context.Context, clientID string) (tierconfig.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.clients.Get(ctx, clientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return tierconfig.Config{}, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	if err != nil {
		return tierconfig.Config{}, dErrors.Wrap(err, dErrors.CodeInternal, "client store unavailable")
	}
	return tierconfig.Resolve(rec)
}

// requestDomain derives the requesting site from the Origin header, falling
// back to Referer. Bare hosts without a scheme are accepted.
func requestDomain(origin, referer string) (string, error) {
	for _, raw := range []string{origin, referer} {
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == "null" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if host := strings.ToLower(u.Hostname()); host != "" {
			return host, nil
		}
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "request carries no Origin or Referer")
}
