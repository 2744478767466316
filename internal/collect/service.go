package collect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"pixelgate/internal/client"
	"pixelgate/internal/domainindex"
	"pixelgate/internal/geo"
	"pixelgate/internal/platform/middleware"
	dErrors "pixelgate/pkg/domain-errors"
	"pixelgate/pkg/platform/sentinel"
)

const defaultStoreTimeout = 3 * time.Second

// Request is the transport-level context accompanying an event payload.
type Request struct {
	Event     Event
	Origin    string
	Referer   string
	ClientIP  string
	UserAgent string
}

// Service runs the ingest pipeline.
type Service struct {
	index   *domainindex.Service
	clients client.Store
	geo     *geo.Resolver
	sink    Sink
	logger  *slog.Logger

	timeout time.Duration
	now     func() time.Time
}

type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(index *domainindex.Service, clients client.Store, geoResolver *geo.Resolver, sink Sink, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		index:   index,
		clients: clients,
		geo:     geoResolver,
		sink:    sink,
		logger:  logger,
		timeout: defaultStoreTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates and authorizes an event, applies the owning client's IP
// policy, enriches it and writes it to the sink. The source domain must be
// bound to the claimed client id; anything else is rejected before any
// enrichment happens.
func (s *Service) Ingest(ctx context.Context, req Request) error {
	if err := req.Event.Validate(); err != nil {
		return err
	}

	domain, err := sourceDomain(req.Origin, req.Referer, req.Event.PageURL)
	if err != nil {
		return err
	}

	owner, err := s.index.Lookup(ctx, domain)
	if err != nil {
		return err
	}
	if owner != req.Event.ClientID {
		return dErrors.New(dErrors.CodeForbidden, "event source domain is not authorized for this client")
	}

	rec, err := s.fetchClient(ctx, req.Event.ClientID)
	if err != nil {
		return err
	}

	enriched := EnrichedEvent{
		Event:      req.Event,
		Domain:     domain,
		Location:   s.geo.Resolve(ctx, req.ClientIP, rec.PrivacyLevel),
		UserAgent:  parseUserAgent(req.UserAgent),
		ReceivedAt: s.now().UTC(),
	}
	enriched.IPAddress, enriched.IPHashed = applyIPPolicy(rec, req.ClientIP)

	if err := s.sink.Write(ctx, enriched); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write event")
	}

	s.logger.DebugContext(ctx, "event ingested",
		"request_id", middleware.GetRequestID(ctx),
		"client_id", req.Event.ClientID,
		"event_type", req.Event.EventType,
		"domain", domain,
	)
	return nil
}

func (s *Service) fetchClient(ctx context.Context, clientID string) (client.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.clients.Get(ctx, clientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return client.Record{}, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	if err != nil {
		return client.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "client store unavailable")
	}
	if !rec.IsActive {
		return client.Record{}, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	return rec, nil
}

// applyIPPolicy returns the IP value to store, if any. Tiers with collection
// disabled drop the address entirely; hashing tiers store a salted digest so
// distinct visitors stay distinguishable without the raw address.
func applyIPPolicy(rec client.Record, rawIP string) (string, bool) {
	if !rec.IPCollectionEnabled || rawIP == "" {
		return "", false
	}
	if rec.PrivacyLevel.HashRequired() {
		sum := sha256.Sum256([]byte(rec.IPSalt + "|" + rawIP))
		return hex.EncodeToString(sum[:]), true
	}
	return rawIP, false
}

func parseUserAgent(raw string) UserAgentInfo {
	if strings.TrimSpace(raw) == "" {
		return UserAgentInfo{}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return UserAgentInfo{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
}

// sourceDomain prefers the Origin header, then Referer, then the reported
// page URL. Events with no derivable source are rejected.
func sourceDomain(origin, referer, pageURL string) (string, error) {
	for _, raw := range []string{origin, referer, pageURL} {
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
	return "", dErrors.New(dErrors.CodeBadRequest, "event has no derivable source domain")
}
