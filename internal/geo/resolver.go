package geo

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pixelgate/internal/privacy"
	"pixelgate/pkg/platform/sentinel"
)

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixelgate_geo_lookups_total",
	Help: "Geolocation resolutions by outcome.",
}, []string{"outcome"})

// Resolver answers IP-to-location queries with an in-process TTL cache in
// front of the range store. Cache entries are keyed by ip and tier so a
// redacted answer can never leak into a stricter tier.
type Resolver struct {
	store  RangeStore
	cache  *expirable.LRU[string, LocationData]
	logger *slog.Logger
}

// NewResolver builds a resolver. A nil store puts the resolver into
// permanent fallback: every lookup returns the unknown location.
func NewResolver(store RangeStore, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cache:  expirable.NewLRU[string, LocationData](cacheSize, nil, cacheTTL),
		logger: logger,
	}
}

// Resolve maps an IP to its redacted location. It does not return an error:
// unparseable input, private address space, cache-level misses against a
// failing store all degrade to Unknown.
func (r *Resolver) Resolve(ctx context.Context, rawIP string, level privacy.Level) LocationData {
	addr, err := netip.ParseAddr(strings.TrimSpace(rawIP))
	if err != nil {
		lookupsTotal.WithLabelValues("unparseable").Inc()
		return Unknown()
	}
	// Private and local address space never reaches the store.
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		lookupsTotal.WithLabelValues("private").Inc()
		return Unknown()
	}
	if r.store == nil {
		lookupsTotal.WithLabelValues("fallback").Inc()
		return Unknown()
	}

	key := addr.String() + "|" + string(level)
	if loc, ok := r.cache.Get(key); ok {
		lookupsTotal.WithLabelValues("cache_hit").Inc()
		return loc
	}

	rec, err := r.store.Lookup(ctx, addr)
	switch {
	case err == nil:
		loc := redact(rec, level)
		r.cache.Add(key, loc)
		lookupsTotal.WithLabelValues("found").Inc()
		return loc
	case errors.Is(err, sentinel.ErrNotFound):
		// Negative result is cached too; re-querying an unmapped IP on every
		// event would hammer the store.
		r.cache.Add(key, Unknown())
		lookupsTotal.WithLabelValues("unknown").Inc()
		return Unknown()
	default:
		// A failing or slow store is cached like a miss. Without this every
		// event for the same IP pays the full query timeout; the cache TTL
		// bounds how long the stale unknown outlives recovery.
		r.cache.Add(key, Unknown())
		r.logger.WarnContext(ctx, "geo range store failed, returning unknown location", "error", err)
		lookupsTotal.WithLabelValues("store_error").Inc()
		return Unknown()
	}
}

// Close releases the underlying store, if any.
func (r *Resolver) Close() {
	if r.store != nil {
		r.store.Close()
	}
}

// redact applies the tier's granularity to a raw range record.
func redact(rec Record, level privacy.Level) LocationData {
	loc := LocationData{Country: rec.Country, IsEU: rec.IsEU}
	if level.AllowsRegion(rec.IsEU) {
		loc.Region = rec.Region
		if rec.PostalCode != "" {
			loc.PostalPrefix = rec.PostalCode
			if len(loc.PostalPrefix) > postalPrefixLen {
				loc.PostalPrefix = loc.PostalPrefix[:postalPrefixLen]
			}
		}
	}
	return loc
}
