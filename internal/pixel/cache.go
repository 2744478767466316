// Package pixel serves the tracking script: a TTL-cached template with the
// resolved client configuration injected at a single marker.
package pixel

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	dErrors "pixelgate/pkg/domain-errors"
)

// ConfigMarker is the single substitution point the template must contain.
const ConfigMarker = "__PIXEL_CONFIG__"

var templateReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pixelgate_template_reloads_total",
	Help: "Successful pixel template loads from disk.",
})

// TemplateCache loads the static template from a fixed path at most once per
// TTL window. After the first successful load, callers never block on disk
// I/O: a stale value is served while a single-flight reload runs.
type TemplateCache struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	value    string
	loadedAt time.Time

	group singleflight.Group
}

func NewTemplateCache(path string, ttl time.Duration, logger *slog.Logger) *TemplateCache {
	return &TemplateCache{path: path, ttl: ttl, logger: logger}
}

// Get returns the cached template text. The first call loads synchronously
// and surfaces template integrity failures; later calls serve from memory
// and refresh in the background once the TTL lapses.
func (c *TemplateCache) Get() (string, error) {
	c.mu.RLock()
	value, loadedAt := c.value, c.loadedAt
	c.mu.RUnlock()

	if loadedAt.IsZero() {
		result, err, _ := c.group.Do("load", func() (any, error) {
			return c.load()
		})
		if err != nil {
			return "", err
		}
		return result.(string), nil
	}

	if time.Since(loadedAt) >= c.ttl {
		// Fire and forget; concurrent callers share the one flight and all
		// keep serving the previously valid value.
		ch := c.group.DoChan("load", func() (any, error) {
			return c.load()
		})
		go func() {
			if res := <-ch; res.Err != nil {
				c.logger.Error("pixel template reload failed, serving cached copy", "error", res.Err)
			}
		}()
	}
	return value, nil
}

// load reads the template, verifies it carries exactly one marker, and
// installs it. An integrity violation is a service error raised here, never
// deferred to generation time.
func (c *TemplateCache) load() (string, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to read pixel template %s", c.path))
	}
	content := string(raw)
	if n := strings.Count(content, ConfigMarker); n != 1 {
		return "", dErrors.New(dErrors.CodeInternal,
			fmt.Sprintf("pixel template must contain exactly one %s marker, found %d", ConfigMarker, n))
	}

	c.mu.Lock()
	c.value = content
	c.loadedAt = time.Now()
	c.mu.Unlock()

	templateReloadsTotal.Inc()
	return content, nil
}
