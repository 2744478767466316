package pixel

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pixelgate/internal/client"
	"pixelgate/internal/domainindex"
	dErrors "pixelgate/pkg/domain-errors"
)

const testTemplate = `(function () {
  var config = __PIXEL_CONFIG__;
  window.pixelgate = { config: config };
})();
`

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracking.js")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type ServiceSuite struct {
	suite.Suite

	clients *client.MemoryStore
	index   *domainindex.Service
	svc     *Service
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.clients = client.NewMemoryStore()
	s.index = domainindex.New(domainindex.NewMemoryStore(), logger)

	cache := NewTemplateCache(writeTemplate(s.T(), testTemplate), time.Hour, logger)
	s.svc = New(s.index, s.clients, cache, "/collect", logger)

	rec, err := client.NewRecord("client_abc", "gdpr", true, map[string]any{"heatmaps": true}, client.Deployment{Type: client.DeploymentShared}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.clients.Save(context.Background(), rec))
	_, err = s.index.AddDomain(context.Background(), "client_abc", "shop.example.com", true)
	s.Require().NoError(err)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestServePixelAuthorizedDomain() {
	res, err := s.svc.ServePixel(context.Background(), "client_abc", "https://shop.example.com", "")
	s.Require().NoError(err)

	s.Equal("client_abc", res.ClientID)
	s.Equal("shop.example.com", res.Domain)
	s.Equal("gdpr", string(res.PrivacyLevel))
	s.NotContains(res.Body, ConfigMarker)

	embedded := extractConfig(s.T(), res.Body)
	s.Equal("client_abc", embedded["client_id"])
	s.Equal("/collect", embedded["collection_endpoint"])
	s.Equal(Version, embedded["pixel_version"])

	consent := embedded["consent"].(map[string]any)
	s.Equal(true, consent["required"])
	s.Equal("block", consent["default_behavior"])

	ip := embedded["ip_collection"].(map[string]any)
	s.Equal(true, ip["hash_required"])
}

func (s *ServiceSuite) TestServePixelFallsBackToReferer() {
	res, err := s.svc.ServePixel(context.Background(), "client_abc", "", "https://shop.example.com/checkout?step=2")
	s.Require().NoError(err)
	s.Equal("shop.example.com", res.Domain)
}

func (s *ServiceSuite) TestServePixelUnboundDomainNotFound() {
	_, err := s.svc.ServePixel(context.Background(), "client_abc", "https://unknown.example.org", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestServePixelForeignDomainForbidden() {
	rec, err := client.NewRecord("other_client", "standard", true, nil, client.Deployment{Type: client.DeploymentShared}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.clients.Save(context.Background(), rec))
	_, err = s.index.AddDomain(context.Background(), "other_client", "other.example.com", true)
	s.Require().NoError(err)

	_, err = s.svc.ServePixel(context.Background(), "client_abc", "https://other.example.com", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestServePixelInvalidClientID() {
	_, err := s.svc.ServePixel(context.Background(), "bad id!", "https://shop.example.com", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestServePixelNoOriginNoReferer() {
	_, err := s.svc.ServePixel(context.Background(), "client_abc", "", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestServePixelInactiveClientNotFound() {
	rec, err := s.clients.Get(context.Background(), "client_abc")
	s.Require().NoError(err)
	rec.IsActive = false
	s.Require().NoError(s.clients.Save(context.Background(), rec))

	_, err = s.svc.ServePixel(context.Background(), "client_abc", "https://shop.example.com", "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestConfigForDomain() {
	cfg, err := s.svc.ConfigForDomain(context.Background(), "shop.example.com")
	s.Require().NoError(err)
	s.Equal("client_abc", cfg.ClientID)
	s.True(cfg.Consent.Required)
}

func (s *ServiceSuite) TestConfigForClientUnknown() {
	_, err := s.svc.ConfigForClient(context.Background(), "nobody")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// extractConfig pulls the embedded JSON object back out of the rendered
// script using the known substitution site in the test template.
func extractConfig(t *testing.T, body string) map[string]any {
	t.Helper()
	start := strings.Index(body, "var config = ")
	require.GreaterOrEqual(t, start, 0)
	rest := body[start+len("var config = "):]
	end := strings.Index(rest, ";\n")
	require.GreaterOrEqual(t, end, 0)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(rest[:end]), &out))
	return out
}

func TestRequestDomain(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		referer string
		want    string
		wantErr bool
	}{
		{name: "origin with scheme", origin: "https://Shop.Example.com", want: "shop.example.com"},
		{name: "origin with port", origin: "https://shop.example.com:8443", want: "shop.example.com"},
		{name: "bare host", origin: "shop.example.com", want: "shop.example.com"},
		{name: "referer fallback", referer: "https://shop.example.com/cart", want: "shop.example.com"},
		{name: "null origin falls through", origin: "null", referer: "https://shop.example.com", want: "shop.example.com"},
		{name: "empty", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requestDomain(tt.origin, tt.referer)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTemplateCache(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("missing marker fails first load", func(t *testing.T) {
		cache := NewTemplateCache(writeTemplate(t, "no marker here"), time.Hour, logger)
		_, err := cache.Get()
		require.Error(t, err)
		require.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("duplicate marker fails first load", func(t *testing.T) {
		cache := NewTemplateCache(writeTemplate(t, "__PIXEL_CONFIG__ __PIXEL_CONFIG__"), time.Hour, logger)
		_, err := cache.Get()
		require.Error(t, err)
	})

	t.Run("missing file fails first load", func(t *testing.T) {
		cache := NewTemplateCache(filepath.Join(t.TempDir(), "absent.js"), time.Hour, logger)
		_, err := cache.Get()
		require.Error(t, err)
	})

	t.Run("concurrent gets within ttl are byte identical", func(t *testing.T) {
		cache := NewTemplateCache(writeTemplate(t, testTemplate), time.Hour, logger)
		first, err := cache.Get()
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]string, 32)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got, err := cache.Get()
				require.NoError(t, err)
				results[i] = got
			}(i)
		}
		wg.Wait()
		for _, got := range results {
			require.Equal(t, first, got)
		}
	})

	t.Run("stale value served after ttl while reload runs", func(t *testing.T) {
		path := writeTemplate(t, testTemplate)
		cache := NewTemplateCache(path, time.Nanosecond, logger)
		first, err := cache.Get()
		require.NoError(t, err)

		// Corrupt the file on disk; the cached copy must keep serving.
		require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))
		time.Sleep(5 * time.Millisecond)
		got, err := cache.Get()
		require.NoError(t, err)
		require.Equal(t, first, got)
	})
}
