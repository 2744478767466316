package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pixelgate/internal/admin"
	"pixelgate/internal/client"
	"pixelgate/internal/collect"
	"pixelgate/internal/domainindex"
	"pixelgate/internal/geo"
	"pixelgate/internal/pixel"
	"pixelgate/internal/platform/metrics"
	"pixelgate/internal/ratelimit"
	"pixelgate/pkg/testutil"
)

// Shared across the package; promauto registers on the default registry and
// a second New() would panic.
var testMetrics = metrics.New()

const routerTestTemplate = `var config = __PIXEL_CONFIG__;
`

type RouterSuite struct {
	suite.Suite

	router  http.Handler
	limiter *ratelimit.Limiter
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)

	clients := client.NewMemoryStore()
	index := domainindex.New(domainindex.NewMemoryStore(), logger)

	path := filepath.Join(s.T().TempDir(), "tracking.js")
	s.Require().NoError(os.WriteFile(path, []byte(routerTestTemplate), 0o644))
	cache := pixel.NewTemplateCache(path, time.Hour, logger)

	resolver := geo.NewResolver(nil, 8, time.Minute, logger)
	pixelSvc := pixel.New(index, clients, cache, "/collect", logger)
	collectSvc := collect.New(index, clients, resolver, collect.NewLogSink(logger), logger)
	adminSvc := admin.New(clients, index, logger)

	s.limiter = ratelimit.New(map[ratelimit.Category]ratelimit.Limit{
		ratelimit.CategoryAdmin:        {Requests: 100, Window: time.Minute},
		ratelimit.CategoryPublicConfig: {Requests: 100, Window: time.Minute},
		ratelimit.CategoryPixel:        {Requests: 3, Window: time.Minute},
		ratelimit.CategoryCollect:      {Requests: 100, Window: time.Minute},
	})

	s.router = NewRouter(Deps{
		Logger:             logger,
		Metrics:            testMetrics,
		Pixel:              pixelSvc,
		Collect:            collectSvc,
		Admin:              adminSvc,
		RateLimit:          ratelimit.NewMiddleware(s.limiter, logger, ratelimit.WithMetrics(testMetrics)),
		CollectionEndpoint: "/collect",
	})

	// Seed a regulated client bound to shop.example.com through the admin
	// flow itself.
	s.createClient(`{"client_id":"client_abc","privacy_level":"gdpr"}`)
	s.addDomain("client_abc", `{"domain":"shop.example.com","is_primary":true}`)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *RouterSuite) createClient(body string) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/clients", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := s.do(req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
}

func (s *RouterSuite) addDomain(clientID, body string) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/clients/"+clientID+"/domains", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := s.do(req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
}

func (s *RouterSuite) pixelRequest(origin string) *http.Request {
	return testutil.NewPixelRequest(s.T(), "client_abc", origin)
}

func (s *RouterSuite) TestPixelAuthorizedDomain() {
	rr := s.do(s.pixelRequest("https://shop.example.com"))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	s.Equal("application/javascript; charset=utf-8", rr.Header().Get("Content-Type"))
	s.Equal("public, max-age=300", rr.Header().Get("Cache-Control"))
	s.Equal("client_abc", rr.Header().Get("X-Client-ID"))
	s.Equal("shop.example.com", rr.Header().Get("X-Authorized-Domain"))
	s.Equal("gdpr", rr.Header().Get("X-Privacy-Level"))
	s.NotEmpty(rr.Header().Get("X-Generated-At"))

	body := rr.Body.String()
	s.NotContains(body, pixel.ConfigMarker)
	s.Contains(body, `"consent":{"required":true,"default_behavior":"block"}`)
	s.Contains(body, `"hash_required":true`)
}

func (s *RouterSuite) TestPixelUnboundOriginNotFound() {
	rr := s.do(s.pixelRequest("https://evil.example.org"))
	s.Require().Equal(http.StatusNotFound, rr.Code)

	var body map[string]string
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	s.Equal("not_found", body["error"])
}

func (s *RouterSuite) TestPixelForeignOriginForbidden() {
	s.createClient(`{"client_id":"other","privacy_level":"standard"}`)
	s.addDomain("other", `{"domain":"other.example.com"}`)

	rr := s.do(s.pixelRequest("https://other.example.com"))
	s.Equal(http.StatusForbidden, rr.Code)
}

func (s *RouterSuite) TestPixelRateLimited() {
	for i := 0; i < 3; i++ {
		rr := s.do(s.pixelRequest("https://shop.example.com"))
		s.Require().Equal(http.StatusOK, rr.Code)
	}

	rr := s.do(s.pixelRequest("https://shop.example.com"))
	s.Require().Equal(http.StatusTooManyRequests, rr.Code)
	s.NotEmpty(rr.Header().Get("Retry-After"))

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	s.Equal("rate_limited", body["error"])
}

func (s *RouterSuite) TestConfigByDomain() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/config/domain/shop.example.com", nil))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	cfg := *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal("client_abc", cfg["client_id"])
	s.Equal("gdpr", cfg["privacy_level"])
	consent := cfg["consent"].(map[string]any)
	s.Equal(true, consent["required"])
}

func (s *RouterSuite) TestConfigByClient() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/config/client/client_abc", nil))
	s.Require().Equal(http.StatusOK, rr.Code)

	// The salt must never appear in any public payload.
	s.NotContains(rr.Body.String(), "salt")
}

func (s *RouterSuite) TestConfigUnknownDomain() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/config/domain/nope.example.org", nil))
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *RouterSuite) TestCollectAcceptsAuthorizedEvent() {
	body := `{"client_id":"client_abc","event_type":"page_view","page_url":"https://shop.example.com/"}`
	req := httptest.NewRequest(http.MethodPost, "/collect", strings.NewReader(body))
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Content-Type", "application/json")

	rr := s.do(req)
	s.Equal(http.StatusAccepted, rr.Code, rr.Body.String())
}

func (s *RouterSuite) TestCollectRejectsMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/collect", strings.NewReader("{not json"))
	rr := s.do(req)
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *RouterSuite) TestAdminClientLifecycle() {
	s.createClient(`{"client_id":"lifecycle","privacy_level":"standard"}`)

	rr := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/clients/lifecycle", nil))
	s.Require().Equal(http.StatusOK, rr.Code)

	rr = s.do(httptest.NewRequest(http.MethodPatch, "/api/v1/admin/clients/lifecycle/status", strings.NewReader(`{"is_active":false}`)))
	s.Require().Equal(http.StatusOK, rr.Code)

	rec := *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(false, rec["is_active"])

	rr = s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/admin/clients/lifecycle", nil))
	s.Require().Equal(http.StatusNoContent, rr.Code)

	rr = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/clients/lifecycle", nil))
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *RouterSuite) TestAdminDomainConflict() {
	s.createClient(`{"client_id":"other","privacy_level":"standard"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/clients/other/domains", strings.NewReader(`{"domain":"shop.example.com"}`))
	rr := s.do(req)
	s.Equal(http.StatusConflict, rr.Code)
}

func (s *RouterSuite) TestHealthz() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, rr.Code)
}

func (s *RouterSuite) TestMetricsEndpoint() {
	rr := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rr.Code)
}

func TestHealthzDegraded(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	clients := client.NewMemoryStore()
	index := domainindex.New(domainindex.NewMemoryStore(), logger)

	path := filepath.Join(t.TempDir(), "tracking.js")
	require.NoError(t, os.WriteFile(path, []byte(routerTestTemplate), 0o644))

	router := NewRouter(Deps{
		Logger:             logger,
		Pixel:              pixel.New(index, clients, pixel.NewTemplateCache(path, time.Hour, logger), "/collect", logger),
		Collect:            collect.New(index, clients, geo.NewResolver(nil, 8, time.Minute, logger), collect.NewLogSink(logger), logger),
		Admin:              admin.New(clients, index, logger),
		RateLimit:          ratelimit.NewMiddleware(ratelimit.New(ratelimit.DefaultLimits()), logger, ratelimit.WithDisabled(true)),
		CollectionEndpoint: "/collect",
		Health: func(context.Context) error {
			return context.DeadlineExceeded
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
