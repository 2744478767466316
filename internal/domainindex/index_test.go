package domainindex

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "pixelgate/pkg/domain-errors"
)

type IndexSuite struct {
	suite.Suite
	store *MemoryStore
	index *Service
	ctx   context.Context
}

func TestIndexSuite(t *testing.T) {
	suite.Run(t, new(IndexSuite))
}

func (s *IndexSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.index = New(s.store, slog.New(slog.DiscardHandler), WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	s.ctx = context.Background()
}

func (s *IndexSuite) TestAddThenLookup() {
	rec, err := s.index.AddDomain(s.ctx, "client_abc", "  Shop.Example.COM ", true)
	s.Require().NoError(err)
	s.Equal("shop.example.com", rec.Domain)
	s.True(rec.IsPrimary)

	// Lookup is case and whitespace insensitive.
	for _, q := range []string{"shop.example.com", "SHOP.EXAMPLE.COM", " Shop.Example.Com "} {
		owner, err := s.index.Lookup(s.ctx, q)
		s.Require().NoError(err)
		s.Equal("client_abc", owner)
	}
}

func (s *IndexSuite) TestLookupUnbound() {
	_, err := s.index.Lookup(s.ctx, "other.example.com")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IndexSuite) TestConflictAcrossClients() {
	_, err := s.index.AddDomain(s.ctx, "client_abc", "shop.example.com", false)
	s.Require().NoError(err)

	_, err = s.index.AddDomain(s.ctx, "client_xyz", "shop.example.com", false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "client_abc")

	// The original binding is unaffected.
	owner, err := s.index.Lookup(s.ctx, "shop.example.com")
	s.Require().NoError(err)
	s.Equal("client_abc", owner)
}

func (s *IndexSuite) TestConflictSameClient() {
	_, err := s.index.AddDomain(s.ctx, "client_abc", "shop.example.com", false)
	s.Require().NoError(err)

	_, err = s.index.AddDomain(s.ctx, "client_abc", "shop.example.com", false)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "already exists for this client")
}

func (s *IndexSuite) TestPrimaryUniqueness() {
	_, err := s.index.AddDomain(s.ctx, "client_abc", "one.example.com", true)
	s.Require().NoError(err)
	_, err = s.index.AddDomain(s.ctx, "client_abc", "two.example.com", true)
	s.Require().NoError(err)
	_, err = s.index.AddDomain(s.ctx, "client_abc", "three.example.com", false)
	s.Require().NoError(err)

	s.assertSinglePrimary("client_abc", "two.example.com")

	// Explicit switch demotes and promotes in one operation.
	s.Require().NoError(s.index.SetPrimary(s.ctx, "client_abc", "three.example.com"))
	s.assertSinglePrimary("client_abc", "three.example.com")

	// Switching to itself is a no-op that keeps the invariant.
	s.Require().NoError(s.index.SetPrimary(s.ctx, "client_abc", "three.example.com"))
	s.assertSinglePrimary("client_abc", "three.example.com")
}

func (s *IndexSuite) TestPrimaryIsolatedPerClient() {
	_, err := s.index.AddDomain(s.ctx, "client_abc", "one.example.com", true)
	s.Require().NoError(err)
	_, err = s.index.AddDomain(s.ctx, "client_xyz", "two.example.com", true)
	s.Require().NoError(err)

	s.assertSinglePrimary("client_abc", "one.example.com")
	s.assertSinglePrimary("client_xyz", "two.example.com")
}

func (s *IndexSuite) TestRemoveDomain() {
	_, err := s.index.AddDomain(s.ctx, "client_abc", "shop.example.com", false)
	s.Require().NoError(err)

	s.Require().NoError(s.index.RemoveDomain(s.ctx, "client_abc", "shop.example.com"))

	_, err = s.index.Lookup(s.ctx, "shop.example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	// The domain is free for another client afterwards.
	_, err = s.index.AddDomain(s.ctx, "client_xyz", "shop.example.com", false)
	s.Require().NoError(err)
}

func (s *IndexSuite) TestRemoveUnknownDomain() {
	err := s.index.RemoveDomain(s.ctx, "client_abc", "ghost.example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IndexSuite) TestAddRejectsMalformedDomains() {
	for _, raw := range []string{"https://x.example.com", "x.example.com/path", "x.example.com:443", "ab"} {
		_, err := s.index.AddDomain(s.ctx, "client_abc", raw, false)
		s.Require().Error(err, raw)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest), raw)
	}
}

func (s *IndexSuite) TestStoreFailureFailsClosed() {
	s.index = New(failingStore{}, slog.New(slog.DiscardHandler))

	_, err := s.index.Lookup(s.ctx, "shop.example.com")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *IndexSuite) assertSinglePrimary(clientID, want string) {
	s.T().Helper()
	records, err := s.index.ListDomains(s.ctx, clientID)
	s.Require().NoError(err)
	var primaries []string
	for _, rec := range records {
		if rec.IsPrimary {
			primaries = append(primaries, rec.Domain)
		}
	}
	s.Require().Equal([]string{want}, primaries)
}

// failingStore simulates an unreachable document store.
type failingStore struct{}

func (failingStore) Insert(context.Context, Record) error { return errUnreachable }
func (failingStore) Owner(context.Context, string) (string, error) {
	return "", errUnreachable
}
func (failingStore) Remove(context.Context, string, string) error { return errUnreachable }
func (failingStore) ListByClient(context.Context, string) ([]Record, error) {
	return nil, errUnreachable
}
func (failingStore) SetPrimary(context.Context, string, string) error { return errUnreachable }

var errUnreachable = context.DeadlineExceeded
