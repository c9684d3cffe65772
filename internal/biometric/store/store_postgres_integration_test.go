//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rollcall/internal/biometric"
	"rollcall/internal/biometric/store"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "enrollments"))
}

func (s *PostgresStoreSuite) TestRoundTripsEmbedding() {
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	e := &biometric.Enrollment{
		IdentityID: "alice",
		Name:       "Alice",
		Embedding:  []float64{0.6, 0.8, 0},
		CreatedAt:  created,
	}
	s.Require().NoError(s.store.Save(ctx, e))

	got, err := s.store.Get(ctx, "alice")
	s.Require().NoError(err)
	s.Equal("Alice", got.Name)
	s.Equal([]float64{0.6, 0.8, 0}, got.Embedding)
	s.True(created.Equal(got.CreatedAt))
}

func (s *PostgresStoreSuite) TestConflictAndNotFound() {
	ctx := context.Background()
	e := &biometric.Enrollment{IdentityID: "a", Embedding: []float64{1}, CreatedAt: time.Now()}
	s.Require().NoError(s.store.Save(ctx, e))
	s.ErrorIs(s.store.Save(ctx, e), sentinel.ErrConflict)

	_, err := s.store.Get(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, "missing"), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListFeedsWarm() {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"x", "y"} {
		v := []float64{0, 0}
		v[i] = 1
		s.Require().NoError(s.store.Save(ctx, &biometric.Enrollment{
			IdentityID: id, Name: id, Embedding: v, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	idx := biometric.NewFlatIndex(2)
	n, err := biometric.Warm(ctx, s.store, idx)
	s.Require().NoError(err)
	s.Equal(2, n)

	hit, err := idx.FindBestMatch([]float64{0, 1}, 0.9)
	s.Require().NoError(err)
	s.Require().NotNil(hit)
	s.Equal("y", hit.IdentityID)
}
