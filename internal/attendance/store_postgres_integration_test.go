//go:build integration

package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rollcall/internal/attendance"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *attendance.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = attendance.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "attendance_records"))
}

func (s *PostgresStoreSuite) TestFailedThenVerifiedThenRejected() {
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	firstID := uuid.NewString()

	_, err := s.store.Put(ctx, &attendance.Record{
		ID: firstID, SessionID: "s1", IdentityID: "alice", Status: attendance.StatusFailed, RecordedAt: at,
	})
	s.Require().NoError(err)

	verified, err := s.store.Put(ctx, &attendance.Record{
		ID: uuid.NewString(), SessionID: "s1", IdentityID: "alice",
		Status: attendance.StatusVerified, Confidence: 0.74, CodeVerified: true, RecordedAt: at.Add(time.Minute),
	})
	s.Require().NoError(err)
	s.Equal(firstID, verified.ID)
	s.True(verified.CodeVerified)

	existing, err := s.store.Put(ctx, &attendance.Record{
		ID: uuid.NewString(), SessionID: "s1", IdentityID: "alice", Status: attendance.StatusFailed, RecordedAt: at.Add(2 * time.Minute),
	})
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	s.Require().NotNil(existing)
	s.Equal(attendance.StatusVerified, existing.Status)
	s.InDelta(0.74, existing.Confidence, 1e-9)

	bySession, err := s.store.ListBySession(ctx, "s1")
	s.Require().NoError(err)
	s.Len(bySession, 1)

	_, err = s.store.Get(ctx, "s1", "bob")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
