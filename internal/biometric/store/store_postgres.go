package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"rollcall/internal/biometric"
	"rollcall/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists enrollments with the embedding in a float8[] column.
type PostgresStore struct {
	db *sql.DB
}

var _ biometric.Store = (*PostgresStore)(nil)

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, e *biometric.Enrollment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (identity_id, name, embedding, created_at)
		VALUES ($1, $2, $3, $4)
	`, e.IdentityID, e.Name, pq.Array(e.Embedding), e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, identityID string) (*biometric.Enrollment, error) {
	var e biometric.Enrollment
	err := s.db.QueryRowContext(ctx, `
		SELECT identity_id, name, embedding, created_at
		FROM enrollments WHERE identity_id = $1
	`, identityID).Scan(&e.IdentityID, &e.Name, pq.Array(&e.Embedding), &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) Delete(ctx context.Context, identityID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enrollments WHERE identity_id = $1`, identityID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*biometric.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity_id, name, embedding, created_at
		FROM enrollments ORDER BY created_at, identity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []*biometric.Enrollment
	for rows.Next() {
		var e biometric.Enrollment
		if err := rows.Scan(&e.IdentityID, &e.Name, pq.Array(&e.Embedding), &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}
