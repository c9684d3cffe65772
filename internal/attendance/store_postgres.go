package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rollcall/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const columns = `id, session_id, identity_id, status, confidence, code_verified, recorded_at`

func (s *PostgresStore) Get(ctx context.Context, sessionID, identityID string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM attendance_records WHERE session_id = $1 AND identity_id = $2`,
		sessionID, identityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return rec, nil
}

// Put upserts in one statement. The conditional DO UPDATE skips verified
// rows, so an empty RETURNING means the pair is already verified.
func (s *PostgresStore) Put(ctx context.Context, rec *Record) (*Record, error) {
	stored, err := scanRecord(s.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, identity_id) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = EXCLUDED.confidence,
			code_verified = EXCLUDED.code_verified,
			recorded_at = EXCLUDED.recorded_at
		WHERE attendance_records.status <> 'verified'
		RETURNING `+columns,
		rec.ID,
		rec.SessionID,
		rec.IdentityID,
		string(rec.Status),
		rec.Confidence,
		rec.CodeVerified,
		rec.RecordedAt,
	))
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("put attendance: %w", err)
	}
	existing, err := s.Get(ctx, rec.SessionID, rec.IdentityID)
	if err != nil {
		return nil, err
	}
	return existing, sentinel.ErrAlreadyUsed
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]*Record, error) {
	return s.list(ctx, `SELECT `+columns+` FROM attendance_records
		WHERE session_id = $1 ORDER BY recorded_at, identity_id`, sessionID)
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identityID string) ([]*Record, error) {
	return s.list(ctx, `SELECT `+columns+` FROM attendance_records
		WHERE identity_id = $1 ORDER BY recorded_at, session_id`, identityID)
}

func (s *PostgresStore) list(ctx context.Context, query string, arg string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	out := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec    Record
		status string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.IdentityID,
		&status,
		&rec.Confidence,
		&rec.CodeVerified,
		&rec.RecordedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	return &rec, nil
}
