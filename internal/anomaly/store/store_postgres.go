package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"rollcall/internal/anomaly"
	"rollcall/pkg/platform/sentinel"
)

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// PostgresStore keeps strike records and anomalies in Postgres. Strike
// updates hold a row lock for the duration of the callback.
type PostgresStore struct {
	db *sql.DB
}

var _ anomaly.Store = (*PostgresStore)(nil)

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const strikeColumns = `session_id, identity_id, failure_count, locked, locked_at, lock_reason, unlocked_by, unlocked_at, updated_at`

func (s *PostgresStore) GetStrikes(ctx context.Context, key anomaly.Key) (*anomaly.StrikeRecord, error) {
	rec, err := scanStrikes(s.db.QueryRowContext(ctx,
		`SELECT `+strikeColumns+` FROM strike_records WHERE session_id = $1 AND identity_id = $2`,
		key.SessionID, key.IdentityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get strike record: %w", err)
	}
	return rec, nil
}

// UpdateStrikes seeds the row if needed, then locks it with SELECT FOR UPDATE
// so concurrent updates for the same key run one after another.
func (s *PostgresStore) UpdateStrikes(ctx context.Context, key anomaly.Key, fn func(*anomaly.StrikeRecord) error) (*anomaly.StrikeRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update strikes: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO strike_records (session_id, identity_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, identity_id) DO NOTHING
	`, key.SessionID, key.IdentityID, time.Time{}); err != nil {
		return nil, fmt.Errorf("seed strike record: %w", err)
	}

	rec, err := scanStrikes(tx.QueryRowContext(ctx,
		`SELECT `+strikeColumns+` FROM strike_records WHERE session_id = $1 AND identity_id = $2 FOR UPDATE`,
		key.SessionID, key.IdentityID))
	if err != nil {
		return nil, fmt.Errorf("lock strike record: %w", err)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE strike_records SET
			failure_count = $3,
			locked = $4,
			locked_at = $5,
			lock_reason = $6,
			unlocked_by = $7,
			unlocked_at = $8,
			updated_at = $9
		WHERE session_id = $1 AND identity_id = $2
	`,
		key.SessionID, key.IdentityID,
		rec.FailureCount,
		rec.Locked,
		rec.LockedAt,
		string(rec.LockReason),
		rec.UnlockedBy,
		rec.UnlockedAt,
		rec.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update strike record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit strike record: %w", err)
	}
	return rec, nil
}

func scanStrikes(row rowScanner) (*anomaly.StrikeRecord, error) {
	var (
		rec        anomaly.StrikeRecord
		reason     string
		lockedAt   sql.NullTime
		unlockedAt sql.NullTime
	)
	if err := row.Scan(
		&rec.SessionID,
		&rec.IdentityID,
		&rec.FailureCount,
		&rec.Locked,
		&lockedAt,
		&reason,
		&rec.UnlockedBy,
		&unlockedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.LockReason = anomaly.LockReason(reason)
	if lockedAt.Valid {
		rec.LockedAt = &lockedAt.Time
	}
	if unlockedAt.Valid {
		rec.UnlockedAt = &unlockedAt.Time
	}
	return &rec, nil
}

const anomalyColumns = `id, identity_id, session_id, type, reason, confidence, created_at, reviewed, reviewed_by, reviewed_at`

func (s *PostgresStore) AppendAnomaly(ctx context.Context, r *anomaly.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anomalies (id, identity_id, session_id, type, reason, confidence, created_at, reviewed, reviewed_by, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		r.ID,
		nullString(r.IdentityID),
		nullString(r.SessionID),
		string(r.Type),
		r.Reason,
		r.Confidence,
		r.CreatedAt,
		r.Reviewed,
		nullString(r.ReviewedBy),
		r.ReviewedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnomaly(ctx context.Context, id string) (*anomaly.Record, error) {
	rec, err := scanAnomaly(s.db.QueryRowContext(ctx,
		`SELECT `+anomalyColumns+` FROM anomalies WHERE id = $1`, id))
	if err != nil {
		if isMissing(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get anomaly: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) UpdateAnomaly(ctx context.Context, id string, fn func(*anomaly.Record) error) (*anomaly.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update anomaly: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rec, err := scanAnomaly(tx.QueryRowContext(ctx,
		`SELECT `+anomalyColumns+` FROM anomalies WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if isMissing(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock anomaly: %w", err)
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE anomalies SET reviewed = $2, reviewed_by = $3, reviewed_at = $4 WHERE id = $1`,
		id, rec.Reviewed, nullString(rec.ReviewedBy), rec.ReviewedAt,
	); err != nil {
		return nil, fmt.Errorf("update anomaly: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit anomaly: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListAnomalies(ctx context.Context, f anomaly.Filter) ([]*anomaly.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.IdentityID != "" {
		args = append(args, f.IdentityID)
		where = append(where, fmt.Sprintf("identity_id = $%d", len(args)))
	}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if f.UnreviewedOnly {
		where = append(where, "NOT reviewed")
	}

	query := `SELECT ` + anomalyColumns + ` FROM anomalies`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	out := make([]*anomaly.Record, 0)
	for rows.Next() {
		rec, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomalies: %w", err)
	}
	return out, nil
}

func scanAnomaly(row rowScanner) (*anomaly.Record, error) {
	var (
		rec        anomaly.Record
		typ        string
		identityID sql.NullString
		sessionID  sql.NullString
		reviewedBy sql.NullString
		confidence sql.NullFloat64
		reviewedAt sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&identityID,
		&sessionID,
		&typ,
		&rec.Reason,
		&confidence,
		&rec.CreatedAt,
		&rec.Reviewed,
		&reviewedBy,
		&reviewedAt,
	); err != nil {
		return nil, err
	}
	rec.Type = anomaly.Type(typ)
	rec.IdentityID = identityID.String
	rec.SessionID = sessionID.String
	rec.ReviewedBy = reviewedBy.String
	if confidence.Valid {
		rec.Confidence = &confidence.Float64
	}
	if reviewedAt.Valid {
		rec.ReviewedAt = &reviewedAt.Time
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isMissing treats ids that are not valid UUIDs the same as absent rows.
func isMissing(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}
