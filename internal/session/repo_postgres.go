package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore persists call sessions in Postgres (pgx stdlib driver).
//
// It assumes a call_sessions table keyed by id, with a secondary index on
// (owner_id, created_at DESC) for the list path. Text columns are NOT NULL
// DEFAULT ''; ended_at is the only nullable column.
//
// Status transitions are guarded by `status IN (...)` predicates in the UPDATE
// itself, so two racing webhook deliveries resolve in the database: whichever
// lands second simply matches zero rows and is reported as not applied.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const sessionColumns = `
id, owner_id, phone_number, assistant_id, assistant_name, status,
provider_call_id, provider_control_id, started_at, ended_at,
duration_seconds, recording_ref, transcript, insights, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, s CallSession) error {
	const q = `
INSERT INTO call_sessions (
  id, owner_id, phone_number, assistant_id, assistant_name, status,
  provider_call_id, provider_control_id, started_at, ended_at,
  duration_seconds, recording_ref, transcript, insights, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
`
	_, err := p.db.ExecContext(ctx, q,
		s.ID,
		s.OwnerID,
		s.PhoneNumber,
		s.AssistantID,
		s.AssistantName,
		s.Status,
		s.ProviderCallID,
		s.ProviderControlID,
		s.StartedAt,
		s.EndedAt,
		s.DurationSeconds,
		s.RecordingRef,
		s.Transcript,
		s.Insights,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE id = $1
`
	return p.scanOne(p.db.QueryRowContext(ctx, q, id))
}

func (p *PostgresStore) GetOwned(ctx context.Context, ownerID, id string) (CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE id = $1 AND owner_id = $2
`
	return p.scanOne(p.db.QueryRowContext(ctx, q, id, ownerID))
}

func (p *PostgresStore) List(ctx context.Context, ownerID string, limit, offset int) ([]CallSession, int, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`
	rows, err := p.db.QueryContext(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []CallSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	const countQ = `SELECT COUNT(*) FROM call_sessions WHERE owner_id = $1`
	var total int
	if err := p.db.QueryRowContext(ctx, countQ, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (p *PostgresStore) ListCreatedBetween(ctx context.Context, ownerID string, from, to time.Time) ([]CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE owner_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC, id DESC
`
	rows, err := p.db.QueryContext(ctx, q, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkInProgress(ctx context.Context, id, providerCallID, providerControlID string, now time.Time) (bool, error) {
	// NULLIF keeps provider identifiers write-once: an empty column takes the
	// incoming value, a populated one is left alone.
	const q = `
UPDATE call_sessions
SET status = $2,
    provider_call_id = COALESCE(NULLIF(provider_call_id, ''), $3),
    provider_control_id = COALESCE(NULLIF(provider_control_id, ''), $4),
    updated_at = $5
WHERE id = $1
  AND (status = $6 OR (status = $2 AND provider_call_id = '' AND $3 <> ''))
`
	return p.applied(ctx, q, id, StatusInProgress, providerCallID, providerControlID, now, StatusInitiating)
}

func (p *PostgresStore) MarkAICompleted(ctx context.Context, id string, now time.Time) (bool, error) {
	const q = `
UPDATE call_sessions
SET status = $2, updated_at = $3
WHERE id = $1 AND status IN ($4, $5)
`
	return p.applied(ctx, q, id, StatusAICompleted, now, StatusInitiating, StatusInProgress)
}

func (p *PostgresStore) MarkCompleted(ctx context.Context, id string, endedAt time.Time, durationSeconds int, now time.Time) (bool, error) {
	const q = `
UPDATE call_sessions
SET status = $2,
    ended_at = COALESCE(ended_at, $3),
    duration_seconds = CASE WHEN ended_at IS NULL THEN $4 ELSE duration_seconds END,
    updated_at = $5
WHERE id = $1 AND status IN ($6, $7, $8)
`
	return p.applied(ctx, q, id, StatusCompleted, endedAt, durationSeconds, now,
		StatusInitiating, StatusInProgress, StatusAICompleted)
}

func (p *PostgresStore) MarkFailed(ctx context.Context, id string, now time.Time) (bool, error) {
	const q = `
UPDATE call_sessions
SET status = $2, updated_at = $3
WHERE id = $1 AND status IN ($4, $5, $6)
`
	return p.applied(ctx, q, id, StatusFailed, now,
		StatusInitiating, StatusInProgress, StatusAICompleted)
}

func (p *PostgresStore) SetRecordingRef(ctx context.Context, id, ref string, now time.Time) error {
	return p.setField(ctx, `UPDATE call_sessions SET recording_ref = $2, updated_at = $3 WHERE id = $1`, id, ref, now)
}

func (p *PostgresStore) SetTranscript(ctx context.Context, id, transcript string, now time.Time) error {
	return p.setField(ctx, `UPDATE call_sessions SET transcript = $2, updated_at = $3 WHERE id = $1`, id, transcript, now)
}

func (p *PostgresStore) SetInsights(ctx context.Context, id, insights string, now time.Time) error {
	return p.setField(ctx, `UPDATE call_sessions SET insights = $2, updated_at = $3 WHERE id = $1`, id, insights, now)
}

func (p *PostgresStore) setField(ctx context.Context, q, id, value string, now time.Time) error {
	res, err := p.db.ExecContext(ctx, q, id, value, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// applied runs a conditional UPDATE and distinguishes "row missing" from
// "row present but transition skipped".
func (p *PostgresStore) applied(ctx context.Context, q string, id string, args ...any) (bool, error) {
	res, err := p.db.ExecContext(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	const existsQ = `SELECT 1 FROM call_sessions WHERE id = $1`
	var one int
	if err := p.db.QueryRowContext(ctx, existsQ, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanOne(row *sql.Row) (CallSession, error) {
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}
	return s, nil
}

func scanSession(r rowScanner) (CallSession, error) {
	var s CallSession
	err := r.Scan(
		&s.ID,
		&s.OwnerID,
		&s.PhoneNumber,
		&s.AssistantID,
		&s.AssistantName,
		&s.Status,
		&s.ProviderCallID,
		&s.ProviderControlID,
		&s.StartedAt,
		&s.EndedAt,
		&s.DurationSeconds,
		&s.RecordingRef,
		&s.Transcript,
		&s.Insights,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}
