package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists events to the call_events table. The table is
// append-only; there are no update or delete paths.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

var _ Repository = (*PostgresRepo)(nil)

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, type, owner_id, session_id, provider_call_id, provider_event_type, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, string(e.Type), e.OwnerID, e.SessionID, e.ProviderCallID,
		e.ProviderEventType, e.Message, e.Metadata, e.CreatedAt)
	return err
}
