package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qrattend/internal/store"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSession inserts s and returns it with the generated id.
func (r *Repository) CreateSession(ctx context.Context, s Session) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (owner_id, label, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.OwnerID, s.Label, s.CreatedAt, s.ExpiresAt, s.Active)
	if err := row.Scan(&s.ID); err != nil {
		return Session{}, insertError(err)
	}
	return s, nil
}

func insertError(err error) error {
	if store.IsForeignKeyViolation(err) && store.ConstraintName(err) == store.FKSessionOwner {
		return fmt.Errorf("insert session: %w", store.ErrUnknownUser)
	}
	return fmt.Errorf("insert session: %w", err)
}

// GetSession returns the session with id, or nil when it does not exist.
func (r *Repository) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, label, created_at, expires_at, active
		FROM sessions WHERE id = $1
	`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Label, &s.CreatedAt, &s.ExpiresAt, &s.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return &s, nil
}

// ListActiveSessions returns the owner's active sessions, newest first, with the
// number of attendance records each one has.
func (r *Repository) ListActiveSessions(ctx context.Context, ownerID int64) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.owner_id, s.label, s.created_at, s.expires_at, s.active,
			(SELECT COUNT(*) FROM attendance_records a WHERE a.session_id = s.id)
		FROM sessions s
		WHERE s.owner_id = $1 AND s.active = TRUE
		ORDER BY s.created_at DESC, s.id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var res []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.OwnerID, &sum.Label, &sum.CreatedAt, &sum.ExpiresAt, &sum.Active, &sum.AttendeeCount); err != nil {
			return nil, err
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		sum.ExpiresAt = sum.ExpiresAt.UTC()
		res = append(res, sum)
	}
	return res, rows.Err()
}

// DeactivateSession clears the active flag. Deactivating twice is harmless.
func (r *Repository) DeactivateSession(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate session %d: %w", id, err)
	}
	return nil
}
