package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"qrattend/internal/sessions"
	"qrattend/internal/store"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db       *sql.DB
	sessions *sessions.Repository
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, sessions: sessions.NewRepository(db)}
}

// GetSession returns the session with id, or nil when it does not exist.
func (r *Repository) GetSession(ctx context.Context, id int64) (*sessions.Session, error) {
	return r.sessions.GetSession(ctx, id)
}

// HasRecord reports whether the student already attended the session.
func (r *Repository) HasRecord(ctx context.Context, sessionID, studentID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2
		)
	`, sessionID, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance record: %w", err)
	}
	return exists, nil
}

// InsertRecord writes a new record. The unique (session_id, student_id) constraint
// turns a concurrent duplicate into ErrConflict.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, scanned_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.SessionID, rec.StudentID, rec.ScannedAt, rec.Status)
	if err != nil {
		return Record{}, insertRecordError(err)
	}
	return rec, nil
}

func insertRecordError(err error) error {
	switch {
	case store.IsUniqueViolation(err):
		return ErrConflict
	case store.IsForeignKeyViolation(err) && store.ConstraintName(err) == store.FKRecordStudent:
		return fmt.Errorf("insert attendance record: %w", store.ErrUnknownUser)
	case store.IsForeignKeyViolation(err) && store.ConstraintName(err) == store.FKRecordSession:
		return ErrSessionNotFound
	}
	return fmt.Errorf("insert attendance record: %w", err)
}

// History returns a student's records joined with session labels, newest scan first.
func (r *Repository) History(ctx context.Context, studentID int64) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.session_id, s.label, a.scanned_at, a.status
		FROM attendance_records a
		JOIN sessions s ON s.id = a.session_id
		WHERE a.student_id = $1
		ORDER BY a.scanned_at DESC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	res := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.SessionID, &h.CourseLabel, &h.ScannedAt, &h.Status); err != nil {
			return nil, err
		}
		h.ScannedAt = h.ScannedAt.UTC()
		res = append(res, h)
	}
	return res, rows.Err()
}

// OwnerSessions lists every session of ownerID matching f, oldest first.
func (r *Repository) OwnerSessions(ctx context.Context, ownerID int64, f ExportFilter) ([]sessions.Session, error) {
	where, args := sessionFilter(ownerID, f)
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.owner_id, s.label, s.created_at, s.expires_at, s.active
		FROM sessions s
		WHERE `+where+`
		ORDER BY s.created_at, s.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list owner sessions: %w", err)
	}
	defer rows.Close()

	var res []sessions.Session
	for rows.Next() {
		var s sessions.Session
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Label, &s.CreatedAt, &s.ExpiresAt, &s.Active); err != nil {
			return nil, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
		s.ExpiresAt = s.ExpiresAt.UTC()
		res = append(res, s)
	}
	return res, rows.Err()
}

// ExportRows returns the export projection for ownerID's sessions matching f.
func (r *Repository) ExportRows(ctx context.Context, ownerID int64, f ExportFilter) ([]ExportRow, error) {
	where, args := sessionFilter(ownerID, f)
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.label, s.created_at, u.id, u.full_name,
			COALESCE(u.student_external_id, ''), a.scanned_at, a.status
		FROM attendance_records a
		JOIN sessions s ON s.id = a.session_id
		JOIN users u ON u.id = a.student_id
		WHERE `+where+`
		ORDER BY s.created_at, s.id, a.scanned_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("export attendance: %w", err)
	}
	defer rows.Close()

	res := []ExportRow{}
	for rows.Next() {
		var e ExportRow
		if err := rows.Scan(&e.SessionID, &e.SessionLabel, &e.SessionDate, &e.StudentID, &e.StudentName,
			&e.StudentExternalID, &e.ScannedAt, &e.Status); err != nil {
			return nil, err
		}
		e.SessionDate = e.SessionDate.UTC()
		e.ScannedAt = e.ScannedAt.UTC()
		res = append(res, e)
	}
	return res, rows.Err()
}

// InsertAttempt appends a scan audit row. Redelivered attempts are ignored.
func (r *Repository) InsertAttempt(ctx context.Context, a Attempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_attempts (id, session_id, student_id, payload, outcome, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.SessionID, a.StudentID, a.Payload, string(a.Outcome), a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("insert scan attempt %s: %w", a.ID, err)
	}
	return nil
}

// sessionFilter builds the WHERE clause over sessions aliased as s.
func sessionFilter(ownerID int64, f ExportFilter) (string, []any) {
	args := []any{ownerID}
	clauses := []string{"s.owner_id = $1"}
	if f.SessionID != nil {
		args = append(args, *f.SessionID)
		clauses = append(clauses, "s.id = $"+strconv.Itoa(len(args)))
	}
	if f.Since != nil {
		args = append(args, f.Since.UTC())
		clauses = append(clauses, "s.created_at >= $"+strconv.Itoa(len(args)))
	}
	if f.Until != nil {
		args = append(args, f.Until.UTC())
		clauses = append(clauses, "s.created_at < $"+strconv.Itoa(len(args)))
	}
	return strings.Join(clauses, " AND "), args
}
