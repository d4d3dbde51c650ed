package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is idempotent; it runs on every start of the api binary.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                  BIGSERIAL PRIMARY KEY,
	full_name           TEXT NOT NULL,
	role                TEXT NOT NULL CHECK (role IN ('teacher', 'student')),
	email               TEXT UNIQUE,
	student_external_id TEXT UNIQUE,
	password_hash       TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
	id         BIGSERIAL PRIMARY KEY,
	owner_id   BIGINT NOT NULL CONSTRAINT sessions_owner_id_fkey REFERENCES users(id),
	label      TEXT NOT NULL CHECK (label <> ''),
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	CONSTRAINT sessions_expiry_after_creation CHECK (expires_at > created_at)
);

CREATE INDEX IF NOT EXISTS idx_sessions_owner_active ON sessions(owner_id, active, created_at DESC);

CREATE TABLE IF NOT EXISTS attendance_records (
	id         UUID PRIMARY KEY,
	session_id BIGINT NOT NULL CONSTRAINT attendance_records_session_id_fkey REFERENCES sessions(id),
	student_id BIGINT NOT NULL CONSTRAINT attendance_records_student_id_fkey REFERENCES users(id),
	scanned_at TIMESTAMPTZ NOT NULL,
	status     TEXT NOT NULL DEFAULT 'present',
	CONSTRAINT attendance_records_session_student_key UNIQUE (session_id, student_id)
);

CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_id, scanned_at DESC);

CREATE TABLE IF NOT EXISTS scan_attempts (
	id           UUID PRIMARY KEY,
	session_id   BIGINT,
	student_id   BIGINT NOT NULL,
	payload      TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	attempted_at TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the tables the service needs.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
