package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation_WrappedPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "attendance_records_session_student_key"}
	err := fmt.Errorf("insert attendance record: %w", pgErr)

	if !IsUniqueViolation(err) {
		t.Fatal("expected wrapped 23505 to be a unique violation")
	}
	if IsForeignKeyViolation(err) {
		t.Error("23505 must not be reported as a foreign key violation")
	}
	if got := ConstraintName(err); got != "attendance_records_session_student_key" {
		t.Errorf("unexpected constraint name %q", got)
	}
}

func TestIsUniqueViolation_OtherErrors(t *testing.T) {
	if IsUniqueViolation(errors.New("connection refused")) {
		t.Error("plain error must not be a unique violation")
	}
	if IsUniqueViolation(nil) {
		t.Error("nil must not be a unique violation")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected 23503 to be a foreign key violation")
	}
}
