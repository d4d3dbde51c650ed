package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qrattend/internal/store"
)

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts u. A taken email or student id yields ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (full_name, role, email, student_external_id, password_hash)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		RETURNING id, created_at
	`, u.FullName, string(u.Role), u.Email, u.StudentExternalID, u.PasswordHash)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		if store.IsUniqueViolation(err) {
			return User{}, ErrConflict
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// FindByLogin looks a user up by email (teachers) or student id (students).
// It returns nil when nobody matches.
func (r *Repository) FindByLogin(ctx context.Context, role Role, login string) (*User, error) {
	column := "student_external_id"
	if role == RoleTeacher {
		column = "email"
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, role, COALESCE(email, ''), COALESCE(student_external_id, ''), password_hash, created_at
		FROM users WHERE `+column+` = $1 AND role = $2
	`, login, string(role))
	var u User
	var roleStr string
	if err := row.Scan(&u.ID, &u.FullName, &roleStr, &u.Email, &u.StudentExternalID, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Role = Role(roleStr)
	return &u, nil
}

// CountUsers returns the number of registered users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
