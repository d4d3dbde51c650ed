package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	FindByLogin(ctx context.Context, role Role, login string) (*User, error)
	CountUsers(ctx context.Context) (int, error)
}

// Registration is the input of Register.
type Registration struct {
	FullName string
	Role     Role
	// Login is the email of a teacher or the student id of a student.
	Login    string
	Password string
}

// Service registers and authenticates users.
type Service struct {
	store Store
	cost  int
}

// NewService creates a service. cost is the bcrypt cost; zero selects the default.
func NewService(store Store, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, cost: cost}
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	reg.FullName = strings.TrimSpace(reg.FullName)
	reg.Login = strings.TrimSpace(reg.Login)
	if reg.FullName == "" || reg.Login == "" || reg.Password == "" {
		return User{}, fmt.Errorf("%w: please fill in all fields", ErrValidation)
	}
	if !reg.Role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, reg.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{FullName: reg.FullName, Role: reg.Role, PasswordHash: string(hash)}
	if reg.Role == RoleTeacher {
		u.Email = strings.ToLower(reg.Login)
	} else {
		u.StudentExternalID = reg.Login
	}
	return s.store.CreateUser(ctx, u)
}

// Authenticate checks a login for the given role. Unknown users, wrong roles and
// wrong passwords all yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, role Role, login, password string) (User, error) {
	login = strings.TrimSpace(login)
	if role == RoleTeacher {
		login = strings.ToLower(login)
	}
	u, err := s.store.FindByLogin(ctx, role, login)
	if err != nil {
		return User{}, err
	}
	if u == nil || u.Role != role {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return *u, nil
}

// SeedDemo creates a demo teacher and student when no user exists yet.
// It reports whether anything was created.
func (s *Service) SeedDemo(ctx context.Context) (bool, error) {
	n, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	demo := []Registration{
		{FullName: "Prof. Smith", Role: RoleTeacher, Login: "teacher@school.com", Password: "teacher123"},
		{FullName: "John Doe", Role: RoleStudent, Login: "S12345", Password: "student123"},
	}
	for _, reg := range demo {
		if _, err := s.Register(ctx, reg); err != nil {
			return false, fmt.Errorf("seed %s: %w", reg.Login, err)
		}
	}
	return true, nil
}
