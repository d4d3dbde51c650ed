package sessions

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrNotFound is returned when no session has the requested id.
	ErrNotFound = errors.New("session not found")
	// ErrForbidden is returned when the caller does not own the session.
	ErrForbidden = errors.New("session belongs to another teacher")
	// ErrValidation wraps input problems such as an empty label.
	ErrValidation = errors.New("validation failed")
)

// AllowedDurations are the durations, in minutes, offered to teachers. Any positive
// duration is accepted by Create.
var AllowedDurations = []int{15, 30, 45, 60, 90, 120}

// MaxDurationMinutes is the longest duration whose nanoseconds fit a time.Duration.
const MaxDurationMinutes = math.MaxInt64 / int64(time.Minute)

// Session is a time-bounded class session owned by a teacher.
type Session struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// IsExpired reports whether now is past the expiry. Both instants are compared in UTC.
func (s Session) IsExpired(now time.Time) bool {
	return now.UTC().After(s.ExpiresAt.UTC())
}

// Summary is a session as listed on the teacher dashboard.
type Summary struct {
	Session
	AttendeeCount int  `json:"attendee_count"`
	Expired       bool `json:"expired"`
}
