package attendance

import (
	"errors"

	"qrattend/internal/sessions"
)

// Scan rejections, in the order the recorder checks them.
var (
	ErrInvalidFormat   = errors.New("invalid QR code format")
	ErrSessionNotFound = sessions.ErrNotFound
	ErrSessionEnded    = errors.New("this session has ended")
	ErrSessionExpired  = errors.New("this session has expired")
	// ErrAlreadyMarked is informational: the student is already recorded.
	ErrAlreadyMarked = errors.New("attendance already marked for this session")
	// ErrConflict means storage rejected a duplicate that slipped past ErrAlreadyMarked.
	ErrConflict = errors.New("attendance record already exists")
)

// Outcome names a terminal scan result for metrics and the audit trail.
type Outcome string

const (
	OutcomeRecorded        Outcome = "recorded"
	OutcomeInvalidFormat   Outcome = "invalid_format"
	OutcomeSessionNotFound Outcome = "session_not_found"
	OutcomeSessionEnded    Outcome = "session_ended"
	OutcomeSessionExpired  Outcome = "session_expired"
	OutcomeAlreadyMarked   Outcome = "already_marked"
	OutcomeConflict        Outcome = "conflict"
	OutcomeError           Outcome = "error"
)

// OutcomeOf classifies the error returned by Recorder.Scan.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeRecorded
	case errors.Is(err, ErrInvalidFormat):
		return OutcomeInvalidFormat
	case errors.Is(err, ErrSessionNotFound):
		return OutcomeSessionNotFound
	case errors.Is(err, ErrSessionEnded):
		return OutcomeSessionEnded
	case errors.Is(err, ErrSessionExpired):
		return OutcomeSessionExpired
	case errors.Is(err, ErrAlreadyMarked):
		return OutcomeAlreadyMarked
	case errors.Is(err, ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
