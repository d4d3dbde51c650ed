package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/sessions"
)

// AttemptMessageType tags scan audit messages on the queue.
const AttemptMessageType = "scan_attempt"

const (
	maxAuditPayload = 256
	publishTimeout  = 2 * time.Second
)

// Store is the persistence the recorder needs; *Repository implements it.
type Store interface {
	GetSession(ctx context.Context, id int64) (*sessions.Session, error)
	HasRecord(ctx context.Context, sessionID, studentID int64) (bool, error)
	// InsertRecord returns ErrConflict when (session, student) already exists.
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	History(ctx context.Context, studentID int64) ([]HistoryEntry, error)
}

// Recorder validates scanned codes and records attendance.
type Recorder struct {
	store Store
	audit queue.Publisher
	log   *zap.Logger
	now   func() time.Time
}

// NewRecorder creates a recorder. audit may be nil to skip the scan audit trail.
func NewRecorder(store Store, audit queue.Publisher, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, audit: audit, log: log, now: time.Now}
}

// WithClock replaces time.Now; used by tests.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Scan records studentID as present in the session encoded by payload.
// Checks run in a fixed order and the first failing one decides the error:
// format, existence, ended, expired, duplicate.
func (r *Recorder) Scan(ctx context.Context, studentID int64, payload string) (Record, error) {
	now := r.now().UTC()
	rec, sessionID, err := r.scan(ctx, studentID, payload, now)

	outcome := OutcomeOf(err)
	metrics.ScanOutcomes.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeError {
		r.log.Error("scan failed", zap.Int64("student_id", studentID), zap.Error(err))
	}
	r.publish(ctx, Attempt{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		StudentID:   studentID,
		Payload:     truncate(payload, maxAuditPayload),
		Outcome:     outcome,
		AttemptedAt: now,
	})
	return rec, err
}

// scan also returns the parsed session id so the audit trail can reference it.
func (r *Recorder) scan(ctx context.Context, studentID int64, payload string, now time.Time) (Record, *int64, error) {
	id, err := sessions.ParsePayload(payload)
	if err != nil {
		return Record{}, nil, ErrInvalidFormat
	}

	s, err := r.store.GetSession(ctx, id)
	if err != nil {
		return Record{}, &id, err
	}
	if s == nil {
		return Record{}, &id, ErrSessionNotFound
	}
	if !s.Active {
		return Record{}, &id, ErrSessionEnded
	}
	if s.IsExpired(now) {
		return Record{}, &id, ErrSessionExpired
	}

	exists, err := r.store.HasRecord(ctx, id, studentID)
	if err != nil {
		return Record{}, &id, err
	}
	if exists {
		return Record{}, &id, ErrAlreadyMarked
	}

	rec, err := r.store.InsertRecord(ctx, Record{
		ID:        uuid.NewString(),
		SessionID: id,
		StudentID: studentID,
		ScannedAt: now,
		Status:    StatusPresent,
	})
	if err != nil {
		return Record{}, &id, err
	}
	r.log.Info("attendance recorded",
		zap.Int64("session_id", id),
		zap.Int64("student_id", studentID),
		zap.String("record_id", rec.ID))
	return rec, &id, nil
}

// History returns the student's records, most recent scan first.
func (r *Recorder) History(ctx context.Context, studentID int64) ([]HistoryEntry, error) {
	return r.store.History(ctx, studentID)
}

func (r *Recorder) publish(ctx context.Context, a Attempt) {
	if r.audit == nil {
		return
	}
	body, err := EncodeAttempt(a)
	if err != nil {
		r.log.Warn("encode scan attempt", zap.Error(err))
		return
	}
	// detached from the request: the audit entry outlives a client that hung up
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.audit.Publish(pubCtx, queue.Message{Type: AttemptMessageType, Body: body}); err != nil {
		r.log.Warn("queue publish failed", zap.String("attempt_id", a.ID), zap.Error(err))
	}
}

// EncodeAttempt serialises an attempt as a queue message body.
func EncodeAttempt(a Attempt) ([]byte, error) {
	return json.Marshal(a)
}

// DecodeAttempt parses a queue message body produced by EncodeAttempt.
func DecodeAttempt(body []byte) (Attempt, error) {
	var a Attempt
	if err := json.Unmarshal(body, &a); err != nil {
		return Attempt{}, fmt.Errorf("decode scan attempt: %w", err)
	}
	if a.ID == "" {
		return Attempt{}, errors.New("decode scan attempt: missing id")
	}
	return a, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
