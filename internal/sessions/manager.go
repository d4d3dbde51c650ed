package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"qrattend/internal/metrics"
)

// Store is the persistence the manager needs; *Repository implements it.
type Store interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id int64) (*Session, error)
	ListActiveSessions(ctx context.Context, ownerID int64) ([]Summary, error)
	DeactivateSession(ctx context.Context, id int64) error
}

// Publisher hosts a rendered QR image and returns its public URL.
type Publisher interface {
	PublishQR(ctx context.Context, name string, png []byte) (string, error)
}

// Created is a freshly created session together with its scannable code.
type Created struct {
	Session   Session `json:"session"`
	Payload   string  `json:"payload"`
	QRDataURL string  `json:"qr_data_url"`
	QRURL     string  `json:"qr_url,omitempty"`
}

// Manager owns the session lifecycle: creation, listing, ending and QR rendering.
type Manager struct {
	store     Store
	log       *zap.Logger
	publisher Publisher
	now       func() time.Time
	qrSize    int
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithQRSize sets the PNG edge length.
func WithQRSize(px int) Option {
	return func(m *Manager) { m.qrSize = px }
}

// WithPublisher uploads every new QR code, e.g. to Cloudinary.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// NewManager creates a manager backed by store.
func NewManager(store Store, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		log:    log,
		now:    time.Now,
		qrSize: DefaultQRSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

// Create opens a session for ownerID lasting durationMinutes and renders its QR code.
func (m *Manager) Create(ctx context.Context, ownerID int64, label string, durationMinutes int) (Created, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Created{}, fmt.Errorf("%w: course name required", ErrValidation)
	}
	if durationMinutes <= 0 {
		return Created{}, fmt.Errorf("%w: duration must be a positive number of minutes", ErrValidation)
	}
	if int64(durationMinutes) > MaxDurationMinutes {
		return Created{}, fmt.Errorf("%w: duration is too long", ErrValidation)
	}

	now := m.now().UTC()
	s, err := m.store.CreateSession(ctx, Session{
		OwnerID:   ownerID,
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(durationMinutes) * time.Minute),
		Active:    true,
	})
	if err != nil {
		return Created{}, err
	}
	metrics.SessionsCreated.Inc()

	payload := EncodePayload(s.ID)
	png, err := RenderQR(payload, m.qrSize)
	if err != nil {
		return Created{}, fmt.Errorf("render qr for session %d: %w", s.ID, err)
	}
	out := Created{Session: s, Payload: payload, QRDataURL: DataURL(png)}

	if m.publisher != nil {
		url, err := m.publisher.PublishQR(ctx, fmt.Sprintf("session-%d", s.ID), png)
		if err != nil {
			m.log.Warn("qr publish failed", zap.Int64("session_id", s.ID), zap.Error(err))
		} else {
			out.QRURL = url
		}
	}

	m.log.Info("session created",
		zap.Int64("session_id", s.ID),
		zap.Int64("owner_id", ownerID),
		zap.Time("expires_at", s.ExpiresAt))
	return out, nil
}

// ListActive returns ownerID's sessions that have not been ended, newest first.
// Sessions whose expiry has passed are still listed and flagged as expired.
func (m *Manager) ListActive(ctx context.Context, ownerID int64) ([]Summary, error) {
	list, err := m.store.ListActiveSessions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]Summary, 0, len(list))
	for _, s := range list {
		if !s.Active || s.OwnerID != ownerID {
			continue
		}
		s.Expired = s.IsExpired(now)
		out = append(out, s)
	}
	return out, nil
}

// End marks the session as ended. Ending an ended session is a no-op.
func (m *Manager) End(ctx context.Context, callerID, sessionID int64) error {
	s, err := m.owned(ctx, callerID, sessionID)
	if err != nil {
		m.log.Warn("end session rejected",
			zap.Int64("session_id", sessionID),
			zap.Int64("caller_id", callerID),
			zap.Error(err))
		return err
	}
	if !s.Active {
		return nil
	}
	if err := m.store.DeactivateSession(ctx, sessionID); err != nil {
		return err
	}
	metrics.SessionsEnded.Inc()
	m.log.Info("session ended", zap.Int64("session_id", sessionID), zap.Int64("owner_id", callerID))
	return nil
}

// QR renders the PNG code of a session the caller owns.
func (m *Manager) QR(ctx context.Context, callerID, sessionID int64) ([]byte, error) {
	if _, err := m.owned(ctx, callerID, sessionID); err != nil {
		return nil, err
	}
	return RenderQR(EncodePayload(sessionID), m.qrSize)
}

func (m *Manager) owned(ctx context.Context, callerID, sessionID int64) (*Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	if s.OwnerID != callerID {
		return nil, ErrForbidden
	}
	return s, nil
}
