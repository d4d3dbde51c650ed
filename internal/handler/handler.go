package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/sessions"
	"qrattend/internal/users"
)

// Users registers and authenticates accounts; *users.Service implements it.
type Users interface {
	Register(ctx context.Context, reg users.Registration) (users.User, error)
	Authenticate(ctx context.Context, role users.Role, login, password string) (users.User, error)
}

// Sessions is the session lifecycle; *sessions.Manager implements it.
type Sessions interface {
	Create(ctx context.Context, ownerID int64, label string, durationMinutes int) (sessions.Created, error)
	ListActive(ctx context.Context, ownerID int64) ([]sessions.Summary, error)
	End(ctx context.Context, callerID, sessionID int64) error
	QR(ctx context.Context, callerID, sessionID int64) ([]byte, error)
}

// Scanner records attendance; *attendance.Recorder implements it.
type Scanner interface {
	Scan(ctx context.Context, studentID int64, payload string) (attendance.Record, error)
	History(ctx context.Context, studentID int64) ([]attendance.HistoryEntry, error)
}

// Reports serves exports and statistics; *attendance.Reports implements it.
type Reports interface {
	Export(ctx context.Context, ownerID int64, f attendance.ExportFilter) ([]attendance.ExportRow, error)
	Summary(ctx context.Context, ownerID int64, f attendance.ExportFilter) (attendance.Stats, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler holds the HTTP endpoints of the attendance API.
type Handler struct {
	users    Users
	sessions Sessions
	scanner  Scanner
	reports  Reports
	signer   *auth.Signer
	log      *zap.Logger
	checks   map[string]HealthCheck
	now      func() time.Time
}

// New creates a handler.
func New(u Users, s Sessions, sc Scanner, r Reports, signer *auth.Signer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		users:    u,
		sessions: s,
		scanner:  sc,
		reports:  r,
		signer:   signer,
		log:      log,
		checks:   map[string]HealthCheck{},
		now:      time.Now,
	}
}

// AddHealthCheck includes a dependency in /healthz.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	authed := v1.Group("", auth.UserAuth(h.signer))

	teacher := authed.Group("", auth.RequireRole(string(users.RoleTeacher)))
	teacher.POST("/sessions", h.CreateSession)
	teacher.GET("/sessions/active", h.ActiveSessions)
	teacher.POST("/sessions/:id/end", h.EndSession)
	teacher.GET("/sessions/:id/qr.png", h.SessionQR)
	teacher.GET("/reports/export", h.Export)
	teacher.GET("/reports/summary", h.Summary)

	student := authed.Group("", auth.RequireRole(string(users.RoleStudent)))
	student.POST("/scans", h.Scan)
	student.GET("/attendance/history", h.History)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
