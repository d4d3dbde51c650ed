package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qrattend/internal/auth"
	"qrattend/internal/sessions"
)

type createSessionRequest struct {
	Label           string `json:"label"`
	DurationMinutes int    `json:"duration_minutes"`
}

// CreateSession opens a session for the signed-in teacher.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid session request.")
		return
	}
	me, _ := auth.CurrentUser(c)
	created, err := h.sessions.Create(c.Request.Context(), me.ID, req.Label, req.DurationMinutes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ActiveSessions lists the teacher's sessions that have not been ended.
func (h *Handler) ActiveSessions(c *gin.Context) {
	me, _ := auth.CurrentUser(c)
	list, err := h.sessions.ListActive(c.Request.Context(), me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list, "durations": sessions.AllowedDurations})
}

// EndSession deactivates one of the teacher's sessions.
func (h *Handler) EndSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	me, _ := auth.CurrentUser(c)
	if err := h.sessions.End(c.Request.Context(), me.ID, id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": true, "notice": "Session ended."})
}

// SessionQR serves the session's QR code as PNG.
func (h *Handler) SessionQR(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	me, _ := auth.CurrentUser(c)
	png, err := h.sessions.QR(c.Request.Context(), me.ID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) sessionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "Invalid session id.")
		return 0, false
	}
	return id, true
}
