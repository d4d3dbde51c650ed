package handler

import (
	"errors"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/sessions"
	"qrattend/internal/store"
	"qrattend/internal/users"
)

// fail maps a service error to a status, a machine code and a user-facing notice.
func (h *Handler) fail(c *gin.Context, err error) {
	status, code, notice := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code, "notice": notice})
}

func (h *Handler) badRequest(c *gin.Context, notice string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "notice": notice})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, attendance.ErrInvalidFormat):
		return http.StatusBadRequest, string(attendance.OutcomeInvalidFormat), "Invalid QR code format."
	case errors.Is(err, sessions.ErrNotFound):
		return http.StatusNotFound, string(attendance.OutcomeSessionNotFound), "Session not found."
	case errors.Is(err, attendance.ErrSessionEnded):
		return http.StatusGone, string(attendance.OutcomeSessionEnded), "This session has ended."
	case errors.Is(err, attendance.ErrSessionExpired):
		return http.StatusGone, string(attendance.OutcomeSessionExpired), "This session has expired."
	case errors.Is(err, sessions.ErrForbidden):
		return http.StatusForbidden, "forbidden", "This session belongs to another teacher."
	case errors.Is(err, sessions.ErrValidation):
		return http.StatusBadRequest, "validation", validationNotice(err, sessions.ErrValidation)
	case errors.Is(err, users.ErrValidation):
		return http.StatusBadRequest, "validation", validationNotice(err, users.ErrValidation)
	case errors.Is(err, store.ErrUnknownUser):
		return http.StatusUnauthorized, "unknown_user", "Your account no longer exists. Please log in again."
	case errors.Is(err, users.ErrConflict):
		return http.StatusConflict, "conflict", "Email or Student ID already exists."
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid credentials."
	default:
		return http.StatusInternalServerError, "internal", "Something went wrong, please try again."
	}
}

// validationNotice turns "validation failed: course name required" into
// "Course name required.".
func validationNotice(err, sentinel error) string {
	_, detail, ok := strings.Cut(err.Error(), sentinel.Error()+": ")
	detail = strings.TrimSpace(detail)
	if !ok || detail == "" {
		return "Please check your input."
	}
	r, size := utf8.DecodeRuneInString(detail)
	detail = string(unicode.ToUpper(r)) + detail[size:]
	if !strings.HasSuffix(detail, ".") {
		detail += "."
	}
	return detail
}
