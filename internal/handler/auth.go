package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/auth"
	"qrattend/internal/users"
)

type registerRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role" binding:"required"`
	// Login is the email of a teacher or the student id of a student.
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates a teacher or student account.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Please fill in all fields.")
		return
	}
	u, err := h.users.Register(c.Request.Context(), users.Registration{
		FullName: req.FullName,
		Role:     users.Role(req.Role),
		Login:    req.Login,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	c.JSON(http.StatusCreated, gin.H{"user": u, "notice": "Registration successful! Please login."})
}

type loginRequest struct {
	Role     string `json:"role" binding:"required"`
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges credentials for a token pair.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Please fill in all fields.")
		return
	}
	u, err := h.users.Authenticate(c.Request.Context(), users.Role(req.Role), req.Login, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, strconv.FormatInt(u.ID, 10), string(u.Role), gin.H{"user": u})
}

// Refresh exchanges a refresh token for a new token pair.
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "refresh_token is required.")
		return
	}
	claims, err := h.signer.Parse(req.RefreshToken, auth.TypeRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "notice": "Please log in again."})
		return
	}
	h.issue(c, claims.Subject, claims.Role, gin.H{})
}

func (h *Handler) issue(c *gin.Context, subject, role string, body gin.H) {
	tokens, err := h.signer.Issue(subject, role)
	if err != nil {
		h.log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "notice": "token issue failed"})
		return
	}
	body["access_token"] = tokens.AccessToken
	body["refresh_token"] = tokens.RefreshToken
	body["expires_at"] = tokens.AccessExp.Unix()
	c.JSON(http.StatusOK, body)
}
