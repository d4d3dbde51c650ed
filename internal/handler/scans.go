package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

const maxScanBody = 4 << 10

// Scan records the signed-in student for the scanned payload. Malformed bodies are
// still passed to the scanner so they are counted and audited as invalid codes.
func (h *Handler) Scan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxScanBody)
	raw, _ := c.GetRawData()
	me, _ := auth.CurrentUser(c)
	rec, err := h.scanner.Scan(c.Request.Context(), me.ID, scanPayload(raw))
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{
			"recorded":       true,
			"already_marked": false,
			"record":         rec,
			"notice":         "Attendance marked successfully!",
		})
	case errors.Is(err, attendance.ErrAlreadyMarked), errors.Is(err, attendance.ErrConflict):
		// the student is marked either way
		c.JSON(http.StatusOK, gin.H{
			"recorded":       false,
			"already_marked": true,
			"notice":         "Attendance already marked for this session.",
		})
	default:
		h.fail(c, err)
	}
}

// History lists the student's attendance, most recent first.
func (h *Handler) History(c *gin.Context) {
	me, _ := auth.CurrentUser(c)
	list, err := h.scanner.History(c.Request.Context(), me.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": list})
}

// scanPayload extracts the payload field of a JSON body. A non-string payload is
// passed on as its JSON text and a body that is not JSON as-is, so a scanner
// posting the bare code as text/plain works too.
func scanPayload(raw []byte) string {
	var req struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return string(raw)
	}
	if len(req.Payload) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(req.Payload, &s); err == nil {
		return s
	}
	return string(req.Payload)
}
