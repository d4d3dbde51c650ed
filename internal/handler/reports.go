package handler

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

const dateLayout = "2006-01-02"

// Export returns the attendance rows of the teacher's sessions as JSON or CSV.
func (h *Handler) Export(c *gin.Context) {
	f, err := h.filter(c)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	me, _ := auth.CurrentUser(c)
	rows, err := h.reports.Export(c.Request.Context(), me.ID, f)
	if err != nil {
		h.fail(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, gin.H{"rows": rows})
	case "csv":
		name := fmt.Sprintf("attendance-%s.csv", h.now().UTC().Format(dateLayout))
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := writeCSV(c.Writer, rows); err != nil {
			h.log.Error("write csv export", zap.Error(err))
		}
	default:
		h.badRequest(c, "format must be json or csv.")
	}
}

// Summary returns statistics over the teacher's sessions.
func (h *Handler) Summary(c *gin.Context) {
	f, err := h.filter(c)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	me, _ := auth.CurrentUser(c)
	st, err := h.reports.Summary(c.Request.Context(), me.ID, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// filter reads range, session_id, since and until. since/until override the range preset.
func (h *Handler) filter(c *gin.Context) (attendance.ExportFilter, error) {
	f, err := attendance.RangeFilter(c.Query("range"), h.now())
	if err != nil {
		return f, err
	}
	if v := c.Query("session_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, fmt.Errorf("invalid session_id %q", v)
		}
		f.SessionID = &id
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, fmt.Errorf("since must be YYYY-MM-DD")
		}
		f.Since = &t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, fmt.Errorf("until must be YYYY-MM-DD")
		}
		// inclusive day
		t = t.AddDate(0, 0, 1)
		f.Until = &t
	}
	return f, nil
}

func writeCSV(w io.Writer, rows []attendance.ExportRow) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Session", "Session Date", "Student", "Student ID", "Scanned At", "Status"})
	for _, r := range rows {
		_ = cw.Write([]string{
			r.SessionLabel,
			r.SessionDate.UTC().Format(dateLayout),
			r.StudentName,
			r.StudentExternalID,
			r.ScannedAt.UTC().Format(time.RFC3339),
			r.Status,
		})
	}
	cw.Flush()
	return cw.Error()
}
