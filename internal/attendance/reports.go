package attendance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"qrattend/internal/sessions"
)

// ExportRow is the read-only projection consumed by the PDF and spreadsheet exporters.
type ExportRow struct {
	SessionID         int64     `json:"-"`
	StudentID         int64     `json:"-"`
	SessionLabel      string    `json:"session_label"`
	SessionDate       time.Time `json:"session_date"`
	StudentName       string    `json:"student_name"`
	StudentExternalID string    `json:"student_external_id"`
	ScannedAt         time.Time `json:"scanned_at"`
	Status            string    `json:"status"`
}

// ExportFilter narrows reports to one session and/or a creation date window [Since, Until).
type ExportFilter struct {
	SessionID *int64
	Since     *time.Time
	Until     *time.Time
}

// Date range presets accepted by RangeFilter.
const (
	RangeAll   = "all"
	RangeWeek  = "week"
	RangeMonth = "month"
)

// RangeFilter turns a preset into a filter on session creation time.
func RangeFilter(preset string, now time.Time) (ExportFilter, error) {
	var days int
	switch preset {
	case "", RangeAll:
		return ExportFilter{}, nil
	case RangeWeek:
		days = 7
	case RangeMonth:
		days = 30
	default:
		return ExportFilter{}, fmt.Errorf("unknown date range %q", preset)
	}
	since := now.UTC().AddDate(0, 0, -days)
	return ExportFilter{Since: &since}, nil
}

// ReportStore is the persistence reports need; *Repository implements it.
type ReportStore interface {
	OwnerSessions(ctx context.Context, ownerID int64, f ExportFilter) ([]sessions.Session, error)
	ExportRows(ctx context.Context, ownerID int64, f ExportFilter) ([]ExportRow, error)
}

// DailyCount is the number of scans recorded on one UTC day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// SessionCount is the attendance of one session.
type SessionCount struct {
	SessionID int64  `json:"session_id"`
	Label     string `json:"label"`
	Attendees int    `json:"attendees"`
}

// Participation buckets students by the share of sessions they attended.
type Participation struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Stats summarises a teacher's sessions.
type Stats struct {
	TotalSessions  int            `json:"total_sessions"`
	ActiveSessions int            `json:"active_sessions"`
	UniqueStudents int            `json:"unique_students"`
	AvgAttendance  float64        `json:"avg_attendance"`
	Trend          []DailyCount   `json:"trend"`
	PerSession     []SessionCount `json:"per_session"`
	Participation  Participation  `json:"participation"`
}

// Reports serves the export projection and teacher statistics.
type Reports struct {
	store ReportStore
}

// NewReports creates a report service.
func NewReports(store ReportStore) *Reports {
	return &Reports{store: store}
}

// Export returns the attendance rows of ownerID's sessions matching f.
func (r *Reports) Export(ctx context.Context, ownerID int64, f ExportFilter) ([]ExportRow, error) {
	return r.store.ExportRows(ctx, ownerID, f)
}

// Summary computes statistics over ownerID's sessions matching f.
func (r *Reports) Summary(ctx context.Context, ownerID int64, f ExportFilter) (Stats, error) {
	list, err := r.store.OwnerSessions(ctx, ownerID, f)
	if err != nil {
		return Stats{}, err
	}
	rows, err := r.store.ExportRows(ctx, ownerID, f)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(list, rows), nil
}

// Summarize is the pure part of Summary.
func Summarize(list []sessions.Session, rows []ExportRow) Stats {
	st := Stats{
		TotalSessions: len(list),
		Trend:         []DailyCount{},
		PerSession:    make([]SessionCount, 0, len(list)),
	}
	for _, s := range list {
		if s.Active {
			st.ActiveSessions++
		}
	}

	perStudent := map[int64]int{}
	perSession := map[int64]int{}
	perDay := map[string]int{}
	for _, row := range rows {
		perStudent[row.StudentID]++
		perSession[row.SessionID]++
		perDay[row.ScannedAt.UTC().Format("2006-01-02")]++
	}
	st.UniqueStudents = len(perStudent)

	if st.TotalSessions > 0 {
		st.AvgAttendance = math.Round(float64(len(rows))/float64(st.TotalSessions)*10) / 10
	}

	for day, n := range perDay {
		st.Trend = append(st.Trend, DailyCount{Date: day, Count: n})
	}
	sort.Slice(st.Trend, func(i, j int) bool { return st.Trend[i].Date < st.Trend[j].Date })

	for _, s := range list {
		st.PerSession = append(st.PerSession, SessionCount{SessionID: s.ID, Label: s.Label, Attendees: perSession[s.ID]})
	}

	for _, n := range perStudent {
		ratio := 0.0
		if st.TotalSessions > 0 {
			ratio = float64(n) / float64(st.TotalSessions)
		}
		switch {
		case ratio >= 0.75:
			st.Participation.High++
		case ratio >= 0.4:
			st.Participation.Medium++
		default:
			st.Participation.Low++
		}
	}
	return st
}
