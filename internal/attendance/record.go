package attendance

import "time"

// StatusPresent is the only status a scan produces.
const StatusPresent = "present"

// Record is one student's attendance in one session.
type Record struct {
	ID        string    `json:"id"`
	SessionID int64     `json:"session_id"`
	StudentID int64     `json:"student_id"`
	ScannedAt time.Time `json:"scanned_at"`
	Status    string    `json:"status"`
}

// HistoryEntry is a record joined with its session label.
type HistoryEntry struct {
	SessionID   int64     `json:"session_id"`
	CourseLabel string    `json:"course_label"`
	ScannedAt   time.Time `json:"scanned_at"`
	Status      string    `json:"status"`
}

// Attempt is the audit trail entry for a single scan, successful or not.
type Attempt struct {
	ID          string    `json:"id"`
	SessionID   *int64    `json:"session_id,omitempty"`
	StudentID   int64     `json:"student_id"`
	Payload     string    `json:"payload"`
	Outcome     Outcome   `json:"outcome"`
	AttemptedAt time.Time `json:"attempted_at"`
}
