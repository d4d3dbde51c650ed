package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/queue"
	"qrattend/internal/sessions"
	"qrattend/internal/store"
	"qrattend/internal/users"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeUsers struct {
	registered []users.Registration
	err        error
}

func (f *fakeUsers) Register(_ context.Context, reg users.Registration) (users.User, error) {
	if f.err != nil {
		return users.User{}, f.err
	}
	f.registered = append(f.registered, reg)
	return users.User{ID: 10, FullName: reg.FullName, Role: reg.Role}, nil
}

func (f *fakeUsers) Authenticate(_ context.Context, role users.Role, login, password string) (users.User, error) {
	if login == "teacher@school.com" && password == "teacher123" && role == users.RoleTeacher {
		return users.User{ID: 1, FullName: "Prof. Smith", Role: users.RoleTeacher, Email: login}, nil
	}
	return users.User{}, users.ErrInvalidCredentials
}

type fakeSessions struct {
	ended   []int64
	endErr  error
	created sessions.Created
}

func (f *fakeSessions) Create(_ context.Context, ownerID int64, label string, minutes int) (sessions.Created, error) {
	if strings.TrimSpace(label) == "" {
		return sessions.Created{}, fmt.Errorf("%w: course name required", sessions.ErrValidation)
	}
	f.created = sessions.Created{
		Session: sessions.Session{ID: 42, OwnerID: ownerID, Label: label, CreatedAt: t0, ExpiresAt: t0.Add(time.Duration(minutes) * time.Minute), Active: true},
		Payload: sessions.EncodePayload(42),
	}
	return f.created, nil
}

func (f *fakeSessions) ListActive(_ context.Context, ownerID int64) ([]sessions.Summary, error) {
	return []sessions.Summary{{Session: sessions.Session{ID: 42, OwnerID: ownerID, Active: true}, AttendeeCount: 3}}, nil
}

func (f *fakeSessions) End(_ context.Context, _, sessionID int64) error {
	if f.endErr != nil {
		return f.endErr
	}
	f.ended = append(f.ended, sessionID)
	return nil
}

func (f *fakeSessions) QR(_ context.Context, _, sessionID int64) ([]byte, error) {
	if sessionID != 42 {
		return nil, sessions.ErrNotFound
	}
	return sessions.RenderQR(sessions.EncodePayload(sessionID), 64)
}

type fakeScanner struct {
	err     error
	student int64
	payload string
}

func (f *fakeScanner) Scan(_ context.Context, studentID int64, payload string) (attendance.Record, error) {
	f.student, f.payload = studentID, payload
	if f.err != nil {
		return attendance.Record{}, f.err
	}
	return attendance.Record{ID: "r1", SessionID: 42, StudentID: studentID, ScannedAt: t0, Status: attendance.StatusPresent}, nil
}

func (f *fakeScanner) History(_ context.Context, studentID int64) ([]attendance.HistoryEntry, error) {
	return []attendance.HistoryEntry{{SessionID: 42, CourseLabel: "Math 101", ScannedAt: t0, Status: attendance.StatusPresent}}, nil
}

type fakeReports struct {
	filter attendance.ExportFilter
}

func (f *fakeReports) Export(_ context.Context, _ int64, flt attendance.ExportFilter) ([]attendance.ExportRow, error) {
	f.filter = flt
	return []attendance.ExportRow{{
		SessionLabel: "Math 101", SessionDate: t0, StudentName: "John Doe",
		StudentExternalID: "S12345", ScannedAt: t0.Add(5 * time.Minute), Status: attendance.StatusPresent,
	}}, nil
}

func (f *fakeReports) Summary(_ context.Context, _ int64, flt attendance.ExportFilter) (attendance.Stats, error) {
	f.filter = flt
	return attendance.Stats{TotalSessions: 1}, nil
}

type fixture struct {
	router   *gin.Engine
	signer   *auth.Signer
	users    *fakeUsers
	sessions *fakeSessions
	scanner  *fakeScanner
	reports  *fakeReports
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		signer:   auth.NewSigner("test-key", "qrattend", time.Hour, 24*time.Hour),
		users:    &fakeUsers{},
		sessions: &fakeSessions{},
		scanner:  &fakeScanner{},
		reports:  &fakeReports{},
	}
	h := New(f.users, f.sessions, f.scanner, f.reports, f.signer, nil)
	h.now = func() time.Time { return t0 }
	f.router = gin.New()
	h.Routes(f.router)
	return f
}

func (f *fixture) token(t *testing.T, id, role string) string {
	t.Helper()
	pair, err := f.signer.Issue(id, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return pair.AccessToken
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

func TestLoginAndRefresh(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/auth/login", "", gin.H{"role": "teacher", "login": "teacher@school.com", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", w.Code)
	}

	w = f.do(http.MethodPost, "/v1/auth/login", "", gin.H{"role": "teacher", "login": "teacher@school.com", "password": "teacher123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body)
	}
	body := decode(t, w)
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("missing tokens in %v", body)
	}

	if w := f.do(http.MethodGet, "/v1/sessions/active", access, nil); w.Code != http.StatusOK {
		t.Errorf("access token rejected: %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/v1/sessions/active", refresh, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("refresh token accepted as access token: %d", w.Code)
	}

	w = f.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status %d", w.Code)
	}
	w = f.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": access})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("access token accepted for refresh: %d", w.Code)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/v1/auth/register", "", gin.H{"full_name": "Jane", "role": "student", "login": "S1", "password": "pw"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d", w.Code)
	}
	if len(f.users.registered) != 1 || f.users.registered[0].Role != users.RoleStudent {
		t.Errorf("unexpected registrations %+v", f.users.registered)
	}

	if w := f.do(http.MethodPost, "/v1/auth/register", "", gin.H{"full_name": "Jane"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing fields: status %d", w.Code)
	}

	f.users.err = users.ErrConflict
	w = f.do(http.MethodPost, "/v1/auth/register", "", gin.H{"full_name": "Jane", "role": "student", "login": "S1", "password": "pw"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: status %d", w.Code)
	}
}

func TestRoleGuards(t *testing.T) {
	f := newFixture()
	student := f.token(t, "2", "student")
	teacher := f.token(t, "1", "teacher")

	if w := f.do(http.MethodPost, "/v1/sessions", student, gin.H{"label": "Math", "duration_minutes": 30}); w.Code != http.StatusForbidden {
		t.Errorf("student creating session: status %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/v1/scans", teacher, gin.H{"payload": "ATTENDQR_SESSION_42"}); w.Code != http.StatusForbidden {
		t.Errorf("teacher scanning: status %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/v1/scans", "", gin.H{"payload": "ATTENDQR_SESSION_42"}); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous scan: status %d", w.Code)
	}
}

func TestCreateSession(t *testing.T) {
	f := newFixture()
	teacher := f.token(t, "1", "teacher")

	w := f.do(http.MethodPost, "/v1/sessions", teacher, gin.H{"label": "Math 101", "duration_minutes": 30})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", w.Code, w.Body)
	}
	if got := decode(t, w)["payload"]; got != "ATTENDQR_SESSION_42" {
		t.Errorf("payload = %v", got)
	}
	if f.sessions.created.Session.OwnerID != 1 {
		t.Errorf("owner = %d, want caller", f.sessions.created.Session.OwnerID)
	}

	w = f.do(http.MethodPost, "/v1/sessions", teacher, gin.H{"label": " ", "duration_minutes": 30})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty label: status %d", w.Code)
	}
	if got := decode(t, w)["notice"]; got != "Course name required." {
		t.Errorf("notice = %q", got)
	}
}

func TestEndSession(t *testing.T) {
	f := newFixture()
	teacher := f.token(t, "1", "teacher")

	if w := f.do(http.MethodPost, "/v1/sessions/42/end", teacher, nil); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if len(f.sessions.ended) != 1 || f.sessions.ended[0] != 42 {
		t.Errorf("ended %v", f.sessions.ended)
	}
	if w := f.do(http.MethodPost, "/v1/sessions/abc/end", teacher, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d", w.Code)
	}

	f.sessions.endErr = sessions.ErrForbidden
	if w := f.do(http.MethodPost, "/v1/sessions/42/end", teacher, nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign session: status %d", w.Code)
	}
	f.sessions.endErr = sessions.ErrNotFound
	if w := f.do(http.MethodPost, "/v1/sessions/7/end", teacher, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing session: status %d", w.Code)
	}
}

func TestSessionQR(t *testing.T) {
	f := newFixture()
	teacher := f.token(t, "1", "teacher")

	w := f.do(http.MethodGet, "/v1/sessions/42/qr.png", teacher, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestScan_StatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		already bool
	}{
		{"recorded", nil, http.StatusCreated, false},
		{"already marked", attendance.ErrAlreadyMarked, http.StatusOK, true},
		{"lost race", attendance.ErrConflict, http.StatusOK, true},
		{"invalid format", attendance.ErrInvalidFormat, http.StatusBadRequest, false},
		{"not found", attendance.ErrSessionNotFound, http.StatusNotFound, false},
		{"ended", attendance.ErrSessionEnded, http.StatusGone, false},
		{"expired", attendance.ErrSessionExpired, http.StatusGone, false},
		{"deleted account", fmt.Errorf("insert attendance record: %w", store.ErrUnknownUser), http.StatusUnauthorized, false},
		{"storage down", errors.New("connection refused"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.scanner.err = tc.err
			w := f.do(http.MethodPost, "/v1/scans", f.token(t, "2", "student"), gin.H{"payload": "ATTENDQR_SESSION_42"})
			if w.Code != tc.status {
				t.Fatalf("status %d, want %d (%s)", w.Code, tc.status, w.Body)
			}
			body := decode(t, w)
			if body["notice"] == nil || body["notice"] == "" {
				t.Error("missing notice")
			}
			if got, _ := body["already_marked"].(bool); got != tc.already {
				t.Errorf("already_marked = %v, want %v", got, tc.already)
			}
			if f.scanner.student != 2 {
				t.Errorf("scanner got student %d, want caller", f.scanner.student)
			}
		})
	}
}

func (f *fixture) doRaw(path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestScan_MalformedBodiesReachScanner(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"payload": 5}`, "5"},
		{`{"payload": ["ATTENDQR_SESSION_42"]}`, `["ATTENDQR_SESSION_42"]`},
		{`{}`, ""},
		{`not json`, "not json"},
		{"{\"payload\": \" ATTENDQR_SESSION_42\\n\"}", " ATTENDQR_SESSION_42\n"},
	}
	for _, tc := range cases {
		f := newFixture()
		f.scanner.err = attendance.ErrInvalidFormat
		w := f.doRaw("/v1/scans", f.token(t, "2", "student"), tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", tc.body, w.Code)
		}
		if f.scanner.payload != tc.want {
			t.Errorf("%s: scanner got %q, want %q", tc.body, f.scanner.payload, tc.want)
		}
	}
}

func TestScan_MalformedBodyIsAudited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	msgs, _ := q.Consume(ctx)
	signer := auth.NewSigner("test-key", "qrattend", time.Hour, time.Hour)
	// invalid payloads are rejected before any storage access
	rec := attendance.NewRecorder(nil, q, nil)
	h := New(&fakeUsers{}, &fakeSessions{}, rec, &fakeReports{}, signer, nil)
	r := gin.New()
	h.Routes(r)
	f := &fixture{router: r, signer: signer}

	w := f.doRaw("/v1/scans", f.token(t, "2", "student"), `{"payload": 5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if got := decode(t, w)["error"]; got != string(attendance.OutcomeInvalidFormat) {
		t.Errorf("error = %v", got)
	}

	select {
	case msg := <-msgs:
		a, err := attendance.DecodeAttempt(msg.Body)
		if err != nil {
			t.Fatalf("decode attempt: %v", err)
		}
		if a.Outcome != attendance.OutcomeInvalidFormat || a.Payload != "5" || a.StudentID != 2 {
			t.Errorf("unexpected attempt %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no scan attempt published")
	}
}

func TestValidationNotice(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		want     string
	}{
		{fmt.Errorf("%w: please fill in all fields", users.ErrValidation), users.ErrValidation, "Please fill in all fields."},
		{fmt.Errorf("create: %w: duration is too long", sessions.ErrValidation), sessions.ErrValidation, "Duration is too long."},
		{sessions.ErrValidation, sessions.ErrValidation, "Please check your input."},
	}
	for _, tc := range cases {
		if got := validationNotice(tc.err, tc.sentinel); got != tc.want {
			t.Errorf("validationNotice(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestHistory(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/v1/attendance/history", f.token(t, "2", "student"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if list, _ := decode(t, w)["history"].([]any); len(list) != 1 {
		t.Errorf("history = %v", list)
	}
}

func TestExport(t *testing.T) {
	f := newFixture()
	teacher := f.token(t, "1", "teacher")

	w := f.do(http.MethodGet, "/v1/reports/export?format=csv&session_id=42", teacher, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	want := "Session,Session Date,Student,Student ID,Scanned At,Status\n" +
		"Math 101,2026-03-02,John Doe,S12345,2026-03-02T09:05:00Z,present\n"
	if w.Body.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", w.Body, want)
	}
	if f.reports.filter.SessionID == nil || *f.reports.filter.SessionID != 42 {
		t.Errorf("session filter not applied: %+v", f.reports.filter)
	}

	if w := f.do(http.MethodGet, "/v1/reports/export?format=xml", teacher, nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown format: status %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/v1/reports/export?range=year", teacher, nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown range: status %d", w.Code)
	}
}

func TestSummary_Filters(t *testing.T) {
	f := newFixture()
	teacher := f.token(t, "1", "teacher")

	if w := f.do(http.MethodGet, "/v1/reports/summary?range=week", teacher, nil); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if f.reports.filter.Since == nil || !f.reports.filter.Since.Equal(t0.AddDate(0, 0, -7)) {
		t.Errorf("week filter since = %v", f.reports.filter.Since)
	}

	if w := f.do(http.MethodGet, "/v1/reports/summary?since=2026-03-01&until=2026-03-02", teacher, nil); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	until := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	if f.reports.filter.Until == nil || !f.reports.filter.Until.Equal(until) {
		t.Errorf("until = %v, want end of day", f.reports.filter.Until)
	}
	if w := f.do(http.MethodGet, "/v1/reports/summary?since=yesterday", teacher, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad since: status %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture()
	h := New(f.users, f.sessions, f.scanner, f.reports, f.signer, nil)
	h.AddHealthCheck("db", func(context.Context) bool { return true })
	h.AddHealthCheck("redis", func(context.Context) bool { return false })
	r := gin.New()
	h.Routes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", w.Code)
	}
	body := decode(t, w)
	if body["db"] != true || body["redis"] != false {
		t.Errorf("body %v", body)
	}
}
