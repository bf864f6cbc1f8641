package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/airframesio/report-archiver/cmd/locks"
	"github.com/airframesio/report-archiver/cmd/pipeline"
	"github.com/airframesio/report-archiver/cmd/report"
	"github.com/airframesio/report-archiver/cmd/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubSource struct {
	mu         sync.Mutex
	categories []report.CategoryDefinition
	feedbacks  []report.Feedback
	sessions   []report.CheckSession
	deleted    [][]int64
	queries    int
}

func (s *stubSource) ListCategories(context.Context) ([]report.CategoryDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return s.categories, nil
}

func (s *stubSource) ListFeedbacks(context.Context, report.DateRange) ([]report.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return s.feedbacks, nil
}

func (s *stubSource) ListCheckSessions(context.Context, report.DateRange) ([]report.CheckSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return s.sessions, nil
}

func (s *stubSource) ExistingIDs(_ context.Context, _ report.Kind, ids []int64) ([]int64, error) {
	return ids, nil
}

func (s *stubSource) DeleteBatch(_ context.Context, _ report.Kind, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, append([]int64(nil), ids...))
	return nil
}

func (s *stubSource) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func testSessions(n int) []report.CheckSession {
	out := make([]report.CheckSession, n)
	for i := range out {
		at := time.Date(2024, 1, 2, 8, i, 0, 0, report.ReportZone)
		out[i] = report.CheckSession{
			ID:          int64(500 + i),
			SessionDate: at,
			Status:      report.StatusApproved,
			CreatedAt:   at,
			Employee:    report.Person{FirstName: "สมชาย", LastName: "ใจดี", Role: "maid"},
			Location:    report.Location{ID: 1, Name: "ห้องน้ำชาย", Building: "A", Floor: "1"},
			SlotStart:   "08:00",
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validToken(t *testing.T) string {
	return signToken(t, testSecret, jwt.MapClaims{
		"sub": "operator-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

type testServer struct {
	router *gin.Engine
	source *stubSource
	store  *storage.MemoryStore
	hub    *progressHub
}

func newTestServer(t *testing.T, src *stubSource) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	p, err := pipeline.New(src, store, locks.NewLocalLocker(), discardLogger(), pipeline.Options{})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}

	hub := newProgressHub()
	p.SetObserver(hub)

	router := newRouter(&server{
		pipeline:      p,
		verifier:      newTokenVerifier(testSecret),
		hub:           hub,
		defaultFormat: "xlsx",
		logger:        discardLogger(),
	}, nil)
	return &testServer{router: router, source: src, store: store, hub: hub}
}

func (ts *testServer) post(t *testing.T, route, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, route, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not an error document: %v (%s)", err, rec.Body.String())
	}
	return body.Error
}

func TestExportRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"Missing", func(*testing.T) string { return "" }},
		{"WrongSecret", func(t *testing.T) string {
			return signToken(t, strings.Repeat("x", 32), jwt.MapClaims{"sub": "a", "exp": time.Now().Add(time.Hour).Unix()})
		}},
		{"Expired", func(t *testing.T) string {
			return signToken(t, testSecret, jwt.MapClaims{"sub": "a", "exp": time.Now().Add(-time.Hour).Unix()})
		}},
		{"NoExpiry", func(t *testing.T) string {
			return signToken(t, testSecret, jwt.MapClaims{"sub": "a"})
		}},
		{"NoSubject", func(t *testing.T) string {
			return signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
		}},
		{"Garbage", func(*testing.T) string { return "not-a-jwt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubSource{sessions: testSessions(2)})
			rec := ts.post(t, exportRoute(report.KindWorkPerformance), tt.token(t), gin.H{
				"start": "2024-01-01", "end": "2024-01-31", "closeCycle": true,
			})

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if msg := errorBody(t, rec); msg != pipeline.UserMessage(pipeline.ErrUnauthorized) {
				t.Fatalf("unexpected error message %q", msg)
			}
			if n := ts.source.queryCount(); n != 0 {
				t.Fatalf("expected no data access, got %d queries", n)
			}
			if len(ts.store.Keys()) != 0 {
				t.Fatal("expected no archive to be written")
			}
		})
	}
}

func TestExportWorkPerformanceCSV(t *testing.T) {
	ts := newTestServer(t, &stubSource{sessions: testSessions(3)})

	rec := ts.post(t, exportRoute(report.KindWorkPerformance), validToken(t), gin.H{
		"startDate": "2024-01-01",
		"endDate":   "2024-01-31",
		"format":    "csv",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}

	rng, _ := report.RangeFromDays("2024-01-01", "2024-01-31")
	want := report.DownloadFilename(report.KindWorkPerformance.DownloadPrefix(), rng, ".csv")
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "filename*=UTF-8''"+url.PathEscape(want)) {
		t.Fatalf("Content-Disposition %q does not carry %q", disposition, want)
	}
	if rec.Header().Get("X-Invocation-Id") == "" {
		t.Fatal("expected an invocation id header")
	}
	if rec.Header().Get("X-Archive-Key") != "" {
		t.Fatal("plain export must not archive")
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a non-empty artifact")
	}
	if len(ts.store.Keys()) != 0 || len(ts.source.deleted) != 0 {
		t.Fatal("plain export must not archive or purge")
	}
}

func TestExportUsesDefaultFormat(t *testing.T) {
	ts := newTestServer(t, &stubSource{sessions: testSessions(1)})

	rec := ts.post(t, exportRoute(report.KindWorkPerformance), validToken(t), gin.H{
		"start": "2024-01-01", "end": "2024-01-31",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("expected a workbook by default, got %q", ct)
	}
}

func TestExportCloseCycleAlias(t *testing.T) {
	ts := newTestServer(t, &stubSource{sessions: testSessions(3)})

	rec := ts.post(t, exportRoute(report.KindWorkPerformance), validToken(t), gin.H{
		"startDate":      "2024-01-01",
		"endDate":        "2024-01-31",
		"format":         "csv",
		"isClosingRound": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	archiveKey := rec.Header().Get("X-Archive-Key")
	keys := ts.store.Keys()
	if len(keys) != 1 || keys[0] != archiveKey {
		t.Fatalf("expected archive %q, store holds %v", archiveKey, keys)
	}
	if len(ts.source.deleted) == 0 {
		t.Fatal("expected the exported rows to be purged")
	}
}

func TestExportRejectsLongRange(t *testing.T) {
	ts := newTestServer(t, &stubSource{sessions: testSessions(1)})

	rec := ts.post(t, exportRoute(report.KindSatisfaction), validToken(t), gin.H{
		"start": "2024-01-01", "end": "2024-08-01", "closeCycle": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := errorBody(t, rec); msg != report.MaxSpanMessage(pipeline.DefaultMaxMonths) {
		t.Fatalf("unexpected error message %q", msg)
	}
	if n := ts.source.queryCount(); n != 0 {
		t.Fatalf("expected no queries, got %d", n)
	}
}

func TestExportRejectsMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"NotJSON", "{"},
		{"MissingDates", `{"format":"csv"}`},
		{"BadDate", `{"start":"01/01/2024","end":"2024-01-31"}`},
		{"UnknownFormat", `{"start":"2024-01-01","end":"2024-01-31","format":"pdf"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubSource{})
			req := httptest.NewRequest(http.MethodPost, exportRoute(report.KindSatisfaction), strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+validToken(t))
			rec := httptest.NewRecorder()
			ts.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSatisfactionSummary(t *testing.T) {
	five, three := 5.0, 3.0
	src := &stubSource{
		categories: []report.CategoryDefinition{{ID: 1, Name: "ความสะอาด", SortKey: 1}},
		feedbacks: []report.Feedback{
			{ID: 1, CreatedAt: time.Date(2024, 1, 3, 9, 0, 0, 0, report.ReportZone), Rating: &five, Answers: report.Scores{1: 5}},
			{ID: 2, CreatedAt: time.Date(2024, 1, 4, 9, 0, 0, 0, report.ReportZone), Rating: &three, Answers: report.Scores{1: 3}},
		},
	}
	ts := newTestServer(t, src)

	req := httptest.NewRequest(http.MethodGet, "/functions/v1/satisfaction-summary?start=2024-01-01&end=2024-01-31", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary struct {
		TotalReviews int `json:"totalReviews"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if summary.TotalReviews != 2 {
		t.Fatalf("expected 2 reviews, got %d", summary.TotalReviews)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &stubSource{})
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		fallback string
	}{
		{"ASCII", "report_2024.csv", `filename="report_2024.csv"`},
		{"Thai", "รายงานความพึงพอใจ_01-มกราคม-2567.xlsx", `filename="report.xlsx"`},
		{"Quote", `a"b.csv`, `filename="report.csv"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contentDisposition(tt.filename)
			if !strings.HasPrefix(got, "attachment; ") {
				t.Fatalf("expected attachment disposition, got %q", got)
			}
			if !strings.Contains(got, tt.fallback) {
				t.Fatalf("expected %s in %q", tt.fallback, got)
			}
			if !strings.Contains(got, "filename*=UTF-8''"+url.PathEscape(tt.filename)) {
				t.Fatalf("expected encoded name in %q", got)
			}
		})
	}
}

func TestExportBodyAliases(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name string
		body exportBody
		want bool
	}{
		{"Neither", exportBody{}, false},
		{"CloseCycle", exportBody{CloseCycle: &yes}, true},
		{"IsClosingRound", exportBody{IsClosingRound: &yes}, true},
		{"CloseCycleWins", exportBody{CloseCycle: &no, IsClosingRound: &yes}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.body.closeCycle(); got != tt.want {
				t.Fatalf("closeCycle() = %v, want %v", got, tt.want)
			}
		})
	}

	rng, err := exportBody{Start: "2024-01-01T00:00:00+07:00", EndDate: "2024-01-31"}.dateRange()
	if err != nil {
		t.Fatalf("dateRange failed: %v", err)
	}
	if want := time.Date(2024, 1, 31, 23, 59, 59, 0, report.ReportZone); !rng.End.Equal(want) {
		t.Fatalf("end = %v, want %v", rng.End, want)
	}
}

func TestExportRoute(t *testing.T) {
	if got := exportRoute(report.KindWorkPerformance); got != "/functions/v1/export-work-performance" {
		t.Fatalf("unexpected route %q", got)
	}
	if got := exportRoute(report.KindSatisfaction); got != "/functions/v1/export-satisfaction" {
		t.Fatalf("unexpected route %q", got)
	}
}
