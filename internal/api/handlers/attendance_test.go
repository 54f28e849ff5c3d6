package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"rollcall-go/config"
	"rollcall-go/internal/attendance"
	"rollcall-go/internal/database"
	"rollcall-go/internal/db/repository"
	"rollcall-go/internal/extract"
	"rollcall-go/internal/leave"
	"rollcall-go/internal/matcher"
	"rollcall-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// embedStub answers every /embed call with a fixed vector.
type embedStub struct {
	vector []float64
	faces  int
}

func (s *embedStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"embedding":      s.vector,
			"faces_detected": s.faces,
		})
	}
}

type testEnv struct {
	router *gin.Engine
	repo   repository.Repository
	stub   *embedStub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	repo := repository.NewSQLiteRepository(db)

	stub := &embedStub{vector: []float64{0, 0, 0, 0}, faces: 1}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Auth:    config.AuthConfig{Enabled: false},
		Matcher: config.MatcherConfig{EnrollThreshold: 8.0, RecognizeThreshold: 15.0},
		Server:  config.ServerConfig{UploadDir: t.TempDir()},
	}

	m := matcher.New(cfg.Matcher)
	extractor := extract.NewChain(extract.NewHTTPExtractor(config.ExtractorBackend{
		Name: "stub", URL: srv.URL, Timeout: 2,
	}))
	engine := attendance.NewEngine(repo, nil)
	auditor := attendance.NewAuditor(repo)
	leaves := leave.NewService(repo)

	h := NewAPIHandler(cfg, repo, extractor, m, engine, auditor, leaves)
	router := gin.New()
	h.RegisterRoutes(router.Group("/api"))
	return &testEnv{router: router, repo: repo, stub: stub}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// enrollDirect seeds a student and embedding without the HTTP surface.
func (e *testEnv) enrollDirect(t *testing.T, rollNo, name string, vector []float64) {
	t.Helper()
	require.NoError(t, e.repo.CreateStudent(&models.Student{RollNo: rollNo, Name: name}))
	require.NoError(t, e.repo.AddEmbedding(rollNo, vector))
}

func TestMarkAttendanceRequiresActiveLecture(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/api/mark-attendance", gin.H{"image": "aGVsbG8="})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no_active_lecture")
}

func TestMarkAttendanceFacePipeline(t *testing.T) {
	env := newTestEnv(t)
	env.enrollDirect(t, "CS101", "Asha", []float64{0, 0, 0, 0})

	_, err := env.repo.ActivateLecture(3, "2026-03-02", "Databases")
	require.NoError(t, err)

	w := env.postJSON(t, "/api/mark-attendance", gin.H{"image": "aGVsbG8="})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"action":"created"`)
	assert.Contains(t, w.Body.String(), "CS101")

	records, err := env.repo.ListRecords(3, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusPresent, records[0].Status)
	assert.Equal(t, models.MethodFaceRecognition, records[0].Method)
}

func TestMarkAttendanceNoMatch(t *testing.T) {
	env := newTestEnv(t)
	env.enrollDirect(t, "CS101", "Asha", []float64{100, 100, 100, 100})

	_, err := env.repo.ActivateLecture(3, "2026-03-02", "Databases")
	require.NoError(t, err)

	w := env.postJSON(t, "/api/mark-attendance", gin.H{"image": "aGVsbG8="})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no_match")
}

func TestMarkAttendanceNoFaceDetected(t *testing.T) {
	env := newTestEnv(t)
	env.stub.faces = 0

	_, err := env.repo.ActivateLecture(3, "2026-03-02", "Databases")
	require.NoError(t, err)

	w := env.postJSON(t, "/api/mark-attendance", gin.H{"image": "aGVsbG8="})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "detection_failure")
}

func TestFaceCannotOverrideManualAbsenceOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.enrollDirect(t, "CS101", "Asha", []float64{0, 0, 0, 0})

	_, err := env.repo.ActivateLecture(3, "2026-03-02", "Databases")
	require.NoError(t, err)

	w := env.postJSON(t, "/api/mark-attendance-manual", gin.H{
		"rollNo": "CS101", "status": "Absent", "lectureNumber": 3, "date": "2026-03-02", "subject": "Databases",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.postJSON(t, "/api/mark-attendance", gin.H{"image": "aGVsbG8="})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "conflicting_manual_mark")
}

func TestCurrentLectureLifecycle(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/current-lecture", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":false`)

	w = env.postJSON(t, "/api/set-lecture", gin.H{"lectureNumber": 3, "date": "2026-03-02", "subject": "Databases"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Activating a second lecture deactivates the first.
	w = env.postJSON(t, "/api/set-lecture", gin.H{"lectureNumber": 4, "date": "2026-03-02", "subject": "Networks"})
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/current-lecture", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lectureNumber":4`)

	w = env.postJSON(t, "/api/end-lecture", nil)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/current-lecture", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `"active":false`)
}
