package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/features"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/model"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/service"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/metrics"
)

type memStore struct {
	mu        sync.Mutex
	ds        patient.Dataset
	err       error
	appendErr error
}

func (s *memStore) ReadAll(context.Context) (patient.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append(patient.Dataset(nil), s.ds...), nil
}

func (s *memStore) Append(_ context.Context, r patient.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.ds = append(s.ds, r)
	return nil
}

func setupRouter(t *testing.T, mode ErrorMode) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	p := features.Default()
	rs, err := model.NewRuleScorer(p)
	require.NoError(t, err)

	store := &memStore{}
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	auditSvc := service.NewAuditService(service.NewLogAuditRepository(zap.NewNop()), m, zap.NewNop())
	t.Cleanup(auditSvc.Shutdown)

	svc := service.NewPatientService(store, p, rs, auditSvc, m, zap.NewNop())
	r := NewRouter(RouterDeps{
		Patients: NewPatientHandler(svc, mode, 1<<20),
		Metrics:  m,
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         time.Hour,
		},
		Version: "test",
		Log:     zap.NewNop(),
	})
	return r, store
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAddThenPredict(t *testing.T) {
	r, store := setupRouter(t, ErrorModeCompat)

	w := do(r, http.MethodPost, "/add", `{"Patient_ID":"P1","Date":"2024-01-01","FastingGlucose":130,"HbA1c":"7.1","Gender":"Female"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ok", decode(t, w)["status"])
	require.Len(t, store.ds, 1)

	w = do(r, http.MethodGet, "/predict/P1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.InDelta(t, 0.97, body["probability"], 1e-9)
	assert.Equal(t, float64(1), body["prediction"])
	assert.Equal(t, "Very High Risk", body["risk_category"])
}

func TestPredict_NotFound(t *testing.T) {
	for _, mode := range []ErrorMode{ErrorModeCompat, ErrorModeStrict} {
		r, _ := setupRouter(t, mode)
		w := do(r, http.MethodGet, "/predict/P404", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "patient not found", decode(t, w)["error"])
		assert.NotContains(t, w.Body.String(), "probability")
	}
}

func TestAdd_InvalidBody(t *testing.T) {
	r, _ := setupRouter(t, ErrorModeCompat)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/add", `{"Patient_ID":`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/add", `[1,2]`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/add", `null`).Code)
}

func TestAdd_ValidationByMode(t *testing.T) {
	body := `{"Date":"2024-01-01","Age":"old"}`

	r, store := setupRouter(t, ErrorModeCompat)
	w := do(r, http.MethodPost, "/add", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "Patient_ID is required")
	assert.Empty(t, store.ds)

	r, _ = setupRouter(t, ErrorModeStrict)
	w = do(r, http.MethodPost, "/add", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, decode(t, w)["fields"], 2)
}

func TestStorageFailuresByMode(t *testing.T) {
	cases := []struct {
		mode ErrorMode
		err  error
		want int
	}{
		{ErrorModeCompat, patient.ErrStorageUnavailable, http.StatusBadRequest},
		{ErrorModeStrict, patient.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{ErrorModeCompat, patient.ErrConcurrentModification, http.StatusBadRequest},
		{ErrorModeStrict, patient.ErrConcurrentModification, http.StatusConflict},
	}
	for _, tc := range cases {
		r, store := setupRouter(t, tc.mode)
		store.appendErr = tc.err

		w := do(r, http.MethodPost, "/add", `{"Patient_ID":"P1","Date":"2024-01-01"}`)
		assert.Equal(t, tc.want, w.Code, "%s %v", tc.mode, tc.err)
	}
}

func TestPredict_SchemaMismatchByMode(t *testing.T) {
	bad := patient.NewRecord(map[string]string{"Patient_ID": "P1", "Date": "d", "DietAdherence": "Sometimes"})

	r, store := setupRouter(t, ErrorModeStrict)
	store.ds = patient.Dataset{bad}
	assert.Equal(t, http.StatusUnprocessableEntity, do(r, http.MethodGet, "/predict/P1", "").Code)

	r, store = setupRouter(t, ErrorModeCompat)
	store.ds = patient.Dataset{bad}
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/predict/P1", "").Code)
}

func TestCohortTimelineExplain(t *testing.T) {
	r, _ := setupRouter(t, ErrorModeStrict)
	do(r, http.MethodPost, "/add", `{"Patient_ID":"P1","Date":"2024-02-01","HbA1c":6.0}`)
	do(r, http.MethodPost, "/add", `{"Patient_ID":"P1","Date":"2024-01-01","HbA1c":5.0}`)
	do(r, http.MethodPost, "/add", `{"Patient_ID":"P2","Date":"2024-01-01"}`)

	w := do(r, http.MethodGet, "/cohort", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cohort []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cohort))
	assert.Len(t, cohort, 2)

	w = do(r, http.MethodGet, "/patient/P1/timeline", "")
	require.Equal(t, http.StatusOK, w.Code)
	var points []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &points))
	require.Len(t, points, 2)
	assert.Equal(t, "2024-01-01", points[0]["date"])

	w = do(r, http.MethodGet, "/explain/P1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "P1", decode(t, w)["patient_id"])

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/explain/P404", "").Code)
}

func TestPredictCSV(t *testing.T) {
	r, store := setupRouter(t, ErrorModeCompat)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "patients.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("Patient_ID,Date,FastingGlucose\nA,2024-01-01,80\nB,2024-01-01,150\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict-csv", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var scored []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scored))
	require.Len(t, scored, 2)
	assert.Equal(t, float64(0), scored[0]["prediction"])
	assert.Equal(t, float64(1), scored[1]["prediction"])
	assert.Empty(t, store.ds)

	w = do(r, http.MethodPost, "/predict-csv", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCohort_UnscorableRecordReportedInline(t *testing.T) {
	r, _ := setupRouter(t, ErrorModeCompat)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/add", `{"Patient_ID":"P1","Date":"2024-01-01"}`).Code)
	require.Equal(t, http.StatusOK,
		do(r, http.MethodPost, "/add", `{"Patient_ID":"P2","Date":"2024-01-01","SmokingStatus":"Occasionally"}`).Code)

	w := do(r, http.MethodGet, "/cohort", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cohort []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cohort))
	require.Len(t, cohort, 2)

	assert.Contains(t, cohort[0], "probability")
	assert.NotContains(t, cohort[0], "error")
	assert.NotContains(t, cohort[1], "probability")
	assert.Contains(t, cohort[1]["error"], "Occasionally")

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/predict/P1", "").Code)
}

func TestPredictCSV_MixedRows(t *testing.T) {
	r, _ := setupRouter(t, ErrorModeCompat)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "patients.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("Patient_ID,Date,Age,FastingGlucose\n" +
		"A,2024-01-01,50,150\n" +
		"B,2024-01-01,unknown,150\n" +
		"C,2024-01-01,NaN,80\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict-csv", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var scored []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scored))
	require.Len(t, scored, 3)
	assert.Equal(t, float64(1), scored[0]["prediction"])
	for _, row := range scored[1:] {
		assert.NotContains(t, row, "prediction")
		assert.Contains(t, row["error"], "Age")
	}
}

func TestExport(t *testing.T) {
	r, _ := setupRouter(t, ErrorModeStrict)
	do(r, http.MethodPost, "/add", `{"Patient_ID":"P1","Date":"2024-01-01"}`)

	w := do(r, http.MethodGet, "/dataset/export?format=xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "patients.xlsx")

	w = do(r, http.MethodGet, "/dataset/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Patient_ID,Date,"))

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/dataset/export?format=json", "").Code)
}

func TestDebugData(t *testing.T) {
	r, _ := setupRouter(t, ErrorModeCompat)
	w := do(r, http.MethodPost, "/debug-data", `{"Patient_ID":"P1","Age":40,"Nickname":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.ElementsMatch(t, []any{"Nickname"}, body["extra_fields"])
	assert.Len(t, body["expected_fields"], len(patient.Columns))
	assert.Len(t, body["missing_fields"], len(patient.Columns)-2)
}

func TestMiddleware(t *testing.T) {
	r, _ := setupRouter(t, ErrorModeCompat)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/add", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
