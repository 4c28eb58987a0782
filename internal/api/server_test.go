package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/reporttrack/internal/alert"
	"github.com/reporttrack/internal/auth"
	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database/dbtest"
	"github.com/reporttrack/internal/metrics"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/notify"
	"github.com/reporttrack/internal/recurrence"
	"github.com/reporttrack/internal/report"
	"github.com/reporttrack/internal/storage"
	"github.com/reporttrack/internal/tracking"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	fx       dbtest.Fixture
	admin    string
	preparer string
}

// newTestServer wires every service over an in-memory database; today is 2025-03-10.
func newTestServer(t *testing.T) *testServer {
	ctx := context.Background()
	store := dbtest.New(t)
	fx := dbtest.Seed(t, store)
	fx.Responsible.IsActive = true
	require.NoError(t, fx.Responsible.SetPassword("prep-pass"))
	require.NoError(t, store.SaveUser(ctx, fx.Responsible))

	admin := &models.User{Username: "root", Role: models.RoleAdmin, Email: "root@example.com", IsActive: true}
	require.NoError(t, admin.SetPassword("admin-pass"))
	require.NoError(t, store.CreateUser(ctx, admin))

	c := clock.Fixed(time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC))
	logger := zap.NewNop()
	m := metrics.New()
	n := notify.NewLogNotifier(logger)
	fs := afero.NewMemMapFs()
	files := storage.NewFileStore(fs, "/data", "/files")
	agg := report.NewAggregator(store, c)

	srv := NewServer(Services{
		Store:       store,
		Auth:        auth.New(store, "test-secret", time.Hour),
		Definitions: tracking.NewDefinitionService(store, recurrence.NewGenerator(store, logger, m), c, logger, 12),
		Instances:   tracking.NewInstanceService(store, files, n, c, logger),
		Alerts:      alert.NewScheduler(store, n, c, logger, m),
		AlertTypes:  alert.NewTypeManager(store, fs),
		Inbox:       alert.NewInbox(store, c),
		Aggregator:  agg,
		Digest:      report.NewDigestGenerator(agg, n, nil, logger),
		Files:       files,
		Metrics:     m,
	}, logger)

	ts := &testServer{t: t, handler: srv.Handler(), fx: fx}
	ts.admin = ts.login("root", "admin-pass")
	ts.preparer = ts.login("ana", "prep-pass")
	return ts
}

func (ts *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(username, password string) string {
	w := ts.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(ts.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(ts.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (ts *testServer) createDefinition(code string) models.ReportDefinition {
	w := ts.do(http.MethodPost, "/api/v1/definitions", ts.admin, map[string]interface{}{
		"code":           code,
		"name":           "Monthly " + code,
		"entity_id":      ts.fx.Entity.ID,
		"frequency":      "MONTHLY",
		"due_day":        10,
		"responsible_id": ts.fx.Responsible.ID,
		"supervisor_id":  ts.fx.Supervisor.ID,
	})
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	var def models.ReportDefinition
	decode(ts.t, w, &def)
	return def
}

func (ts *testServer) firstInstance(defID uint) models.ReportInstance {
	w := ts.do(http.MethodGet, fmt.Sprintf("/api/v1/instances?definition_id=%d", defID), ts.preparer, nil)
	require.Equal(ts.t, http.StatusOK, w.Code)
	var instances []models.ReportInstance
	decode(ts.t, w, &instances)
	require.NotEmpty(ts.t, instances)
	return instances[0]
}

func TestPublicEndpoints(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/v1/definitions", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		ts.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "root", "password": "nope"}).Code)

	ts.do(http.MethodGet, "/health", "", nil)
	w := ts.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `reporttrack_http_requests_total{method="GET",route="/health",status="200"}`)
}

func TestDefinitionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	def := ts.createDefinition("MON-1")
	assert.Equal(t, "MON-1", def.Code)

	w := ts.do(http.MethodPost, "/api/v1/definitions", ts.preparer, map[string]interface{}{"code": "X"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/definitions", ts.admin, map[string]interface{}{
		"code": "ANN-1", "name": "Annual", "entity_id": ts.fx.Entity.ID, "frequency": "ANNUAL",
		"responsible_id": ts.fx.Responsible.ID, "supervisor_id": ts.fx.Supervisor.ID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/definitions?frequency=monthly", ts.preparer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var defs []models.ReportDefinition
	decode(t, w, &defs)
	assert.Len(t, defs, 1)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/definitions/999", ts.admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/definitions/abc", ts.admin, nil).Code)

	w = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/definitions/%d/generate?from=2024-01-01&to=2024-12-31", def.ID), ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var gen struct {
		Created int `json:"created"`
	}
	decode(t, w, &gen)
	assert.Equal(t, 12, gen.Created)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, fmt.Sprintf("/api/v1/definitions/%d", def.ID), ts.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, fmt.Sprintf("/api/v1/definitions/%d", def.ID), ts.admin, nil).Code)
}

func TestInstanceSubmissionFlow(t *testing.T) {
	ts := newTestServer(t)
	def := ts.createDefinition("MON-2")
	inst := ts.firstInstance(def.ID)
	assert.Equal(t, "2025-02", inst.Period)

	w := ts.do(http.MethodPost, "/api/v1/instances", ts.admin, map[string]interface{}{"definition_id": def.ID, "period": "2025-02"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = ts.do(http.MethodPost, "/api/v1/instances", ts.admin, map[string]interface{}{"definition_id": def.ID, "period": "Feb 2025"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Multipart upload.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "feb.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.WriteField("notes", "filed"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/instances/%d/submit", inst.ID), &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ts.preparer)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var submitted models.ReportInstance
	decode(t, rec, &submitted)
	assert.Equal(t, models.StatusSubmitted, submitted.Status)
	assert.Equal(t, "filed", submitted.Notes)
	assert.True(t, strings.HasPrefix(submitted.ReportURL, "/files/900123456/"))

	file := ts.do(http.MethodGet, submitted.ReportURL, ts.preparer, nil)
	assert.Equal(t, http.StatusOK, file.Code)
	assert.Equal(t, "%PDF-1.4", file.Body.String())

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, fmt.Sprintf("/api/v1/instances/%d/approve", inst.ID), ts.preparer, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, fmt.Sprintf("/api/v1/instances/%d/approve", inst.ID), ts.admin, nil).Code)

	w = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/instances/%d/submit-link", inst.ID), ts.preparer,
		map[string]string{"url": "https://portal.example.com/r/1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/instances/%d/changes", inst.ID), ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var changes []models.ChangeLog
	decode(t, w, &changes)
	assert.NotEmpty(t, changes)

	w = ts.do(http.MethodGet, "/api/v1/instances?status=approved", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var approved []models.ReportInstance
	decode(t, w, &approved)
	require.Len(t, approved, 1)
	assert.Equal(t, inst.ID, approved[0].ID)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/instances?status=lost", ts.admin, nil).Code)
}

func TestCalendarAndStats(t *testing.T) {
	ts := newTestServer(t)
	ts.createDefinition("MON-3")

	w := ts.do(http.MethodGet, "/api/v1/calendar?year=2025&month=3&mine=true", ts.preparer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cal struct {
		Total int                                `json:"total"`
		Days  map[string][]models.ReportInstance `json:"days"`
	}
	decode(t, w, &cal)
	assert.Equal(t, 1, cal.Total)
	assert.Contains(t, cal.Days, "2025-03-10")

	w = ts.do(http.MethodGet, "/api/v1/stats/summary?from=2025-03-01&to=2025-03-31", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary report.Summary
	decode(t, w, &summary)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Pending)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/stats/summary?from=March", ts.admin, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/stats/trend?months=3", ts.admin, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/stats/by-entity", ts.admin, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/stats/top-offenders?by=responsible", ts.admin, nil).Code)

	w = ts.do(http.MethodGet, "/api/v1/instances/export?from=2025-03-01&to=2025-06-30", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Instances")
	require.NoError(t, err)
	assert.Len(t, rows, 5) // header + 2025-02 .. 2025-05
}

func TestAlertEndpoints(t *testing.T) {
	ts := newTestServer(t)
	def := ts.createDefinition("MON-4")
	inst := ts.firstInstance(def.ID) // due today

	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/v1/alert-types/defaults", ts.admin, nil).Code)
	w := ts.do(http.MethodGet, "/api/v1/alert-types", ts.preparer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var types []models.AlertType
	decode(t, w, &types)
	require.Len(t, types, 5)

	w = ts.do(http.MethodPost, "/api/v1/alert-types", ts.admin, map[string]interface{}{"name": "Bad", "color": "red"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/alerts/manual", ts.admin, map[string]uint{"instance_id": inst.ID, "alert_type_id": types[0].ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(http.MethodGet, "/api/v1/alerts?unread=true", ts.preparer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var inbox []models.Alert
	decode(t, w, &inbox)
	require.Len(t, inbox, 1)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodPut, fmt.Sprintf("/api/v1/alerts/%d/read", inbox[0].ID), ts.preparer, nil).Code)
	w = ts.do(http.MethodGet, "/api/v1/alerts?unread=true", ts.preparer, nil)
	decode(t, w, &inbox)
	assert.Empty(t, inbox)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/v1/alerts/sweep", ts.preparer, nil).Code)
	w = ts.do(http.MethodPost, "/api/v1/alerts/sweep", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result alert.SweepResult
	decode(t, w, &result)
	assert.Equal(t, "2025-03-10", result.Day)

	w = ts.do(http.MethodGet, "/api/v1/alert-types/export", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Overdue"`)
}
