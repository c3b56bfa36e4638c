package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordNotification("daily_digest", nil)
	m.RecordNotification("daily_digest", errors.New("down"))
	m.RecordNotification("daily_digest", nil)
	m.RecordCacheOperation(true)
	m.RecordCacheOperation(false)
	m.RecordCacheOperation(true)
	m.RecordCacheOperation(true)
	m.ObserveJob("weekly-archive", time.Millisecond, nil)
	m.SetRegisteredJobs(7)

	body := scrape(t, m)
	assert.Contains(t, body, `notifications_total{kind="daily_digest",result="ok"} 2`)
	assert.Contains(t, body, `notifications_total{kind="daily_digest",result="error"} 1`)
	assert.Contains(t, body, `lesson_cache_hit_ratio 0.75`)
	assert.Contains(t, body, `scheduler_job_runs_total{job="weekly-archive",result="ok"} 1`)
	assert.Contains(t, body, `scheduler_registered_jobs 7`)
}

func TestMetricsServicePortalAndImports(t *testing.T) {
	m := NewMetricsService()
	m.ObservePortalRequest("login", 200, 30*time.Millisecond)
	m.RecordImport("portal", "found")

	body := scrape(t, m)
	assert.Contains(t, body, `portal_request_duration_seconds_count{operation="login",status="200"} 1`)
	assert.Contains(t, body, `timetable_imports_total{source="portal",status="found"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordNotification("x", nil)
	m.ObserveJob("x", 0, nil)
	m.ObservePortalRequest("probe", 0, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
