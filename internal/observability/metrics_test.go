package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorhub/annotator/internal/reconcile"
)

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Sync.RecordTask(reconcile.OpDelete, reconcile.StatusFailed, time.Second)
	m.Backend.RecordRequest(http.MethodDelete, http.StatusBadGateway)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `annotator_sync_tasks_total{operation="delete",status="failed"} 1`)
	assert.Contains(t, body, `annotator_backend_requests_total{method="DELETE",status_class="5xx"} 1`)
	assert.Contains(t, body, "go_goroutines")
	assert.NotNil(t, m.Registry())
}
