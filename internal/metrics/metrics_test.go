package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()
	m.ObserveJob("ok", 2*time.Second, 5)
	m.ObserveJob("error", time.Second, 0)
	m.ObserveQuery("ok", 100*time.Millisecond, 4)
	m.ObserveUpload("rejected")
	m.ObserveHTTP("GET", "/chat", 200, 10*time.Millisecond)
	m.SetQueue(models.QueueStats{Queued: 3, InFlight: 1, Dead: 2})

	if got := testutil.ToFloat64(m.JobsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok jobs = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsWrittenTotal); got != 5 {
		t.Errorf("records written = %v", got)
	}
	if got := testutil.ToFloat64(m.QueueJobs.WithLabelValues("dead")); got != 2 {
		t.Errorf("dead gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.UploadsTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected uploads = %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveJob("ok", time.Second, 1)
	m.ObserveQuery("ok", time.Second, 1)
	m.ObserveUpload("accepted")
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.SetQueue(models.QueueStats{})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveQuery("ok", time.Millisecond, 2)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "docchat_queries_total") {
		t.Errorf("metrics output missing docchat_queries_total")
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("metrics output missing Go collector")
	}
}
