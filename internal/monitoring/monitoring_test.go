package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewHealthCheck(t *testing.T) {
	hc := NewHealthCheck()
	if hc == nil {
		t.Fatal("NewHealthCheck() returned nil")
	}
	if hc.Ready() {
		t.Error("Expected ready to be false initially")
	}
}

func TestHealthCheckSetReady(t *testing.T) {
	hc := NewHealthCheck()

	hc.SetReady(true)
	if !hc.Ready() {
		t.Error("Expected ready to be true after SetReady(true)")
	}

	hc.SetReady(false)
	if hc.Ready() {
		t.Error("Expected ready to be false after SetReady(false)")
	}
}

func TestHealthCheckConcurrentAccess(t *testing.T) {
	hc := NewHealthCheck()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			hc.SetReady(i%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			hc.ReadinessHandler(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
		}()
	}
	wg.Wait()
}

func TestHealthCheckLivenessHandler(t *testing.T) {
	hc := NewHealthCheck()

	rr := httptest.NewRecorder()
	hc.LivenessHandler(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", rr.Body.String())
	}
}

func TestHealthCheckReadinessHandler(t *testing.T) {
	hc := NewHealthCheck()

	tests := []struct {
		name           string
		ready          bool
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "not ready",
			ready:          false,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "Not Ready",
		},
		{
			name:           "ready",
			ready:          true,
			expectedStatus: http.StatusOK,
			expectedBody:   "Ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc.SetReady(tt.ready)

			rr := httptest.NewRecorder()
			hc.ReadinessHandler(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if rr.Body.String() != tt.expectedBody {
				t.Errorf("Expected body '%s', got '%s'", tt.expectedBody, rr.Body.String())
			}
		})
	}
}

func TestUpstreamMetrics(t *testing.T) {
	before := testutil.ToFloat64(UpstreamErrors.WithLabelValues("statistics", "502"))
	UpstreamErrors.WithLabelValues("statistics", "502").Inc()
	after := testutil.ToFloat64(UpstreamErrors.WithLabelValues("statistics", "502"))
	if after-before != 1 {
		t.Errorf("Expected upstream error counter to grow by 1, got %v", after-before)
	}

	UpstreamRequestDuration.WithLabelValues("list").Observe(0.05)
}

func TestAggregationMetrics(t *testing.T) {
	tests := []struct {
		name   string
		metric func()
	}{
		{
			name:   "AggregationDuration with view label",
			metric: func() { AggregationDuration.WithLabelValues("performance").Observe(0.12) },
		},
		{
			name:   "RecordsAggregated with view label",
			metric: func() { RecordsAggregated.WithLabelValues("security").Add(50) },
		},
		{
			name:   "RecordsSkipped with reason label",
			metric: func() { RecordsSkipped.WithLabelValues("invalid_timestamp").Inc() },
		},
		{
			name:   "StaleResultsDropped",
			metric: func() { StaleResultsDropped.Inc() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metric()
		})
	}
}

func TestArchiveMetrics(t *testing.T) {
	ArchiveQueueSize.Set(3)
	if got := testutil.ToFloat64(ArchiveQueueSize); got != 3 {
		t.Errorf("Expected queue size 3, got %v", got)
	}
	ArchiveQueueSize.Set(0)

	for _, size := range []float64{10, 100, 1000, 10000} {
		ArchiveBatchSize.Observe(size)
	}
	ArchiveWriteDuration.Observe(0.25)
	ArchiveRows.WithLabelValues("success").Add(100)
}

func TestActiveStreamsGauge(t *testing.T) {
	start := testutil.ToFloat64(ActiveStreams)
	ActiveStreams.Inc()
	ActiveStreams.Inc()
	ActiveStreams.Dec()
	if got := testutil.ToFloat64(ActiveStreams); got != start+1 {
		t.Errorf("Expected %v active streams, got %v", start+1, got)
	}
	ActiveStreams.Dec()
}

func TestStartMetricsServer(t *testing.T) {
	srv := StartMetricsServer(0, "/metrics")
	if srv == nil {
		t.Fatal("StartMetricsServer returned nil")
	}
	defer srv.Shutdown(context.Background())
}
