package testutil

import (
	"context"
	"testing"
	"time"

	"applogs/internal/clickhouse"
	"applogs/internal/config"
	"applogs/internal/models"
)

// CreateTestConfig returns a configuration suitable for testing
func CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	// Use 127.0.0.1 instead of localhost to force IPv4
	cfg.ClickHouse.Addresses = []string{"127.0.0.1:9000"}
	cfg.ClickHouse.Database = "default"
	cfg.Archive.BatchSize = 100
	cfg.Archive.WorkerCount = 2
	cfg.Archive.QueueSize = 1000
	cfg.Archive.BatchTimeout = 200 * time.Millisecond
	cfg.Server.RefreshInterval = time.Hour
	cfg.Monitoring.LogFormat = "json"
	cfg.Monitoring.LogLevel = "error"
	return cfg
}

// CreateTestClickHouseClient creates a ClickHouse client for testing
// Skips the test if ClickHouse is not available
// Accepts both *testing.T and *testing.B through the testing.TB interface
func CreateTestClickHouseClient(t testing.TB) *clickhouse.Client {
	t.Helper()

	cfg := CreateTestConfig()
	client, err := clickhouse.NewClient(&cfg.ClickHouse)
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return client
}

// CreateTestLog creates a log record with default values
func CreateTestLog(id int64, ts time.Time, operation string, status models.Status, execMs int64) models.LogRecord {
	return models.LogRecord{
		ID:              id,
		Timestamp:       models.NewTimestamp(ts),
		UserID:          "user-1",
		Username:        "alice",
		Operation:       operation,
		EntityType:      "LeaveRequest",
		Status:          status,
		Message:         operation + " " + string(status),
		HTTPMethod:      "GET",
		RequestURI:      "/api/leaves",
		IPAddress:       "10.0.0.1",
		UserAgent:       "test-agent",
		CorrelationID:   "corr-1",
		ExecutionTimeMs: models.NewMillis(execMs),
		Department:      "Engineering",
	}
}

// SampleLogs returns a small mixed data set ending at now: logins, a failed
// delete, an admin update and a slow report across two users and IPs.
func SampleLogs(now time.Time) []models.LogRecord {
	logs := []models.LogRecord{
		CreateTestLog(1, now.Add(-3*time.Hour), "USER_LOGIN", models.StatusSuccess, 120),
		CreateTestLog(2, now.Add(-2*time.Hour), "USER_LOGIN", models.StatusFailure, 80),
		CreateTestLog(3, now.Add(-90*time.Minute), "DELETE_LEAVE", models.StatusFailure, 300),
		CreateTestLog(4, now.Add(-time.Hour), "ADMIN_UPDATE_POLICY", models.StatusSuccess, 450),
		CreateTestLog(5, now.Add(-30*time.Minute), "GENERATE_REPORT", models.StatusSuccess, 7200),
		CreateTestLog(6, now.Add(-10*time.Minute), "VIEW_LEAVES", models.StatusSuccess, 50),
	}
	logs[1].UserID, logs[1].Username, logs[1].IPAddress = "user-2", "bob", "10.0.0.2"
	logs[2].HTTPMethod, logs[2].CorrelationID = "DELETE", "corr-2"
	logs[3].HTTPMethod = "PUT"
	logs[4].UserID, logs[4].Username = "user-2", "bob"
	return logs
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t testing.TB, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for condition: %s", message)
		}

		<-ticker.C
	}
}

// CleanupTestData removes archived rows written by a test
func CleanupTestData(t testing.TB, client *clickhouse.Client) {
	t.Helper()

	if err := client.Exec(context.Background(), "TRUNCATE TABLE IF EXISTS "+clickhouse.LogsTable); err != nil {
		t.Logf("Cleanup warning: %v", err)
	}
}
