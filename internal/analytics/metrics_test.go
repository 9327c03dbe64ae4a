package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applogs/internal/models"
)

func TestDerivePerformanceScenario(t *testing.T) {
	records := []models.LogRecord{
		record(time.Date(2024, 1, 5, 14, 20, 0, 0, time.UTC), models.StatusFailure, 300),
		record(time.Date(2024, 1, 5, 14, 10, 0, 0, time.UTC), models.StatusSuccess, 200),
		record(time.Date(2024, 1, 5, 14, 5, 0, 0, time.UTC), models.StatusSuccess, 100),
	}

	m := DerivePerformance(records, 4)
	assert.EqualValues(t, 200, m.AverageResponseTime)
	assert.EqualValues(t, 300, m.P95ResponseTime)
	assert.EqualValues(t, 300, m.P99ResponseTime)
	assert.Equal(t, 33.33, m.ErrorRate)
	assert.EqualValues(t, 4, m.SlowOperationsCount)
	assert.Equal(t, 3, m.TotalRequests)
	assert.Equal(t, 3, m.MeasuredRequests)
	// 3 records over 15 minutes
	assert.EqualValues(t, 0, m.ThroughputPerMinute)
}

func TestDerivePerformanceEmpty(t *testing.T) {
	m := DerivePerformance(nil, 0)
	assert.Equal(t, PerformanceMetrics{}, m)
}

func TestDerivePerformanceNoMeasuredDurations(t *testing.T) {
	records := []models.LogRecord{
		record(refNow, models.StatusFailure, 0),
		record(refNow, models.StatusSuccess, 0),
	}
	m := DerivePerformance(records, 0)
	assert.Zero(t, m.AverageResponseTime)
	assert.Zero(t, m.P95ResponseTime)
	assert.Zero(t, m.P99ResponseTime)
	assert.Equal(t, 50.0, m.ErrorRate)
}

func TestThroughputPerMinute(t *testing.T) {
	tests := []struct {
		name    string
		records []models.LogRecord
		want    int64
	}{
		{name: "empty", want: 0},
		{
			name:    "single timestamped record degenerates to total",
			records: []models.LogRecord{record(refNow, models.StatusSuccess, 0)},
			want:    1,
		},
		{
			name: "unparseable timestamps degenerate to total",
			records: []models.LogRecord{
				{Timestamp: models.Timestamp{Raw: "x"}},
				{Timestamp: models.Timestamp{Raw: "y"}},
				record(refNow, models.StatusSuccess, 0),
			},
			want: 3,
		},
		{
			name: "zero span floors at one minute",
			records: []models.LogRecord{
				record(refNow, models.StatusSuccess, 0),
				record(refNow, models.StatusSuccess, 0),
				record(refNow, models.StatusSuccess, 0),
			},
			want: 3,
		},
		{
			name: "sixty records over ten minutes",
			records: func() []models.LogRecord {
				out := make([]models.LogRecord, 60)
				for i := range out {
					out[i] = record(refNow.Add(-time.Duration(i)*10*time.Second), models.StatusSuccess, 0)
				}
				out[59] = record(refNow.Add(-10*time.Minute), models.StatusSuccess, 0)
				return out
			}(),
			want: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, throughputPerMinute(tt.records))
		})
	}
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name               string
		requests, failures int
		want               int
	}{
		{name: "no requests", requests: 0, failures: 0, want: 0},
		{name: "clean", requests: 10, failures: 0, want: 0},
		{name: "low failure rate", requests: 10, failures: 1, want: 20},
		{name: "many failures bonus", requests: 100, failures: 6, want: 12 + 30 + 20},
		{name: "high volume only", requests: 21, failures: 0, want: 20},
		{name: "capped", requests: 10, failures: 10, want: 100},
		{name: "floored", requests: 3, failures: 1, want: 66},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskScore(tt.requests, tt.failures))
		})
	}
}

func TestRiskScoreBounds(t *testing.T) {
	for requests := 1; requests <= 60; requests++ {
		for failures := 0; failures <= requests; failures++ {
			score := RiskScore(requests, failures)
			require.GreaterOrEqual(t, score, 0)
			require.LessOrEqual(t, score, 100)
		}
	}
}

func TestIPActivity(t *testing.T) {
	mk := func(ip string, status models.Status) models.LogRecord {
		r := record(refNow, status, 0)
		r.IPAddress = ip
		return r
	}
	records := []models.LogRecord{
		mk("10.0.0.1", models.StatusSuccess),
		mk("10.0.0.1", models.StatusFailure),
		mk("10.0.0.1", models.StatusSuccess),
		mk("10.0.0.2", models.StatusFailure),
		mk("10.0.0.3", models.StatusSuccess),
		mk("", models.StatusFailure),
	}

	stats := IPActivity(records)
	require.Len(t, stats, 3)
	assert.Equal(t, "10.0.0.1", stats[0].IP)
	assert.Equal(t, 3, stats[0].Requests)
	assert.Equal(t, 1, stats[0].Failures)
	assert.Equal(t, 66.7, stats[0].SuccessRate)
	assert.Equal(t, 66, stats[0].RiskScore)

	assert.Equal(t, "10.0.0.2", stats[1].IP)
	assert.Equal(t, 0.0, stats[1].SuccessRate)
	assert.Equal(t, 100, stats[1].RiskScore)
	assert.Equal(t, "10.0.0.3", stats[2].IP)
}

func TestDeriveSecurity(t *testing.T) {
	auth := func(op, user, ip string, status models.Status) models.LogRecord {
		r := record(refNow, status, 0)
		r.Operation, r.Username, r.IPAddress = op, user, ip
		return r
	}
	authLogs := []models.LogRecord{
		auth("LOGIN", "alice", "1.1.1.1", models.StatusFailure),
		auth("LOGIN", "alice", "1.1.1.1", models.StatusFailure),
		auth("LOGIN", "alice", "1.1.1.1", models.StatusFailure),
		auth("LOGIN", "alice", "1.1.1.1", models.StatusSuccess),
		auth("LOGOUT", "bob", "2.2.2.2", models.StatusSuccess),
		auth("PASSWORD_RESET", "", "2.2.2.2", models.StatusFailure),
	}
	authLogs[5].UserID = "u-7"

	critical := []models.LogRecord{
		auth("DELETE_USER", "root", "", models.StatusSuccess),
		auth("ADMIN_CREDIT_LEAVES", "root", "", models.StatusSuccess),
		auth("EXPORT_REPORT", "root", "", models.StatusSuccess),
	}
	all := []models.LogRecord{
		auth("VIEW_LEAVES", "", "", models.StatusSuccess),
		auth("GET_HOLIDAYS", "", "", models.StatusSuccess),
		auth("APPLY_LEAVE", "", "", models.StatusSuccess),
	}

	m := DeriveSecurity(authLogs, critical, all)
	assert.Equal(t, 5, m.TotalAuthAttempts)
	assert.Equal(t, 3, m.FailedAuthAttempts)
	assert.Equal(t, 1, m.SuspiciousIPs)
	assert.Equal(t, 3, m.CriticalOperationsCount)
	assert.Equal(t, 3, m.UniqueUsers)
	assert.Equal(t, 2, m.AdminOperations)
	assert.Equal(t, 2, m.DataAccessAttempts)
	assert.Equal(t, 4, m.SecurityAlerts)
}

func TestOperationMatchingIsCaseSensitive(t *testing.T) {
	tests := []struct {
		op       string
		auth     bool
		critical bool
	}{
		{op: "USER_LOGIN", auth: true},
		{op: "LOGOUT", auth: true},
		{op: "user_login"},
		{op: "Login"},
		{op: "ADMIN_UPDATE_POLICY", critical: true},
		{op: "DELETE_LEAVE", critical: true},
		{op: "delete_leave"},
		{op: "admin_update_policy"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			assert.Equal(t, tt.auth, IsAuthOperation(tt.op))
			assert.Equal(t, tt.critical, IsCriticalOperation(tt.op))
		})
	}
}

func TestDeriveSecurityEmpty(t *testing.T) {
	assert.Equal(t, SecurityMetrics{}, DeriveSecurity(nil, nil, nil))
}

func TestDeriveStatistics(t *testing.T) {
	var records []models.LogRecord
	add := func(n int, op, user string, status models.Status) {
		for i := 0; i < n; i++ {
			r := record(refNow, status, 0)
			r.Operation, r.Username = op, user
			records = append(records, r)
		}
	}
	add(5, "LOGIN", "alice", models.StatusSuccess)
	add(3, "APPLY_LEAVE", "bob", models.StatusFailure)
	add(2, "", "", models.StatusWarning)
	add(1, "VIEW", "carol", models.StatusInfo)

	s := DeriveStatistics(records)
	assert.Equal(t, StatusBreakdown{Total: 11, Success: 5, Failure: 3, Warning: 2, Info: 1}, s.Status)
	require.Len(t, s.TopOperations, 4)
	assert.Equal(t, models.CountEntry{Key: "LOGIN", Count: 5}, s.TopOperations[0])
	assert.Equal(t, models.CountEntry{Key: "UNKNOWN", Count: 2}, s.TopOperations[2])
	assert.Equal(t, models.CountEntry{Key: "anonymous", Count: 2}, s.TopUsers[2])
}

func TestDeriveStatisticsTopTen(t *testing.T) {
	var records []models.LogRecord
	for i := 0; i < 15; i++ {
		r := record(refNow, models.StatusSuccess, 0)
		r.Operation = string(rune('A' + i))
		records = append(records, r)
	}
	s := DeriveStatistics(records)
	require.Len(t, s.TopOperations, 10)
	assert.Equal(t, "A", s.TopOperations[0].Key)
}

func TestSummaryRates(t *testing.T) {
	assert.Equal(t, Rates{}, SummaryRates(models.DashboardSummary{}))

	r := SummaryRates(models.DashboardSummary{Statistics: models.Statistics{
		TotalLogs: 3, SuccessfulOperations: 2, FailedOperations: 1,
	}})
	assert.Equal(t, 66.7, r.SuccessRate)
	assert.Equal(t, 33.3, r.FailureRate)
}
