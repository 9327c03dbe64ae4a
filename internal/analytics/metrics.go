package analytics

import (
	"math"
	"sort"
	"strings"

	"applogs/internal/models"
)

// Risk score weights. Tune the constants, not the formula.
const (
	RiskFailureRateWeight   = 2.0
	RiskManyFailuresBonus   = 30
	RiskManyFailuresAbove   = 5
	RiskHighVolumeBonus     = 20
	RiskHighVolumeAbove     = 20
	RiskScoreCeiling        = 100
	SuspiciousFailureRatio  = 0.3
	SuspiciousFailuresAbove = 2

	topN = 10
)

// PerformanceMetrics summarises latency, errors and throughput of a batch.
type PerformanceMetrics struct {
	TotalRequests       int     `json:"totalRequests"`
	MeasuredRequests    int     `json:"measuredRequests"`
	AverageResponseTime int64   `json:"averageResponseTime"`
	P95ResponseTime     int64   `json:"p95ResponseTime"`
	P99ResponseTime     int64   `json:"p99ResponseTime"`
	ThroughputPerMinute int64   `json:"throughputPerMinute"`
	ErrorRate           float64 `json:"errorRate"`
	SlowOperationsCount int64   `json:"slowOperationsCount"`
}

// DerivePerformance computes performance metrics over records. The slow
// operation count comes from a separate, narrower query and is passed through.
func DerivePerformance(records []models.LogRecord, slowOperationsCount int64) PerformanceMetrics {
	m := PerformanceMetrics{
		TotalRequests:       len(records),
		SlowOperationsCount: slowOperationsCount,
	}

	var (
		samples  []int64
		failures int
	)
	for _, rec := range records {
		if rec.Failed() {
			failures++
		}
		if ms, ok := rec.ExecutionTimeMs.Measured(); ok {
			samples = append(samples, ms)
		}
	}

	m.MeasuredRequests = len(samples)
	m.AverageResponseTime = averageMillis(samples)
	m.P95ResponseTime = percentileMillis(samples, 95)
	m.P99ResponseTime = percentileMillis(samples, 99)
	m.ErrorRate = round2(ratePercent(failures, len(records)))
	m.ThroughputPerMinute = throughputPerMinute(records)
	return m
}

// throughputPerMinute is len(records) over the span between the oldest and
// newest valid timestamp, with the span floored at one minute.
func throughputPerMinute(records []models.LogRecord) int64 {
	total := len(records)
	var (
		seen           int
		oldest, newest = int64(math.MaxInt64), int64(math.MinInt64)
	)
	for _, rec := range records {
		if !rec.Timestamp.Valid {
			continue
		}
		seen++
		ns := rec.Timestamp.Time.UnixNano()
		if ns < oldest {
			oldest = ns
		}
		if ns > newest {
			newest = ns
		}
	}
	if seen < 2 {
		return int64(total)
	}
	minutes := math.Max(1, float64(newest-oldest)/float64(60e9))
	return int64(math.Floor(float64(total) / minutes))
}

// RiskScore scores an IP from its request and failure counts, in [0, 100].
func RiskScore(requests, failures int) int {
	if requests <= 0 {
		return 0
	}
	failureRate := float64(failures) / float64(requests) * 100
	score := failureRate * RiskFailureRateWeight
	if failures > RiskManyFailuresAbove {
		score += RiskManyFailuresBonus
	}
	if requests > RiskHighVolumeAbove {
		score += RiskHighVolumeBonus
	}
	score = math.Floor(score)
	if score < 0 {
		return 0
	}
	if score > RiskScoreCeiling {
		return RiskScoreCeiling
	}
	return int(score)
}

// IPStats is the per-IP activity row of the security view.
type IPStats struct {
	IP          string  `json:"ip"`
	Requests    int     `json:"requests"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"successRate"`
	RiskScore   int     `json:"riskScore"`
}

// IPActivity groups records by IP address, busiest first.
func IPActivity(records []models.LogRecord) []IPStats {
	byIP := make(map[string]*IPStats)
	for _, rec := range records {
		if rec.IPAddress == "" {
			continue
		}
		s := byIP[rec.IPAddress]
		if s == nil {
			s = &IPStats{IP: rec.IPAddress}
			byIP[rec.IPAddress] = s
		}
		s.Requests++
		if rec.Failed() {
			s.Failures++
		}
	}

	out := make([]IPStats, 0, len(byIP))
	for _, s := range byIP {
		s.SuccessRate = round1(ratePercent(s.Requests-s.Failures, s.Requests))
		s.RiskScore = RiskScore(s.Requests, s.Failures)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Requests != out[j].Requests {
			return out[i].Requests > out[j].Requests
		}
		return out[i].IP < out[j].IP
	})
	return out
}

// SecurityMetrics are the headline counters of the security view.
type SecurityMetrics struct {
	TotalAuthAttempts       int `json:"totalAuthAttempts"`
	FailedAuthAttempts      int `json:"failedAuthAttempts"`
	SuspiciousIPs           int `json:"suspiciousIPs"`
	CriticalOperationsCount int `json:"criticalOperationsCount"`
	UniqueUsers             int `json:"uniqueUsers"`
	AdminOperations         int `json:"adminOperations"`
	DataAccessAttempts      int `json:"dataAccessAttempts"`
	SecurityAlerts          int `json:"securityAlerts"`
}

// DeriveSecurity computes security counters from the authentication log,
// the critical operation log and the general batch.
func DeriveSecurity(authLogs, criticalOps, allLogs []models.LogRecord) SecurityMetrics {
	var m SecurityMetrics

	users := make(map[string]struct{})
	type counts struct{ total, failed int }
	ips := make(map[string]*counts)
	for _, rec := range authLogs {
		if u := userKey(rec); u != "" {
			users[u] = struct{}{}
		}
		if IsAuthOperation(rec.Operation) {
			m.TotalAuthAttempts++
			if rec.Failed() {
				m.FailedAuthAttempts++
			}
		}
		if rec.IPAddress != "" {
			c := ips[rec.IPAddress]
			if c == nil {
				c = &counts{}
				ips[rec.IPAddress] = c
			}
			c.total++
			if rec.Failed() {
				c.failed++
			}
		}
	}
	for _, c := range ips {
		if float64(c.failed)/float64(c.total) > SuspiciousFailureRatio && c.failed > SuspiciousFailuresAbove {
			m.SuspiciousIPs++
		}
	}

	m.UniqueUsers = len(users)
	m.CriticalOperationsCount = len(criticalOps)
	for _, rec := range criticalOps {
		if IsCriticalOperation(rec.Operation) {
			m.AdminOperations++
		}
	}
	for _, rec := range allLogs {
		if isDataAccessOperation(rec.Operation) {
			m.DataAccessAttempts++
		}
	}
	m.SecurityAlerts = m.FailedAuthAttempts + m.SuspiciousIPs
	return m
}

// StatusBreakdown counts records per status.
type StatusBreakdown struct {
	Total   int `json:"totalOperations"`
	Success int `json:"successfulOperations"`
	Failure int `json:"failedOperations"`
	Warning int `json:"warningOperations"`
	Info    int `json:"infoOperations"`
}

// StatisticsSummary is the locally derived statistics view.
type StatisticsSummary struct {
	Status        StatusBreakdown     `json:"status"`
	TopOperations []models.CountEntry `json:"topOperations"`
	TopUsers      []models.CountEntry `json:"topUsers"`
}

// DeriveStatistics computes the status breakdown and the ten busiest
// operations and users.
func DeriveStatistics(records []models.LogRecord) StatisticsSummary {
	var s StatisticsSummary
	ops := make(map[string]int64)
	users := make(map[string]int64)

	s.Status.Total = len(records)
	for _, rec := range records {
		switch rec.Status {
		case models.StatusSuccess:
			s.Status.Success++
		case models.StatusFailure:
			s.Status.Failure++
		case models.StatusWarning:
			s.Status.Warning++
		case models.StatusInfo:
			s.Status.Info++
		}

		op := rec.Operation
		if op == "" {
			op = "UNKNOWN"
		}
		ops[op]++

		user := userKey(rec)
		if user == "" {
			user = "anonymous"
		}
		users[user]++
	}

	s.TopOperations = topCounts(ops, topN)
	s.TopUsers = topCounts(users, topN)
	return s
}

// Rates are the dashboard success and failure percentages.
type Rates struct {
	SuccessRate float64 `json:"successRate"`
	FailureRate float64 `json:"failureRate"`
}

// SummaryRates derives success and failure percentages, one decimal.
func SummaryRates(summary models.DashboardSummary) Rates {
	total := summary.TotalLogs
	if total <= 0 {
		return Rates{}
	}
	return Rates{
		SuccessRate: round1(float64(summary.SuccessfulOperations) / float64(total) * 100),
		FailureRate: round1(float64(summary.FailedOperations) / float64(total) * 100),
	}
}

func topCounts(counts map[string]int64, n int) []models.CountEntry {
	out := make([]models.CountEntry, 0, len(counts))
	for k, v := range counts {
		out = append(out, models.CountEntry{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func userKey(rec models.LogRecord) string {
	if rec.Username != "" {
		return rec.Username
	}
	return rec.UserID
}

// operationHas is a case-sensitive substring match; operation codes are
// upper-case on the wire.
func operationHas(op string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(op, n) {
			return true
		}
	}
	return false
}

// IsAuthOperation matches login and logout operations.
func IsAuthOperation(op string) bool { return operationHas(op, "LOGIN", "LOGOUT") }

func isLoginOperation(op string) bool { return operationHas(op, "LOGIN") }

// IsCriticalOperation matches the operations the log API reports as critical.
func IsCriticalOperation(op string) bool { return operationHas(op, "ADMIN", "DELETE", "UPDATE") }

func isDataAccessOperation(op string) bool { return operationHas(op, "VIEW", "GET") }

func mentionsError(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "error")
}
