package analytics

import (
	"time"

	"applogs/internal/models"
)

// Bucket aggregates the records of one calendar slice.
type Bucket struct {
	Label           string    `json:"label"`
	Start           time.Time `json:"start"`
	Count           int       `json:"count"`
	FailureCount    int       `json:"failureCount"`
	AvgResponseTime int64     `json:"avgResponseTime"`
	P95ResponseTime int64     `json:"p95ResponseTime"`
	Throughput      int       `json:"throughput"`
}

// BuildBuckets partitions records into the window ending at now. It always
// returns window.Units buckets, oldest first; records with an invalid or
// out-of-window timestamp are skipped.
func BuildBuckets(records []models.LogRecord, window Window, now time.Time, loc *time.Location) []Bucket {
	timeline := NewTimeline(window, now, loc)
	buckets := make([]Bucket, timeline.Len())
	samples := make([][]int64, timeline.Len())
	for i := range buckets {
		buckets[i] = Bucket{Label: timeline.Label(i), Start: timeline.Start(i)}
	}

	for _, rec := range records {
		if !rec.Timestamp.Valid {
			continue
		}
		i, ok := timeline.Index(rec.Timestamp.Time)
		if !ok {
			continue
		}
		buckets[i].Count++
		if rec.Failed() {
			buckets[i].FailureCount++
		}
		if ms, ok := rec.ExecutionTimeMs.Measured(); ok {
			samples[i] = append(samples[i], ms)
		}
	}

	for i := range buckets {
		buckets[i].Throughput = buckets[i].Count
		if len(samples[i]) == 0 {
			continue
		}
		buckets[i].AvgResponseTime = averageMillis(samples[i])
		buckets[i].P95ResponseTime = percentileMillis(samples[i], 95)
	}
	return buckets
}

// ActivityPoint is one bucket of the daily activity chart.
type ActivityPoint struct {
	Label   string    `json:"date"`
	Start   time.Time `json:"start"`
	Success int       `json:"success"`
	Failure int       `json:"failure"`
	Total   int       `json:"total"`
}

// DailyActivity counts successes and failures per bucket of window.
func DailyActivity(records []models.LogRecord, window Window, now time.Time, loc *time.Location) []ActivityPoint {
	timeline := NewTimeline(window, now, loc)
	points := make([]ActivityPoint, timeline.Len())
	for i := range points {
		points[i] = ActivityPoint{Label: timeline.Label(i), Start: timeline.Start(i)}
	}

	for _, rec := range records {
		if !rec.Timestamp.Valid {
			continue
		}
		i, ok := timeline.Index(rec.Timestamp.Time)
		if !ok {
			continue
		}
		points[i].Total++
		switch rec.Status {
		case models.StatusSuccess:
			points[i].Success++
		case models.StatusFailure:
			points[i].Failure++
		}
	}
	return points
}

// SecurityTrendPoint is one bucket of the security trend chart.
type SecurityTrendPoint struct {
	Label              string    `json:"date"`
	Start              time.Time `json:"start"`
	FailedLogins       int       `json:"failedLogins"`
	SuspiciousActivity int       `json:"suspiciousActivity"`
	CriticalOps        int       `json:"criticalOps"`
}

// SecurityTrends counts failed logins, suspicious activity and critical
// operations per bucket of window.
func SecurityTrends(records []models.LogRecord, window Window, now time.Time, loc *time.Location) []SecurityTrendPoint {
	timeline := NewTimeline(window, now, loc)
	points := make([]SecurityTrendPoint, timeline.Len())
	for i := range points {
		points[i] = SecurityTrendPoint{Label: timeline.Label(i), Start: timeline.Start(i)}
	}

	for _, rec := range records {
		if !rec.Timestamp.Valid {
			continue
		}
		i, ok := timeline.Index(rec.Timestamp.Time)
		if !ok {
			continue
		}
		if isLoginOperation(rec.Operation) && rec.Failed() {
			points[i].FailedLogins++
		}
		if rec.Failed() || mentionsError(rec.Message) {
			points[i].SuspiciousActivity++
		}
		if IsCriticalOperation(rec.Operation) {
			points[i].CriticalOps++
		}
	}
	return points
}
