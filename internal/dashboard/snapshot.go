package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"applogs/internal/analytics"
	"applogs/internal/logsapi"
	"applogs/internal/models"
)

// SnapshotSource serves the Source queries from an in-memory set of records,
// such as rows read back from the ClickHouse archive. Filters mirror the
// API's repository queries.
type SnapshotSource struct {
	records []models.LogRecord
}

// NewSnapshotSource copies records, newest first.
func NewSnapshotSource(records []models.LogRecord) *SnapshotSource {
	cp := append([]models.LogRecord(nil), records...)
	sort.SliceStable(cp, func(i, j int) bool {
		return newer(cp[i], cp[j])
	})
	return &SnapshotSource{records: cp}
}

func newer(a, b models.LogRecord) bool {
	if a.Timestamp.Valid != b.Timestamp.Valid {
		return a.Timestamp.Valid
	}
	return a.Timestamp.Time.After(b.Timestamp.Time)
}

func (s *SnapshotSource) filter(keep func(models.LogRecord) bool) []models.LogRecord {
	out := make([]models.LogRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func paginate(records []models.LogRecord, page, size int) models.Page {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	total := len(records)
	p := models.Page{
		Content:       []models.LogRecord{},
		TotalElements: int64(total),
		TotalPages:    (total + size - 1) / size,
		Size:          size,
		Number:        page,
	}
	from := page * size
	if from >= total {
		return p
	}
	to := from + size
	if to > total {
		to = total
	}
	p.Content = append(p.Content, records[from:to]...)
	return p
}

// ListLogs applies the exact-match filters of q. Sorting is always newest first.
func (s *SnapshotSource) ListLogs(_ context.Context, _ models.AuthContext, q logsapi.LogQuery) (models.Page, error) {
	match := func(want, got string) bool {
		return want == "" || strings.EqualFold(want, got)
	}
	out := s.filter(func(r models.LogRecord) bool {
		return match(q.Operation, r.Operation) &&
			match(q.UserID, r.UserID) &&
			match(q.Username, r.Username) &&
			match(q.Status, string(r.Status)) &&
			match(q.HTTPMethod, r.HTTPMethod) &&
			match(q.EntityType, r.EntityType) &&
			match(q.Department, r.Department) &&
			match(q.IPAddress, r.IPAddress)
	})
	return paginate(out, q.Page, q.Size), nil
}

// Dashboard derives the summary the API would report for the snapshot.
func (s *SnapshotSource) Dashboard(ctx context.Context, auth models.AuthContext) (models.DashboardSummary, error) {
	st, _ := s.Statistics(ctx, auth)
	summary := models.DashboardSummary{Statistics: st}
	summary.HasRecentFailures = len(s.filter(models.LogRecord.Failed)) > 0
	summary.SlowOperationsCount = int64(len(s.slow(5000)))
	return summary, nil
}

// Statistics counts statuses and groups by operation, user id and HTTP method.
func (s *SnapshotSource) Statistics(_ context.Context, _ models.AuthContext) (models.Statistics, error) {
	st := models.Statistics{TotalLogs: int64(len(s.records))}
	ops := map[string]int64{}
	users := map[string]int64{}
	methods := map[string]int64{}
	for _, r := range s.records {
		switch r.Status {
		case models.StatusSuccess:
			st.SuccessfulOperations++
		case models.StatusFailure:
			st.FailedOperations++
		}
		ops[r.Operation]++
		if r.UserID != "" {
			users[r.UserID]++
		}
		methods[r.HTTPMethod]++
	}
	st.OperationBreakdown = grouped(ops)
	st.UserActivity = grouped(users)
	st.HTTPMethodBreakdown = grouped(methods)
	return st, nil
}

func grouped(counts map[string]int64) []models.CountEntry {
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
	return out
}

// RecentFailures returns failed records, newest first.
func (s *SnapshotSource) RecentFailures(_ context.Context, _ models.AuthContext, page, size int) (models.Page, error) {
	return paginate(s.filter(models.LogRecord.Failed), page, size), nil
}

// AuthenticationLogs returns login and logout records.
func (s *SnapshotSource) AuthenticationLogs(_ context.Context, _ models.AuthContext, page, size int) (models.Page, error) {
	return paginate(s.filter(func(r models.LogRecord) bool {
		return analytics.IsAuthOperation(r.Operation)
	}), page, size), nil
}

// CriticalOperations returns admin, delete and update records.
func (s *SnapshotSource) CriticalOperations(_ context.Context, _ models.AuthContext, page, size int) (models.Page, error) {
	return paginate(s.filter(func(r models.LogRecord) bool {
		return analytics.IsCriticalOperation(r.Operation)
	}), page, size), nil
}

// SlowOperations returns records slower than thresholdMs, slowest first.
func (s *SnapshotSource) SlowOperations(_ context.Context, _ models.AuthContext, thresholdMs int64, page, size int) (models.Page, error) {
	return paginate(s.slow(thresholdMs), page, size), nil
}

func (s *SnapshotSource) slow(thresholdMs int64) []models.LogRecord {
	out := s.filter(func(r models.LogRecord) bool {
		ms, ok := r.ExecutionTimeMs.Measured()
		return ok && ms > thresholdMs
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutionTimeMs.Value > out[j].ExecutionTimeMs.Value
	})
	return out
}

// TraceByCorrelationID returns the records sharing a correlation id.
func (s *SnapshotSource) TraceByCorrelationID(_ context.Context, _ models.AuthContext, correlationID string) ([]models.LogRecord, error) {
	return s.filter(func(r models.LogRecord) bool {
		return r.CorrelationID == correlationID
	}), nil
}

// GetLog returns the record with id or a not-found error.
func (s *SnapshotSource) GetLog(_ context.Context, _ models.AuthContext, id int64) (models.LogRecord, error) {
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return models.LogRecord{}, fmt.Errorf("log %d: %w", id, logsapi.ErrNotFound)
}

var _ Source = (*SnapshotSource)(nil)
