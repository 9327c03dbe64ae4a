// Package dashboard fetches batches of application logs and folds them into
// the performance, security, statistics and overview views.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"applogs/internal/analytics"
	"applogs/internal/config"
	"applogs/internal/logsapi"
	"applogs/internal/models"
	"applogs/internal/monitoring"
)

// ErrInvalidRequest wraps parameter validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// criticalFilter is the pseudo operation that selects the critical endpoint.
const criticalFilter = "CRITICAL"

// Service runs the fetch-and-aggregate pipeline for every view.
type Service struct {
	src     Source
	cfg     config.AnalyticsConfig
	loc     *time.Location
	archive Archive
	now     func() time.Time
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// Option customises a Service.
type Option func(*Service)

// WithArchive offers every successfully fetched batch to a.
func WithArchive(a Archive) Option {
	return func(s *Service) {
		s.archive = a
	}
}

// WithClock overrides the time source used to anchor bucket windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service reading from src.
func NewService(src Source, cfg config.AnalyticsConfig, opts ...Option) (*Service, error) {
	if src == nil {
		return nil, fmt.Errorf("dashboard source is nil")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	def := config.DefaultConfig().Analytics
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.SlowThresholdMs <= 0 {
		cfg.SlowThresholdMs = def.SlowThresholdMs
	}
	if cfg.DefaultPeriod == "" {
		cfg.DefaultPeriod = def.DefaultPeriod
	}
	if cfg.SecurityPeriod == "" {
		cfg.SecurityPeriod = def.SecurityPeriod
	}
	if cfg.StatisticsRange == "" {
		cfg.StatisticsRange = def.StatisticsRange
	}
	if cfg.SlowOperationsSize <= 0 {
		cfg.SlowOperationsSize = def.SlowOperationsSize
	}
	if cfg.AuthLogsSize <= 0 {
		cfg.AuthLogsSize = def.AuthLogsSize
	}
	if cfg.CriticalOpsSize <= 0 {
		cfg.CriticalOpsSize = def.CriticalOpsSize
	}
	if cfg.RecentFailuresSize <= 0 {
		cfg.RecentFailuresSize = def.RecentFailuresSize
	}

	s := &Service{
		src:    src,
		cfg:    cfg,
		loc:    loc,
		now:    time.Now,
		logger: zerolog.Nop(),
		tracer: otel.Tracer("applogs/dashboard"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PerformanceRequest selects the performance view window and slow threshold.
type PerformanceRequest struct {
	Period      string `json:"period"`
	ThresholdMs int64  `json:"thresholdMs"`
}

// PerformanceView is the result of the performance pipeline.
type PerformanceView struct {
	Period         string                       `json:"period"`
	ThresholdMs    int64                        `json:"thresholdMs"`
	Metrics        analytics.PerformanceMetrics `json:"metrics"`
	Buckets        []analytics.Bucket           `json:"buckets"`
	SlowOperations []models.LogRecord           `json:"slowOperations"`
	GeneratedAt    time.Time                    `json:"generatedAt"`
}

// Performance fetches the slow-operation page and a recent batch
// concurrently, then derives metrics and time buckets.
func (s *Service) Performance(ctx context.Context, auth models.AuthContext, req PerformanceRequest) (*PerformanceView, error) {
	window, err := s.window(req.Period, s.cfg.DefaultPeriod)
	if err != nil {
		return nil, err
	}
	threshold := req.ThresholdMs
	if threshold < 0 {
		return nil, fmt.Errorf("%w: threshold must not be negative", ErrInvalidRequest)
	}
	if threshold == 0 {
		threshold = s.cfg.SlowThresholdMs
	}

	ctx, span := s.start(ctx, "performance", attribute.String("period", window.String()), attribute.Int64("threshold_ms", threshold))
	defer span.End()

	var slow, batch models.Page
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.src.SlowOperations(gctx, auth, threshold, 0, s.cfg.SlowOperationsSize)
		if err != nil {
			return fmt.Errorf("slow operations: %w", err)
		}
		slow = p
		return nil
	})
	g.Go(func() error {
		p, err := s.batch(gctx, auth)
		if err != nil {
			return err
		}
		batch = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, "performance", err)
	}

	start := time.Now()
	now := s.now()
	view := &PerformanceView{
		Period:         window.String(),
		ThresholdMs:    threshold,
		Metrics:        analytics.DerivePerformance(batch.Content, slow.TotalElements),
		Buckets:        analytics.BuildBuckets(batch.Content, window, now, s.loc),
		SlowOperations: nonNil(slow.Content),
		GeneratedAt:    now.UTC(),
	}
	s.observe("performance", batch.Content, window, now, start)
	s.offer(batch.Content)
	return view, nil
}

// SecurityRequest selects the security view window.
type SecurityRequest struct {
	Period string `json:"period"`
}

// SecurityView is the result of the security pipeline.
type SecurityView struct {
	Period             string                         `json:"period"`
	Metrics            analytics.SecurityMetrics      `json:"metrics"`
	IPActivity         []analytics.IPStats            `json:"ipActivity"`
	Trends             []analytics.SecurityTrendPoint `json:"trends"`
	AuthenticationLogs []models.LogRecord             `json:"authenticationLogs"`
	CriticalOperations []models.LogRecord             `json:"criticalOperations"`
	GeneratedAt        time.Time                      `json:"generatedAt"`
}

// Security fetches authentication logs, critical operations and a recent
// batch concurrently, then derives the audit metrics and trends.
func (s *Service) Security(ctx context.Context, auth models.AuthContext, req SecurityRequest) (*SecurityView, error) {
	window, err := s.window(req.Period, s.cfg.SecurityPeriod)
	if err != nil {
		return nil, err
	}

	ctx, span := s.start(ctx, "security", attribute.String("period", window.String()))
	defer span.End()

	var authLogs, critical, batch models.Page
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.src.AuthenticationLogs(gctx, auth, 0, s.cfg.AuthLogsSize)
		if err != nil {
			return fmt.Errorf("authentication logs: %w", err)
		}
		authLogs = p
		return nil
	})
	g.Go(func() error {
		p, err := s.src.CriticalOperations(gctx, auth, 0, s.cfg.CriticalOpsSize)
		if err != nil {
			return fmt.Errorf("critical operations: %w", err)
		}
		critical = p
		return nil
	})
	g.Go(func() error {
		p, err := s.batch(gctx, auth)
		if err != nil {
			return err
		}
		batch = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, "security", err)
	}

	start := time.Now()
	now := s.now()
	view := &SecurityView{
		Period:             window.String(),
		Metrics:            analytics.DeriveSecurity(authLogs.Content, critical.Content, batch.Content),
		IPActivity:         analytics.IPActivity(batch.Content),
		Trends:             analytics.SecurityTrends(batch.Content, window, now, s.loc),
		AuthenticationLogs: nonNil(authLogs.Content),
		CriticalOperations: nonNil(critical.Content),
		GeneratedAt:        now.UTC(),
	}
	s.observe("security", batch.Content, window, now, start)
	s.offer(batch.Content)
	return view, nil
}

// StatisticsRequest selects the daily activity range.
type StatisticsRequest struct {
	Range string `json:"range"`
}

// StatisticsView is the result of the statistics pipeline.
type StatisticsView struct {
	Range             string                    `json:"range"`
	Status            analytics.StatusBreakdown `json:"status"`
	TopOperations     []models.CountEntry       `json:"topOperations"`
	TopUsers          []models.CountEntry       `json:"topUsers"`
	HTTPMethods       []models.CountEntry       `json:"httpMethods"`
	DailyActivity     []analytics.ActivityPoint `json:"dailyActivity"`
	UpstreamAvailable bool                      `json:"upstreamAvailable"`
	GeneratedAt       time.Time                 `json:"generatedAt"`
}

// Statistics combines upstream statistics with values derived from a recent
// batch. An upstream statistics failure is tolerated: the local values are
// used instead.
func (s *Service) Statistics(ctx context.Context, auth models.AuthContext, req StatisticsRequest) (*StatisticsView, error) {
	window, err := s.window(req.Range, s.cfg.StatisticsRange)
	if err != nil {
		return nil, err
	}

	ctx, span := s.start(ctx, "statistics", attribute.String("range", window.String()))
	defer span.End()

	var (
		upstream   models.Statistics
		upstreamOK bool
		batch      models.Page
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := s.src.Statistics(gctx, auth)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("upstream statistics unavailable, using local values")
			}
			return nil
		}
		upstream, upstreamOK = st, true
		return nil
	})
	g.Go(func() error {
		p, err := s.batch(gctx, auth)
		if err != nil {
			return err
		}
		batch = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, "statistics", err)
	}

	start := time.Now()
	now := s.now()
	local := analytics.DeriveStatistics(batch.Content)
	view := &StatisticsView{
		Range:             window.String(),
		Status:            local.Status,
		TopOperations:     local.TopOperations,
		TopUsers:          local.TopUsers,
		HTTPMethods:       []models.CountEntry{},
		DailyActivity:     analytics.DailyActivity(batch.Content, window, now, s.loc),
		UpstreamAvailable: upstreamOK,
		GeneratedAt:       now.UTC(),
	}
	if upstreamOK {
		mergeUpstream(view, upstream)
	}
	s.observe("statistics", batch.Content, window, now, start)
	s.offer(batch.Content)
	return view, nil
}

// mergeUpstream prefers non-empty upstream values over local ones.
// Status.Total stays the size of the local batch; the upstream total
// covers all history and has no matching warning or info counts.
func mergeUpstream(view *StatisticsView, st models.Statistics) {
	if st.SuccessfulOperations > 0 {
		view.Status.Success = int(st.SuccessfulOperations)
	}
	if st.FailedOperations > 0 {
		view.Status.Failure = int(st.FailedOperations)
	}
	if len(st.OperationBreakdown) > 0 {
		view.TopOperations = topEntries(st.OperationBreakdown, "UNKNOWN")
	}
	if len(st.UserActivity) > 0 {
		view.TopUsers = topEntries(st.UserActivity, "anonymous")
	}
	if len(st.HTTPMethodBreakdown) > 0 {
		view.HTTPMethods = topEntries(st.HTTPMethodBreakdown, "UNKNOWN")
	}
}

func topEntries(entries []models.CountEntry, blank string) []models.CountEntry {
	n := len(entries)
	if n > 10 {
		n = 10
	}
	out := make([]models.CountEntry, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i]
		if out[i].Key == "" {
			out[i].Key = blank
		}
	}
	return out
}

// Overview is the main dashboard payload.
type Overview struct {
	Summary        models.DashboardSummary `json:"summary"`
	Rates          analytics.Rates         `json:"rates"`
	RecentFailures []models.LogRecord      `json:"recentFailures"`
	GeneratedAt    time.Time               `json:"generatedAt"`
}

// Overview fetches the dashboard summary and the newest failures.
func (s *Service) Overview(ctx context.Context, auth models.AuthContext) (*Overview, error) {
	ctx, span := s.start(ctx, "overview")
	defer span.End()

	var (
		summary  models.DashboardSummary
		failures models.Page
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.src.Dashboard(gctx, auth)
		if err != nil {
			return fmt.Errorf("dashboard summary: %w", err)
		}
		summary = d
		return nil
	})
	g.Go(func() error {
		p, err := s.src.RecentFailures(gctx, auth, 0, s.cfg.RecentFailuresSize)
		if err != nil {
			return fmt.Errorf("recent failures: %w", err)
		}
		failures = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, "overview", err)
	}

	return &Overview{
		Summary:        summary,
		Rates:          analytics.SummaryRates(summary),
		RecentFailures: nonNil(failures.Content),
		GeneratedAt:    s.now().UTC(),
	}, nil
}

// Logs returns one page of the log viewer. The CRITICAL operation filter is
// served by the critical endpoint.
func (s *Service) Logs(ctx context.Context, auth models.AuthContext, q logsapi.LogQuery) (models.Page, error) {
	if q.Page < 0 || q.Size < 0 {
		return models.Page{}, fmt.Errorf("%w: page and size must not be negative", ErrInvalidRequest)
	}
	if strings.EqualFold(strings.TrimSpace(q.Operation), criticalFilter) {
		size := q.Size
		if size == 0 {
			size = s.cfg.CriticalOpsSize
		}
		p, err := s.src.CriticalOperations(ctx, auth, q.Page, size)
		if err != nil {
			return models.Page{}, fmt.Errorf("critical operations: %w", err)
		}
		return p, nil
	}
	p, err := s.src.ListLogs(ctx, auth, q)
	if err != nil {
		return models.Page{}, fmt.Errorf("list logs: %w", err)
	}
	return p, nil
}

// Log returns one record.
func (s *Service) Log(ctx context.Context, auth models.AuthContext, id int64) (models.LogRecord, error) {
	if id <= 0 {
		return models.LogRecord{}, fmt.Errorf("%w: id must be positive", ErrInvalidRequest)
	}
	rec, err := s.src.GetLog(ctx, auth, id)
	if err != nil {
		return models.LogRecord{}, fmt.Errorf("get log %d: %w", id, err)
	}
	return rec, nil
}

// Trace returns the records sharing a correlation id.
func (s *Service) Trace(ctx context.Context, auth models.AuthContext, correlationID string) ([]models.LogRecord, error) {
	if strings.TrimSpace(correlationID) == "" {
		return nil, fmt.Errorf("%w: correlation id is required", ErrInvalidRequest)
	}
	recs, err := s.src.TraceByCorrelationID(ctx, auth, correlationID)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", correlationID, err)
	}
	return recs, nil
}

func (s *Service) window(raw, fallback string) (analytics.Window, error) {
	if strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	w, err := analytics.ParseWindow(raw)
	if err != nil {
		return analytics.Window{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return w, nil
}

// batch fetches the newest records that feed every view.
func (s *Service) batch(ctx context.Context, auth models.AuthContext) (models.Page, error) {
	p, err := s.src.ListLogs(ctx, auth, logsapi.LogQuery{
		Page:    0,
		Size:    s.cfg.BatchSize,
		SortBy:  "timestamp",
		SortDir: "desc",
	})
	if err != nil {
		return models.Page{}, fmt.Errorf("recent logs: %w", err)
	}
	return p, nil
}

func (s *Service) start(ctx context.Context, view string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("view", view))
	return s.tracer.Start(ctx, "dashboard."+view, trace.WithAttributes(attrs...))
}

func (s *Service) fail(span trace.Span, view string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("fetch %s data: %w", view, err)
}

// observe records aggregation timing and how many records fell outside the buckets.
func (s *Service) observe(view string, records []models.LogRecord, window analytics.Window, now time.Time, start time.Time) {
	monitoring.AggregationDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
	monitoring.RecordsAggregated.WithLabelValues(view).Add(float64(len(records)))

	invalid, outside := countSkipped(records, analytics.NewTimeline(window, now, s.loc))
	if invalid > 0 {
		monitoring.RecordsSkipped.WithLabelValues("invalid_timestamp").Add(float64(invalid))
	}
	if outside > 0 {
		monitoring.RecordsSkipped.WithLabelValues("out_of_window").Add(float64(outside))
	}
	s.logger.Debug().
		Str("view", view).
		Int("records", len(records)).
		Int("invalid_timestamp", invalid).
		Int("out_of_window", outside).
		Msg("aggregated")
}

func countSkipped(records []models.LogRecord, tl *analytics.Timeline) (invalid, outside int) {
	for _, rec := range records {
		if !rec.Timestamp.Valid {
			invalid++
			continue
		}
		if _, ok := tl.Index(rec.Timestamp.Time); !ok {
			outside++
		}
	}
	return invalid, outside
}

func (s *Service) offer(records []models.LogRecord) {
	if s.archive == nil || len(records) == 0 {
		return
	}
	s.archive.Offer(records)
}

func nonNil(records []models.LogRecord) []models.LogRecord {
	if records == nil {
		return []models.LogRecord{}
	}
	return records
}
