package dashboard

import (
	"context"

	"applogs/internal/logsapi"
	"applogs/internal/models"
)

// Source is the read side of the application log API.
type Source interface {
	ListLogs(ctx context.Context, auth models.AuthContext, q logsapi.LogQuery) (models.Page, error)
	Dashboard(ctx context.Context, auth models.AuthContext) (models.DashboardSummary, error)
	Statistics(ctx context.Context, auth models.AuthContext) (models.Statistics, error)
	RecentFailures(ctx context.Context, auth models.AuthContext, page, size int) (models.Page, error)
	AuthenticationLogs(ctx context.Context, auth models.AuthContext, page, size int) (models.Page, error)
	CriticalOperations(ctx context.Context, auth models.AuthContext, page, size int) (models.Page, error)
	SlowOperations(ctx context.Context, auth models.AuthContext, thresholdMs int64, page, size int) (models.Page, error)
	TraceByCorrelationID(ctx context.Context, auth models.AuthContext, correlationID string) ([]models.LogRecord, error)
	GetLog(ctx context.Context, auth models.AuthContext, id int64) (models.LogRecord, error)
}

// Archive receives successfully fetched batches.
type Archive interface {
	Offer(records []models.LogRecord) int
}

var _ Source = (*logsapi.Client)(nil)
