package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"applogs/internal/config"
	"applogs/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// LogsTable holds archived application log records.
const LogsTable = "app_logs"

// Client wraps a ClickHouse connection
type Client struct {
	conn   driver.Conn
	config *config.ClickHouseConfig
}

// NewClient creates a new ClickHouse client
func NewClient(cfg *config.ClickHouseConfig) (*Client, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Compression: &clickhouse.Compression{
			Method: compressionMethod(cfg.Compression),
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	}

	// Only configure TLS if explicitly needed
	if cfg.TLSEnabled {
		opts.TLS = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{
		conn:   conn,
		config: cfg,
	}, nil
}

func compressionMethod(name string) clickhouse.CompressionMethod {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lz4":
		return clickhouse.CompressionLZ4
	case "none", "off":
		return clickhouse.CompressionNone
	default:
		return clickhouse.CompressionZSTD
	}
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// EnsureSchema creates the archive table when it does not exist yet.
// Re-archived records collapse on (timestamp, id) during merges.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, createLogsTable); err != nil {
		return fmt.Errorf("failed to create %s table: %w", LogsTable, err)
	}
	return nil
}

const createLogsTable = `
	CREATE TABLE IF NOT EXISTS app_logs (
		id                Int64,
		timestamp         DateTime64(3, 'UTC'),
		user_id           String,
		username          LowCardinality(String),
		operation         LowCardinality(String),
		entity_type       LowCardinality(String),
		entity_id         String,
		status            LowCardinality(String),
		message           String,
		http_method       LowCardinality(String),
		request_uri       String,
		ip_address        String,
		user_agent        String,
		correlation_id    String,
		request_body      String,
		response_body     String,
		response_status   Nullable(Int32),
		execution_time_ms Nullable(Int64),
		session_id        String,
		department        LowCardinality(String),
		archived_at       DateTime64(3, 'UTC') DEFAULT now64(3)
	)
	ENGINE = ReplacingMergeTree(archived_at)
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (timestamp, id)
`

// InsertLogs inserts a batch of log records and returns how many rows were
// appended. Records without a usable timestamp cannot be placed in the
// table and are left out.
func (c *Client) InsertLogs(ctx context.Context, logs []models.LogRecord) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO app_logs (
			id, timestamp, user_id, username, operation, entity_type, entity_id,
			status, message, http_method, request_uri, ip_address, user_agent,
			correlation_id, request_body, response_body, response_status,
			execution_time_ms, session_id, department
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	appended := 0
	for _, l := range logs {
		r, ok := toRow(l)
		if !ok {
			continue
		}
		err := batch.Append(
			r.ID,
			r.Timestamp,
			r.UserID,
			r.Username,
			r.Operation,
			r.EntityType,
			r.EntityID,
			r.Status,
			r.Message,
			r.HTTPMethod,
			r.RequestURI,
			r.IPAddress,
			r.UserAgent,
			r.CorrelationID,
			r.RequestBody,
			r.ResponseBody,
			r.ResponseStatus,
			r.ExecutionTimeMs,
			r.SessionID,
			r.Department,
		)
		if err != nil {
			batch.Abort()
			return 0, fmt.Errorf("failed to append log: %w", err)
		}
		appended++
	}

	if appended == 0 {
		batch.Abort()
		return 0, nil
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return appended, nil
}

// RecentLogs returns archived records at or after since, newest first.
func (c *Client) RecentLogs(ctx context.Context, since time.Time, limit int) ([]models.LogRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := c.conn.Query(ctx, `
		SELECT
			id, timestamp, user_id, username, operation, entity_type, entity_id,
			status, message, http_method, request_uri, ip_address, user_agent,
			correlation_id, request_body, response_body, response_status,
			execution_time_ms, session_id, department
		FROM app_logs FINAL
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived logs: %w", err)
	}
	defer rows.Close()

	out := make([]models.LogRecord, 0, limit)
	for rows.Next() {
		var r row
		if err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.UserID,
			&r.Username,
			&r.Operation,
			&r.EntityType,
			&r.EntityID,
			&r.Status,
			&r.Message,
			&r.HTTPMethod,
			&r.RequestURI,
			&r.IPAddress,
			&r.UserAgent,
			&r.CorrelationID,
			&r.RequestBody,
			&r.ResponseBody,
			&r.ResponseStatus,
			&r.ExecutionTimeMs,
			&r.SessionID,
			&r.Department,
		); err != nil {
			return nil, fmt.Errorf("failed to scan archived log: %w", err)
		}
		out = append(out, r.record())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archived logs: %w", err)
	}

	return out, nil
}

// CountLogs returns the number of archived rows.
func (c *Client) CountLogs(ctx context.Context) (uint64, error) {
	var n uint64
	if err := c.conn.QueryRow(ctx, "SELECT count() FROM app_logs FINAL").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count archived logs: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes archived rows with a timestamp before cutoff.
func (c *Client) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	if err := c.conn.Exec(ctx, "ALTER TABLE app_logs DELETE WHERE timestamp < ?", cutoff.UTC()); err != nil {
		return fmt.Errorf("failed to delete archived logs: %w", err)
	}
	return nil
}

// Ping checks the connection to ClickHouse
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Exec runs a statement that returns no rows
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}

// Query executes a query and returns rows
func (c *Client) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

// QueryRow executes a query that returns a single row
func (c *Client) QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row {
	return c.conn.QueryRow(ctx, query, args...)
}
