package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the outcome recorded for an application log entry
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusWarning Status = "WARNING"
	StatusInfo    Status = "INFO"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusWarning, StatusInfo:
		return true
	}
	return false
}

// ParseStatus normalises a user supplied status filter
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// LogRecord represents one entry of the application audit log
type LogRecord struct {
	ID              int64     `json:"id"`
	Timestamp       Timestamp `json:"timestamp"`
	UserID          string    `json:"userId,omitempty"`
	Username        string    `json:"username,omitempty"`
	Operation       string    `json:"operation"`
	EntityType      string    `json:"entityType,omitempty"`
	EntityID        string    `json:"entityId,omitempty"`
	Status          Status    `json:"status"`
	Message         string    `json:"message,omitempty"`
	HTTPMethod      string    `json:"httpMethod,omitempty"`
	RequestURI      string    `json:"requestUri,omitempty"`
	IPAddress       string    `json:"ipAddress,omitempty"`
	UserAgent       string    `json:"userAgent,omitempty"`
	CorrelationID   string    `json:"correlationId,omitempty"`
	RequestBody     string    `json:"requestBody,omitempty"`
	ResponseBody    string    `json:"responseBody,omitempty"`
	ResponseStatus  *int      `json:"responseStatus,omitempty"`
	ExecutionTimeMs Millis    `json:"executionTimeMs"`
	SessionID       string    `json:"sessionId,omitempty"`
	Department      string    `json:"department,omitempty"`
}

// Failed reports whether the record is a failure
func (r LogRecord) Failed() bool {
	return r.Status == StatusFailure
}

// Page is a flat page of log records
type Page struct {
	Content       []LogRecord `json:"content"`
	TotalElements int64       `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
	Size          int         `json:"size"`
	Number        int         `json:"number"`
}

// AuthContext carries the caller identity forwarded to the upstream API
type AuthContext struct {
	Token    string `json:"-"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Authenticated reports whether a bearer token is present
func (a AuthContext) Authenticated() bool {
	return strings.TrimSpace(a.Token) != ""
}

// CountEntry is a (key, count) tuple produced by upstream GROUP BY queries
type CountEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// UnmarshalJSON accepts both the upstream ["key", 3] tuple and the {"key","count"} object form
func (c *CountEntry) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err == nil {
		if len(tuple) != 2 {
			return fmt.Errorf("count tuple must have 2 elements, got %d", len(tuple))
		}
		var key *string
		if err := json.Unmarshal(tuple[0], &key); err != nil {
			return fmt.Errorf("count tuple key: %w", err)
		}
		if key != nil {
			c.Key = *key
		}
		if err := json.Unmarshal(tuple[1], &c.Count); err != nil {
			return fmt.Errorf("count tuple value: %w", err)
		}
		return nil
	}

	type plain CountEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = CountEntry(p)
	return nil
}

// Statistics is the upstream aggregate view over the whole log table
type Statistics struct {
	TotalLogs            int64        `json:"totalLogs"`
	SuccessfulOperations int64        `json:"successfulOperations"`
	FailedOperations     int64        `json:"failedOperations"`
	OperationBreakdown   []CountEntry `json:"operationBreakdown,omitempty"`
	UserActivity         []CountEntry `json:"userActivity,omitempty"`
	HTTPMethodBreakdown  []CountEntry `json:"httpMethodBreakdown,omitempty"`
}

// DashboardSummary is the payload of the upstream dashboard endpoint
type DashboardSummary struct {
	Statistics
	HasRecentFailures   bool  `json:"hasRecentFailures"`
	SlowOperationsCount int64 `json:"slowOperationsCount"`
}
