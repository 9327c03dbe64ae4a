package clickhouse

import (
	"time"

	"applogs/internal/models"
)

// row is the column layout of the app_logs table.
type row struct {
	ID              int64
	Timestamp       time.Time
	UserID          string
	Username        string
	Operation       string
	EntityType      string
	EntityID        string
	Status          string
	Message         string
	HTTPMethod      string
	RequestURI      string
	IPAddress       string
	UserAgent       string
	CorrelationID   string
	RequestBody     string
	ResponseBody    string
	ResponseStatus  *int32
	ExecutionTimeMs *int64
	SessionID       string
	Department      string
}

func toRow(l models.LogRecord) (row, bool) {
	if !l.Timestamp.Valid {
		return row{}, false
	}
	r := row{
		ID:            l.ID,
		Timestamp:     l.Timestamp.Time.UTC(),
		UserID:        l.UserID,
		Username:      l.Username,
		Operation:     l.Operation,
		EntityType:    l.EntityType,
		EntityID:      l.EntityID,
		Status:        string(l.Status),
		Message:       l.Message,
		HTTPMethod:    l.HTTPMethod,
		RequestURI:    l.RequestURI,
		IPAddress:     l.IPAddress,
		UserAgent:     l.UserAgent,
		CorrelationID: l.CorrelationID,
		RequestBody:   l.RequestBody,
		ResponseBody:  l.ResponseBody,
		SessionID:     l.SessionID,
		Department:    l.Department,
	}
	if l.ResponseStatus != nil {
		s := int32(*l.ResponseStatus)
		r.ResponseStatus = &s
	}
	if l.ExecutionTimeMs.Set {
		ms := l.ExecutionTimeMs.Value
		r.ExecutionTimeMs = &ms
	}
	return r, true
}

func (r row) record() models.LogRecord {
	l := models.LogRecord{
		ID:            r.ID,
		Timestamp:     models.NewTimestamp(r.Timestamp),
		UserID:        r.UserID,
		Username:      r.Username,
		Operation:     r.Operation,
		EntityType:    r.EntityType,
		EntityID:      r.EntityID,
		Status:        models.Status(r.Status),
		Message:       r.Message,
		HTTPMethod:    r.HTTPMethod,
		RequestURI:    r.RequestURI,
		IPAddress:     r.IPAddress,
		UserAgent:     r.UserAgent,
		CorrelationID: r.CorrelationID,
		RequestBody:   r.RequestBody,
		ResponseBody:  r.ResponseBody,
		SessionID:     r.SessionID,
		Department:    r.Department,
	}
	if r.ResponseStatus != nil {
		s := int(*r.ResponseStatus)
		l.ResponseStatus = &s
	}
	if r.ExecutionTimeMs != nil {
		l.ExecutionTimeMs = models.NewMillis(*r.ExecutionTimeMs)
	}
	return l
}
