package logsapi

import (
	"net/url"
	"strconv"
	"strings"
)

// LogQuery carries paging, sorting and the filters of the list endpoint.
// Empty filters are omitted from the request.
type LogQuery struct {
	Page    int    `json:"page"`
	Size    int    `json:"size"`
	SortBy  string `json:"sortBy,omitempty"`
	SortDir string `json:"sortDir,omitempty"`

	Operation  string `json:"operation,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Username   string `json:"username,omitempty"`
	Status     string `json:"status,omitempty"`
	HTTPMethod string `json:"httpMethod,omitempty"`
	EntityType string `json:"entityType,omitempty"`
	Department string `json:"department,omitempty"`
	IPAddress  string `json:"ipAddress,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
}

// Values encodes the query for the list endpoint.
func (q LogQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	} else {
		v.Set("page", "0")
	}
	size := q.Size
	if size <= 0 {
		size = defaultPageSize
	}
	v.Set("size", strconv.Itoa(size))

	set := func(key, val string) {
		if val = strings.TrimSpace(val); val != "" {
			v.Set(key, val)
		}
	}
	set("sortBy", q.SortBy)
	set("sortDir", q.SortDir)
	set("operation", q.Operation)
	set("userId", q.UserID)
	set("username", q.Username)
	set("status", q.Status)
	set("httpMethod", q.HTTPMethod)
	set("entityType", q.EntityType)
	set("department", q.Department)
	set("ipAddress", q.IPAddress)
	set("startDate", q.StartDate)
	set("endDate", q.EndDate)
	return v
}

// QueryFromValues parses list filters from incoming request parameters.
// Unparseable page and size values fall back to their defaults.
func QueryFromValues(v url.Values) LogQuery {
	q := LogQuery{
		SortBy:     v.Get("sortBy"),
		SortDir:    v.Get("sortDir"),
		Operation:  v.Get("operation"),
		UserID:     v.Get("userId"),
		Username:   v.Get("username"),
		Status:     v.Get("status"),
		HTTPMethod: v.Get("httpMethod"),
		EntityType: v.Get("entityType"),
		Department: v.Get("department"),
		IPAddress:  v.Get("ipAddress"),
		StartDate:  v.Get("startDate"),
		EndDate:    v.Get("endDate"),
	}
	if n, err := strconv.Atoi(v.Get("page")); err == nil && n >= 0 {
		q.Page = n
	}
	if n, err := strconv.Atoi(v.Get("size")); err == nil && n > 0 {
		q.Size = n
	}
	return q
}

func pageValues(page, size int) url.Values {
	return LogQuery{Page: page, Size: size}.Values()
}
