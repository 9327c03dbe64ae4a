package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"applogs/internal/dashboard"
	"applogs/internal/logsapi"
	"applogs/internal/models"

	"github.com/gorilla/mux"
)

// FakeUpstream serves the application log API over a fixed record set. Pages
// use the HATEOAS envelope and statistics use [key, count] tuples, as the
// real backend does.
type FakeUpstream struct {
	server *httptest.Server

	mu          sync.Mutex
	token       string
	src         *dashboard.SnapshotSource
	requests    map[string]int
	failures    map[string]int
	cleanupDays []int
}

// NewFakeUpstream starts a fake log API; it is closed when the test ends.
func NewFakeUpstream(t testing.TB, records []models.LogRecord) *FakeUpstream {
	t.Helper()

	f := &FakeUpstream{
		src:      dashboard.NewSnapshotSource(records),
		requests: make(map[string]int),
		failures: make(map[string]int),
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api/app-logs").Subrouter()
	api.HandleFunc("", f.handleList).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", f.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/statistics", f.handleStatistics).Methods(http.MethodGet)
	api.HandleFunc("/recent-failures", f.pageHandler(f.src.RecentFailures)).Methods(http.MethodGet)
	api.HandleFunc("/authentication", f.pageHandler(f.src.AuthenticationLogs)).Methods(http.MethodGet)
	api.HandleFunc("/critical", f.pageHandler(f.src.CriticalOperations)).Methods(http.MethodGet)
	api.HandleFunc("/slow-operations", f.handleSlow).Methods(http.MethodGet)
	api.HandleFunc("/trace/{correlationId}", f.handleTrace).Methods(http.MethodGet)
	api.HandleFunc("/cleanup", f.handleCleanup).Methods(http.MethodDelete)
	api.HandleFunc("/{id:[0-9]+}", f.handleGet).Methods(http.MethodGet)
	router.Use(f.middleware)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

// URL is the base URL to hand to logsapi.New
func (f *FakeUpstream) URL() string {
	return f.server.URL
}

// Requests returns how many requests reached path, e.g. "/api/app-logs/dashboard"
func (f *FakeUpstream) Requests(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

// RequireToken makes every request carry token as its bearer token
func (f *FakeUpstream) RequireToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

// FailWith makes every request to path answer with status
func (f *FakeUpstream) FailWith(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = status
}

// CleanupDays returns the daysToKeep values received by the cleanup endpoint
func (f *FakeUpstream) CleanupDays() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.cleanupDays...)
}

func (f *FakeUpstream) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests[r.URL.Path]++
		status := f.failures[r.URL.Path]
		token := f.token
		f.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeMessage(w, http.StatusUnauthorized, "Full authentication is required")
			return
		}
		if status != 0 {
			writeMessage(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type halEnvelope struct {
	Embedded *halEmbedded `json:"_embedded,omitempty"`
	Page     halPageInfo  `json:"page"`
}

type halEmbedded struct {
	AppLogList []models.LogRecord `json:"appLogList"`
}

type halPageInfo struct {
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Number        int   `json:"number"`
}

func writePage(w http.ResponseWriter, p models.Page) {
	env := halEnvelope{Page: halPageInfo{
		Size:          p.Size,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		Number:        p.Number,
	}}
	if len(p.Content) > 0 {
		env.Embedded = &halEmbedded{AppLogList: p.Content}
	}
	writeBody(w, http.StatusOK, env)
}

func (f *FakeUpstream) handleList(w http.ResponseWriter, r *http.Request) {
	p, err := f.src.ListLogs(r.Context(), models.AuthContext{}, logsapi.QueryFromValues(r.URL.Query()))
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writePage(w, p)
}

type pageFunc func(ctx context.Context, auth models.AuthContext, page, size int) (models.Page, error)

func (f *FakeUpstream) pageHandler(fn pageFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := logsapi.QueryFromValues(r.URL.Query())
		p, err := fn(r.Context(), models.AuthContext{}, q.Page, q.Size)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, err.Error())
			return
		}
		writePage(w, p)
	}
}

func (f *FakeUpstream) handleSlow(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.ParseInt(r.URL.Query().Get("thresholdMs"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "thresholdMs must be a number")
		return
	}
	q := logsapi.QueryFromValues(r.URL.Query())
	p, err := f.src.SlowOperations(r.Context(), models.AuthContext{}, threshold, q.Page, q.Size)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writePage(w, p)
}

func (f *FakeUpstream) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := f.src.Dashboard(r.Context(), models.AuthContext{})
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	body := statisticsBody(d.Statistics)
	body["hasRecentFailures"] = d.HasRecentFailures
	body["slowOperationsCount"] = d.SlowOperationsCount
	writeBody(w, http.StatusOK, body)
}

func (f *FakeUpstream) handleStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := f.src.Statistics(r.Context(), models.AuthContext{})
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeBody(w, http.StatusOK, statisticsBody(st))
}

// statisticsBody renders breakdowns as [key, count] tuples
func statisticsBody(st models.Statistics) map[string]any {
	tuples := func(entries []models.CountEntry) [][]any {
		out := make([][]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, []any{e.Key, e.Count})
		}
		return out
	}
	return map[string]any{
		"totalLogs":            st.TotalLogs,
		"successfulOperations": st.SuccessfulOperations,
		"failedOperations":     st.FailedOperations,
		"operationBreakdown":   tuples(st.OperationBreakdown),
		"userActivity":         tuples(st.UserActivity),
		"httpMethodBreakdown":  tuples(st.HTTPMethodBreakdown),
	}
}

func (f *FakeUpstream) handleTrace(w http.ResponseWriter, r *http.Request) {
	recs, err := f.src.TraceByCorrelationID(r.Context(), models.AuthContext{}, mux.Vars(r)["correlationId"])
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeBody(w, http.StatusOK, recs)
}

func (f *FakeUpstream) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	rec, err := f.src.GetLog(r.Context(), models.AuthContext{}, id)
	if errors.Is(err, logsapi.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("Log not found with id: %d", id))
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeBody(w, http.StatusOK, rec)
}

func (f *FakeUpstream) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("daysToKeep"))
	if err != nil {
		days = 90
	}
	f.mu.Lock()
	f.cleanupDays = append(f.cleanupDays, days)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
	fmt.Fprintf(w, "Old logs cleanup initiated for logs older than %d days", days)
}

func writeBody(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeBody(w, status, map[string]any{"status": status, "message": msg})
}
