package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"applogs/internal/config"
	"applogs/internal/dashboard"
	"applogs/internal/logging"
	"applogs/internal/logsapi"
	"applogs/internal/models"
	"applogs/internal/monitoring"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const apiPrefix = "/api/v1"

// API serves the dashboard views over HTTP
type API struct {
	svc         *dashboard.Service
	config      *config.Config
	healthCheck *monitoring.HealthCheck
	logger      zerolog.Logger
}

// NewAPI creates the HTTP layer on top of a dashboard service
func NewAPI(cfg *config.Config, svc *dashboard.Service, hc *monitoring.HealthCheck) *API {
	if hc == nil {
		hc = monitoring.NewHealthCheck()
	}
	return &API{
		svc:         svc,
		config:      cfg,
		healthCheck: hc,
		logger:      logging.Component("api"),
	}
}

// Router builds the route table
func (a *API) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(a.requestMiddleware)

	api := router.PathPrefix(apiPrefix).Subrouter()
	api.HandleFunc("/overview", a.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/performance", a.handlePerformance).Methods(http.MethodGet)
	api.HandleFunc("/security", a.handleSecurity).Methods(http.MethodGet)
	api.HandleFunc("/statistics", a.handleStatistics).Methods(http.MethodGet)
	api.HandleFunc("/logs", a.handleLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs/{id}", a.handleLog).Methods(http.MethodGet)
	api.HandleFunc("/trace/{correlationId}", a.handleTrace).Methods(http.MethodGet)
	api.HandleFunc("/stream", a.handleStream).Methods(http.MethodGet)

	router.HandleFunc(a.config.Monitoring.HealthCheckPath, a.healthCheck.LivenessHandler).Methods(http.MethodGet)
	router.HandleFunc(a.config.Monitoring.ReadyCheckPath, a.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	return router
}

func (a *API) handleOverview(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Overview(r.Context(), authFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handlePerformance(w http.ResponseWriter, r *http.Request) {
	threshold, err := int64Param(r, "thresholdMs")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := a.svc.Performance(r.Context(), authFromRequest(r), dashboard.PerformanceRequest{
		Period:      r.URL.Query().Get("period"),
		ThresholdMs: threshold,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSecurity(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Security(r.Context(), authFromRequest(r), dashboard.SecurityRequest{
		Period: r.URL.Query().Get("period"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Statistics(r.Context(), authFromRequest(r), dashboard.StatisticsRequest{
		Range: r.URL.Query().Get("range"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	page, err := a.svc.Logs(r.Context(), authFromRequest(r), logsapi.QueryFromValues(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: id must be a number", dashboard.ErrInvalidRequest))
		return
	}
	rec, err := a.svc.Log(r.Context(), authFromRequest(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleTrace(w http.ResponseWriter, r *http.Request) {
	recs, err := a.svc.Trace(r.Context(), authFromRequest(r), mux.Vars(r)["correlationId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// authFromRequest forwards the caller's bearer token. Browsers cannot set
// headers on websocket upgrades, so the token query parameter is accepted too.
func authFromRequest(r *http.Request) models.AuthContext {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return models.AuthContext{
		Token:    token,
		Username: r.Header.Get("X-Username"),
		Role:     r.Header.Get("X-Role"),
	}
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", dashboard.ErrInvalidRequest, name)
	}
	return v, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, logsapi.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request rejected")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requestMiddleware tags every request with an id and logs its completion
func (a *API) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, id := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		ctx = a.logger.WithContext(ctx)
		logger := logging.FromContext(ctx)
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
