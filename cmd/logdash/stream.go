package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"applogs/internal/dashboard"
	"applogs/internal/models"
	"applogs/internal/monitoring"

	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamReadLimit    = 4 << 10

	viewOverview    = "overview"
	viewPerformance = "performance"
	viewSecurity    = "security"
	viewStatistics  = "statistics"
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// subscription selects the view a stream pushes
type subscription struct {
	View        string `json:"view"`
	Period      string `json:"period,omitempty"`
	ThresholdMs int64  `json:"thresholdMs,omitempty"`
	Range       string `json:"range,omitempty"`

	invalid error
}

type streamMessage struct {
	View        string    `json:"view"`
	Data        any       `json:"data,omitempty"`
	Error       string    `json:"error,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	auth := authFromRequest(r)
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug().Err(err).Msg("Stream upgrade failed")
		return
	}
	monitoring.ActiveStreams.Inc()
	defer monitoring.ActiveStreams.Dec()

	a.serveStream(conn, auth)
}

// serveStream pushes the subscribed view right away and on every refresh
// tick. Each push starts a new tracked request, so a slow answer for an
// abandoned subscription is never written after a newer one. Rejected
// subscriptions get an error message and do not supersede anything.
func (a *API) serveStream(conn *websocket.Conn, auth models.AuthContext) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tracker dashboard.Tracker
	defer tracker.Stop()

	subs := make(chan subscription)
	done := make(chan struct{})
	conn.SetReadLimit(streamReadLimit)
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var sub subscription
			if err := json.Unmarshal(data, &sub); err != nil {
				sub = subscription{invalid: fmt.Errorf("%w: malformed subscription", dashboard.ErrInvalidRequest)}
			}
			select {
			case subs <- sub:
			case <-ctx.Done():
				return
			}
		}
	}()

	write := func(msg streamMessage) {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			a.logger.Debug().Err(err).Msg("Stream write failed")
			cancel()
		}
	}

	push := func(sub subscription) {
		reqCtx, ticket := tracker.Begin(ctx)
		go func() {
			msg := a.render(reqCtx, auth, sub)
			if reqCtx.Err() != nil {
				return
			}
			ticket.Commit(func() { write(msg) })
		}()
	}

	current := subscription{View: viewOverview}
	push(current)

	ticker := time.NewTicker(a.config.Server.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case sub := <-subs:
			if sub.invalid == nil {
				sub.View = strings.ToLower(strings.TrimSpace(sub.View))
				if sub.View == "" {
					sub.View = viewOverview
				}
			}
			if sub.invalid != nil || !knownView(sub.View) {
				// answered in place; the current view and its request stay as they are
				msg := a.render(ctx, auth, sub)
				tracker.Do(func() { write(msg) })
				continue
			}
			current = sub
			push(sub)
		case <-ticker.C:
			push(current)
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// render computes one view into a stream message; failures travel as the
// message's error field so the socket stays open.
func (a *API) render(ctx context.Context, auth models.AuthContext, sub subscription) streamMessage {
	msg := streamMessage{View: sub.View, GeneratedAt: time.Now().UTC()}
	data, err := a.compute(ctx, auth, sub)
	if err != nil {
		msg.Error = err.Error()
		return msg
	}
	msg.Data = data
	return msg
}

func knownView(view string) bool {
	switch view {
	case viewOverview, viewPerformance, viewSecurity, viewStatistics:
		return true
	}
	return false
}

func (a *API) compute(ctx context.Context, auth models.AuthContext, sub subscription) (any, error) {
	if sub.invalid != nil {
		return nil, sub.invalid
	}
	switch sub.View {
	case viewOverview:
		return a.svc.Overview(ctx, auth)
	case viewPerformance:
		return a.svc.Performance(ctx, auth, dashboard.PerformanceRequest{Period: sub.Period, ThresholdMs: sub.ThresholdMs})
	case viewSecurity:
		return a.svc.Security(ctx, auth, dashboard.SecurityRequest{Period: sub.Period})
	case viewStatistics:
		return a.svc.Statistics(ctx, auth, dashboard.StatisticsRequest{Range: sub.Range})
	default:
		return nil, fmt.Errorf("%w: unknown view %q", dashboard.ErrInvalidRequest, sub.View)
	}
}
