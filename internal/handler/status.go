package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
	"github.com/angeloszaimis/uptime-monitor/internal/fleet"
	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
)

type serverStatus struct {
	endpoint.Endpoint
	healthcheck.Outcome
}

type feedStatus struct {
	State      string `json:"state"`
	EndpointID int    `json:"endpointId"`
}

type statusResponse struct {
	Success     bool              `json:"success"`
	CycleID     uuid.UUID         `json:"cycleId"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt time.Time         `json:"completedAt"`
	Running     bool              `json:"running"`
	Stats       fleet.Stats       `json:"stats"`
	Servers     []serverStatus    `json:"servers"`
	Feed        *feedStatus       `json:"feed,omitempty"`
	Upstreams   map[string]string `json:"upstreams,omitempty"`
}

type refreshResponse struct {
	Success bool        `json:"success"`
	CycleID uuid.UUID   `json:"cycleId"`
	Stats   fleet.Stats `json:"stats"`
}

// Status returns the latest snapshot joined with the registry, plus the
// breaker state of every host the proxy has fetched. Before the first cycle
// completes every server is reported as checking.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, OPTIONS") {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) status() statusResponse {
	snap := h.scheduler.Snapshot()
	endpoints := h.scheduler.Registry().All()

	resp := statusResponse{
		Success:     true,
		CycleID:     snap.CycleID,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
		Running:     h.scheduler.Running(),
		Stats:       snap.Stats(),
		Servers:     make([]serverStatus, len(endpoints)),
	}
	for i, e := range endpoints {
		resp.Servers[i] = serverStatus{Endpoint: e, Outcome: snap.Outcomes[i]}
	}
	if breakers := h.proxy.Breakers(); len(breakers) > 0 {
		resp.Upstreams = make(map[string]string, len(breakers))
		for host, state := range breakers {
			resp.Upstreams[host] = state.String()
		}
	}
	if h.feed != nil {
		resp.Feed = &feedStatus{
			State:      h.feed.State().String(),
			EndpointID: h.feed.EndpointID(),
		}
	}

	return resp
}

// Refresh runs a cycle immediately. It answers 409 while a cycle is already
// running.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "POST, OPTIONS") {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap, err := h.scheduler.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, fleet.ErrCycleInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Success: true,
		CycleID: snap.CycleID,
		Stats:   snap.Stats(),
	})
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// Health reports that the monitor itself is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}
