package handler

import (
	"net/http"

	"github.com/spf13/cast"

	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
	"github.com/angeloszaimis/uptime-monitor/internal/window"
)

type statsResponse struct {
	Success  bool               `json:"success"`
	ServerID int                `json:"serverId"`
	Status   healthcheck.Status `json:"status"`
	Stats    window.Summary     `json:"stats"`
	Requests *window.Summary    `json:"requests,omitempty"`
}

// Stats reports the recent response times of one endpoint. When the push
// feed belongs to that endpoint its request-rate window is included.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, OPTIONS") {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := cast.ToIntE(r.PathValue("serverId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid server id")
		return
	}

	summary, ok := h.scheduler.History(id)
	if !ok {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	resp := statsResponse{
		Success:  true,
		ServerID: id,
		Stats:    summary,
	}
	if out, ok := h.scheduler.Snapshot().Outcome(id); ok {
		resp.Status = out.Status
	}
	if h.feed != nil && h.feed.EndpointID() == id {
		requests := h.feed.Summary()
		resp.Requests = &requests
	}

	writeJSON(w, http.StatusOK, resp)
}
