package handler

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
)

const maxBodyBytes = 1 << 20

type serversResponse struct {
	Success bool                `json:"success"`
	Servers []endpoint.Endpoint `json:"servers"`
	Count   int                 `json:"count"`
}

type serverChangeResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Server   map[string]any `json:"server,omitempty"`
	ServerID string         `json:"serverId,omitempty"`
}

// Servers lists the registry. POST, PUT and DELETE are accepted and echoed
// back; the registry itself is never changed at runtime.
func (h *Handler) Servers(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, POST, PUT, DELETE, OPTIONS") {
		return
	}

	switch r.Method {
	case http.MethodGet:
		servers := h.scheduler.Registry().All()
		writeJSON(w, http.StatusOK, serversResponse{
			Success: true,
			Servers: servers,
			Count:   len(servers),
		})

	case http.MethodPost:
		var server map[string]any
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&server); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		writeJSON(w, http.StatusCreated, serverChangeResponse{
			Success: true,
			Message: "Server added successfully",
			Server:  server,
		})

	case http.MethodPut:
		writeJSON(w, http.StatusOK, serverChangeResponse{
			Success:  true,
			Message:  "Server updated successfully",
			ServerID: r.URL.Query().Get("id"),
		})

	case http.MethodDelete:
		writeJSON(w, http.StatusOK, serverChangeResponse{
			Success:  true,
			Message:  "Server deleted successfully",
			ServerID: r.URL.Query().Get("id"),
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
