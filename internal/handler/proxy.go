package handler

import (
	"errors"
	"net/http"

	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
	"github.com/angeloszaimis/uptime-monitor/internal/proxy"
)

// Proxy serves the rewritten page for the url query parameter. Upstream
// failures are answered with a renderable error page rather than JSON.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, OPTIONS") {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "URL parameter is required", http.StatusBadRequest)
		return
	}

	proxy.AllowFraming(w.Header())

	page, err := h.proxy.FetchAndRewrite(r.Context(), target)
	if err != nil {
		var verr *healthcheck.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		proxy.WriteErrorPage(w, target, err)
		return
	}

	w.Header().Set("Content-Type", page.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(page.Body)
}
