package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
)

type checkResponse struct {
	Status       healthcheck.Status           `json:"status"`
	StatusCode   int                          `json:"statusCode,omitempty"`
	StatusText   string                       `json:"statusText,omitempty"`
	Error        string                       `json:"error,omitempty"`
	ErrorType    string                       `json:"errorType,omitempty"`
	ResponseTime int64                        `json:"responseTime"`
	Timestamp    time.Time                    `json:"timestamp"`
	Headers      *healthcheck.ResponseHeaders `json:"headers,omitempty"`
}

// Check probes the url query parameter and reports the classified outcome.
// A completed check is always answered with 200, whatever the target's state.
// Concurrent checks of the same url share one probe.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if allowCORS(w, r, "GET, POST, OPTIONS") {
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "URL parameter is required")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	v, err, shared := h.checks.Do(target, func() (any, error) {
		return h.prober.Probe(ctx, target, h.timeout)
	})
	if err != nil {
		var verr *healthcheck.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error("Check failed", slog.String("url", target), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "check failed")
		return
	}

	out := v.(healthcheck.Outcome)
	h.logger.Debug("Checked url",
		slog.String("url", target),
		slog.String("status", string(out.Status)),
		slog.Bool("shared", shared))

	resp := checkResponse{
		Status:     out.Status,
		StatusCode: out.StatusCode,
		StatusText: out.StatusText,
		Error:      out.Error,
		ErrorType:  out.ErrorType,
		Timestamp:  out.CheckedAt,
		Headers:    out.Headers,
	}
	if out.ResponseTimeMs != nil {
		resp.ResponseTime = *out.ResponseTimeMs
	}

	writeJSON(w, http.StatusOK, resp)
}
