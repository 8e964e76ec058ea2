package handler

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/angeloszaimis/uptime-monitor/internal/feed"
	"github.com/angeloszaimis/uptime-monitor/internal/fleet"
	"github.com/angeloszaimis/uptime-monitor/internal/proxy"
)

// Handler serves the monitor API. feed may be nil when no push feed is
// configured.
type Handler struct {
	logger    *slog.Logger
	prober    fleet.Prober
	timeout   time.Duration
	scheduler *fleet.Scheduler
	proxy     *proxy.Proxy
	feed      *feed.Client
	checks    singleflight.Group
	started   time.Time
}

func New(logger *slog.Logger, prober fleet.Prober, timeout time.Duration, scheduler *fleet.Scheduler, fetcher *proxy.Proxy, feedClient *feed.Client) *Handler {
	return &Handler{
		logger:    logger,
		prober:    prober,
		timeout:   timeout,
		scheduler: scheduler,
		proxy:     fetcher,
		feed:      feedClient,
		started:   time.Now(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// allowCORS sets permissive CORS headers. It reports true when the request
// was a preflight and has been answered.
func allowCORS(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging logs every request once it has been served.
func Logging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logger.Info("Handled request",
			slog.String("from", extractClientIP(r)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.String("user_agent", r.UserAgent()))
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
