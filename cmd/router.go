package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/uptime-monitor/internal/handler"
	"github.com/angeloszaimis/uptime-monitor/internal/metrics"
)

func setupRouter(log *slog.Logger, h *handler.Handler, collector *metrics.Collector, proxyPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/check", h.Check)
	mux.HandleFunc(proxyPath, h.Proxy)
	mux.HandleFunc("/servers", h.Servers)
	mux.HandleFunc("/stats/{serverId}", h.Stats)
	mux.HandleFunc("/status", h.Status)
	mux.HandleFunc("/refresh", h.Refresh)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("GET /metrics", collector.Handler())

	return handler.Logging(log, mux)
}
