// Demotarget is a local site for trying the uptime monitor by hand. It serves
// a small HTML page, can be told to fail or slow down, and pushes its request
// count over a websocket feed once per second.
//
// Usage:
//
//	go run ./scripts/demotarget --port 8081
//	curl -X POST localhost:8081/mode?set=down   # healthy | down | slow
//
// Point feed.url at ws://localhost:8081/ws to watch the request rate.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/net/websocket"
)

const page = `<!DOCTYPE html>
<html><head><title>Demo target</title><link href="/style.css" rel="stylesheet"></head>
<body><h1>Demo target</h1><p>instance %s</p><a href="/about">about</a></body></html>`

type target struct {
	id       string
	mode     atomic.Value
	requests atomic.Int64
	log      *slog.Logger
}

func (t *target) serve(w http.ResponseWriter, r *http.Request) {
	t.requests.Add(1)

	switch t.mode.Load().(string) {
	case "down":
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	case "slow":
		time.Sleep(12 * time.Second)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Server", "demotarget")
	w.Header().Set("X-Frame-Options", "DENY")
	fmt.Fprintf(w, page, t.id)
}

func (t *target) setMode(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("set")
	switch mode {
	case "healthy", "down", "slow":
		t.mode.Store(mode)
		t.log.Info("mode changed", slog.String("mode", mode))
		fmt.Fprintln(w, mode)
	default:
		http.Error(w, "set must be healthy, down or slow", http.StatusBadRequest)
	}
}

// feed pushes the number of requests served during the last second.
func (t *target) feed(ws *websocket.Conn) {
	defer ws.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := t.requests.Load()
	for range ticker.C {
		now := t.requests.Load()
		msg := fmt.Sprintf(`{"requests": %d}`, now-last)
		last = now
		if err := websocket.Message.Send(ws, msg); err != nil {
			t.log.Info("feed subscriber left", slog.String("error", err.Error()))
			return
		}
	}
}

func main() {
	port := pflag.IntP("port", "p", 8081, "port to listen on")
	pflag.Parse()

	t := &target{
		id:  uuid.NewString(),
		log: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	t.mode.Store("healthy")

	mux := http.NewServeMux()
	mux.HandleFunc("/", t.serve)
	mux.HandleFunc("POST /mode", t.setMode)
	mux.Handle("/ws", websocket.Handler(t.feed))

	addr := fmt.Sprintf(":%d", *port)
	t.log.Info("starting demo target", slog.String("addr", addr), slog.String("instance", t.id))
	if err := http.ListenAndServe(addr, mux); err != nil {
		t.log.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
