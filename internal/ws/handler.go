// Package ws streams live analysis events over a WebSocket connection for
// dashboard clients that keep a long-lived channel open instead of issuing
// one SSE request per analysis.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/sitepulse/insight-gateway/internal/metrics"
	"github.com/sitepulse/insight-gateway/internal/prompt"
	"github.com/sitepulse/insight-gateway/internal/relay"
	"github.com/sitepulse/insight-gateway/internal/snapshot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared relay for all analysis sessions.
type HandlerConfig struct {
	Relay         *relay.Relay
	MaxConcurrent int
}

// Handler manages WebSocket analysis sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a WebSocket handler with a concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// analyzeRequest is one text frame sent by the client: the snapshot to
// analyze plus optional engine and model overrides.
type analyzeRequest struct {
	snapshot.Snapshot
	Engine string `json:"engine"`
	Model  string `json:"model"`
}

// ServeHTTP upgrades the connection and serves analysis requests until the
// client disconnects. Returns 503 at capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(r.Context(), conn)
}

// runSession reads analyze requests in a loop. Each frame cancels any
// in-flight analysis before starting the next, so a session never has two
// live upstream streams and only the live run writes to the connection.
func (h *Handler) runSession(parent context.Context, conn *websocket.Conn) {
	sendEvent := newEventSender(conn)

	var gen atomic.Uint64
	var cancelPrev context.CancelFunc
	defer func() {
		if cancelPrev != nil {
			cancelPrev()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("ws connection closed", "error", err)
			return
		}

		var req analyzeRequest
		if err = json.Unmarshal(data, &req); err != nil {
			sendEvent(relay.Event{Type: relay.EventError, Err: "invalid request"})
			sendEvent(relay.Event{Type: relay.EventDone})
			continue
		}
		if err = req.Snapshot.Validate(); err != nil {
			sendEvent(relay.Event{Type: relay.EventError, Err: err.Error()})
			sendEvent(relay.Event{Type: relay.EventDone})
			continue
		}

		// A new request supersedes any in-flight analysis. Bump the
		// generation before cancelling so the old run's remaining
		// events (including its error/done pair) are dropped instead
		// of interleaving with the successor's stream.
		runGen := gen.Add(1)
		if cancelPrev != nil {
			cancelPrev()
		}
		ctx, cancel := context.WithCancel(parent)
		cancelPrev = cancel

		metrics.AnalysesTotal.Inc()

		go func(req analyzeRequest, runGen uint64) {
			metrics.AnalysesActive.Inc()
			defer metrics.AnalysesActive.Dec()

			sink := func(ev relay.Event) {
				if gen.Load() != runGen {
					return
				}
				sendEvent(ev)
			}

			compiled := prompt.Compile(&req.Snapshot)
			if _, err := h.cfg.Relay.Run(ctx, compiled, req.Engine, req.Model, sink); err != nil {
				slog.Error("ws analysis", "engine", req.Engine, "error", err)
			}
		}(req, runGen)
	}
}

func newEventSender(conn *websocket.Conn) relay.Sink {
	var mu sync.Mutex
	return func(ev relay.Event) {
		mu.Lock()
		defer mu.Unlock()

		jsonBytes, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err = conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Error("ws write event", "error", err)
		}
	}
}
