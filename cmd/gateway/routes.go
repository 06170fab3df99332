package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sitepulse/insight-gateway/internal/analysis"
	"github.com/sitepulse/insight-gateway/internal/cache"
	"github.com/sitepulse/insight-gateway/internal/metrics"
	"github.com/sitepulse/insight-gateway/internal/prompt"
	"github.com/sitepulse/insight-gateway/internal/relay"
	"github.com/sitepulse/insight-gateway/internal/snapshot"
	"github.com/sitepulse/insight-gateway/internal/store"
)

// defaultHistoryLimit is how many runs are returned when the caller omits
// the ?limit= query parameter.
const defaultHistoryLimit = 20

type deps struct {
	cfg       config
	relay     *relay.Relay
	builder   *snapshot.Builder
	store     *store.Store       // nil when history is disabled
	cache     *cache.ResultCache // nil when caching is disabled
	wsHandler http.Handler
	// configured is false when no model backend has credentials; analyze
	// requests then fail fast with 500.
	configured bool
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/analyze", d.wsHandler)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/analyze", d.handleAnalyze)
	mux.HandleFunc("GET /api/snapshot", d.handleSnapshot)
	registerHistoryRoutes(mux, d.store)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// analyzeRequest is the POST /api/analyze body: the snapshot to analyze
// plus optional routing and history metadata.
type analyzeRequest struct {
	snapshot.Snapshot
	PropertyID string `json:"propertyId,omitempty"`
	DateRange  string `json:"dateRange,omitempty"`
	Engine     string `json:"engine,omitempty"`
	Model      string `json:"model,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
}

// handleAnalyze serves both streaming and non-streaming analysis. Content
// negotiation: Accept: text/event-stream selects the SSE path, otherwise a
// single JSON body is returned.
func (d deps) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	setCORS(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !d.configured {
		writeJSONError(w, http.StatusInternalServerError, "analysis backend is not configured")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Snapshot.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PageViews == 0 && req.Sessions == 0 && len(req.TopPages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "missing analytics data")
		return
	}
	if req.Industry == "" {
		req.Industry = d.cfg.fallbackIndustry
	}

	streaming := r.Header.Get("Accept") == "text/event-stream"

	if result := d.cachedResult(r, &req); result != nil {
		if streaming {
			d.streamCached(w, result)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
		return
	}

	metrics.AnalysesTotal.Inc()
	metrics.AnalysesActive.Inc()
	defer metrics.AnalysesActive.Dec()

	runID := uuid.NewString()
	d.recordStart(runID, &req)
	compiled := prompt.Compile(&req.Snapshot)

	slog.Info("analysis started", "run_id", runID, "property", req.PropertyID, "engine", req.Engine, "streaming", streaming)

	start := time.Now()
	if streaming {
		d.analyzeStreaming(w, r, &req, runID, compiled, start)
		return
	}
	d.analyzeOnce(w, r, &req, runID, compiled, start)
}

// analyzeStreaming forwards relay events as SSE frames. The done sentinel
// is serialized as the literal [DONE] line.
func (d deps) analyzeStreaming(w http.ResponseWriter, r *http.Request, req *analyzeRequest, runID, compiled string, start time.Time) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := func(ev relay.Event) {
		if ev.Type == relay.EventDone {
			fmt.Fprint(w, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	result, err := d.relay.Run(r.Context(), compiled, req.Engine, req.Model, sink)
	d.recordFinish(runID, req, result, err, time.Since(start))
}

// analyzeOnce runs the relay without forwarding chunks and returns a single
// JSON body.
func (d deps) analyzeOnce(w http.ResponseWriter, r *http.Request, req *analyzeRequest, runID, compiled string, start time.Time) {
	sink := func(relay.Event) {}

	result, err := d.relay.Run(r.Context(), compiled, req.Engine, req.Model, sink)
	d.recordFinish(runID, req, result, err, time.Since(start))

	if err != nil {
		if errors.Is(err, relay.ErrUpstream) {
			writeJSONError(w, http.StatusInternalServerError, "Failed to get AI analysis")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Failed to parse AI response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// cachedResult returns a cached analysis when the request is cacheable and
// the caller did not ask for a refresh.
func (d deps) cachedResult(r *http.Request, req *analyzeRequest) *analysis.Result {
	if d.cache == nil || req.PropertyID == "" || r.URL.Query().Get("refresh") == "1" {
		return nil
	}
	result, err := d.cache.Get(r.Context(), req.PropertyID, req.DateRange, req.Industry)
	if err != nil {
		slog.Warn("cache get", "error", err)
		return nil
	}
	if result == nil {
		metrics.CacheMisses.Inc()
		return nil
	}
	metrics.CacheHits.Inc()
	return result
}

// streamCached replays a cached result as a minimal SSE stream so streaming
// clients observe the same terminal protocol.
func (d deps) streamCached(w http.ResponseWriter, result *analysis.Result) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	data, err := json.Marshal(relay.Event{Type: relay.EventComplete, Analysis: result})
	if err == nil {
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (d deps) recordStart(runID string, req *analyzeRequest) {
	if d.store == nil {
		return
	}
	err := d.store.CreateRun(store.Run{
		ID:         runID,
		PropertyID: req.PropertyID,
		DateRange:  req.DateRange,
		Industry:   req.Industry,
		Engine:     req.Engine,
	})
	if err != nil {
		slog.Warn("record run start", "run_id", runID, "error", err)
	}
}

func (d deps) recordFinish(runID string, req *analyzeRequest, result *analysis.Result, runErr error, elapsed time.Duration) {
	if result != nil && d.cache != nil && req.PropertyID != "" {
		// Request context may already be done once the stream has ended.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.cache.Set(ctx, req.PropertyID, req.DateRange, req.Industry, result); err != nil {
			slog.Warn("cache set", "error", err)
		}
		cancel()
	}

	if d.store == nil {
		return
	}
	status := store.StatusComplete
	resultJSON := ""
	errMsg := ""
	if runErr != nil {
		status = store.StatusError
		errMsg = runErr.Error()
	} else if result != nil {
		if data, err := json.Marshal(result); err == nil {
			resultJSON = string(data)
		}
	}
	if err := d.store.FinishRun(runID, float64(elapsed.Milliseconds()), resultJSON, status, errMsg); err != nil {
		slog.Warn("record run finish", "run_id", runID, "error", err)
	}
}

// handleSnapshot builds a snapshot server-side from GA4 for callers that do
// not want to assemble the analyze body themselves. Requires the caller's
// GA4 OAuth token as a bearer credential.
func (d deps) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	setCORS(w)

	token := bearerToken(r)
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing access token")
		return
	}
	propertyID := r.URL.Query().Get("property")
	if propertyID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing property")
		return
	}
	rng := snapshot.Range(r.URL.Query().Get("range"))
	industry := r.URL.Query().Get("industry")

	snap, err := d.builder.Build(r.Context(), token, propertyID, rng, industry)
	if err != nil {
		slog.Error("build snapshot", "property", propertyID, "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to fetch analytics data")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func registerHistoryRoutes(mux *http.ServeMux, st *store.Store) {
	mux.HandleFunc("GET /api/analyses", func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeJSONError(w, http.StatusNotFound, "history disabled")
			return
		}
		limit := queryInt(r, "limit", defaultHistoryLimit)
		offset := queryInt(r, "offset", 0)
		runs, total, err := st.ListRuns(limit, offset)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs, "total": total})
	})

	mux.HandleFunc("GET /api/analyses/{id}", func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeJSONError(w, http.StatusNotFound, "history disabled")
			return
		}
		run, err := st.GetRun(r.PathValue("id"))
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
