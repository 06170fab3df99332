// Package relay bridges an upstream model token stream to a downstream
// event sink. Tokens are forwarded raw as they arrive; when the upstream
// stream ends, the accumulated text is parsed once into a structured
// analysis and a terminal event is emitted, always followed by a done
// sentinel.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/sitepulse/insight-gateway/internal/analysis"
	"github.com/sitepulse/insight-gateway/internal/extract"
	"github.com/sitepulse/insight-gateway/internal/metrics"
)

// Downstream event types. The terminal event (complete or error) is always
// the last content event before done; consumers may rely on done as a
// no-more-events signal.
const (
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
	EventDone     = "done"
)

// Event is one downstream stream event.
type Event struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	Analysis *analysis.Result `json:"analysis,omitempty"`
	Err      string           `json:"error,omitempty"`
}

// Sink receives downstream events in order.
type Sink func(Event)

// TokenCallback is called for each streamed token.
type TokenCallback func(token string)

// Completer streams a completion for a prompt, invoking onToken per delta,
// and returns the full accumulated text.
type Completer interface {
	Complete(ctx context.Context, prompt, model string, onToken TokenCallback) (string, error)
}

// ErrUpstream wraps connection and status failures from the model provider,
// distinguishing them from parse failures for retry decisions upstream.
var ErrUpstream = errors.New("upstream analysis request failed")

// User-facing error strings, matching what dashboard clients display.
const (
	msgUpstreamFailed = "Failed to get AI analysis"
	msgParseFailed    = "Failed to parse AI response"
)

// Relay runs analysis requests against a routed backend.
type Relay struct {
	router *BackendRouter
}

// New creates a relay over the given backend router.
func New(router *BackendRouter) *Relay {
	return &Relay{router: router}
}

// Run streams one analysis. Every token is forwarded to sink as a chunk
// event and fed to the incremental extractor; at stream end exactly one
// complete or error event is emitted, then done. Run holds no state after
// it returns.
func (r *Relay) Run(ctx context.Context, prompt, engine, model string, sink Sink) (*analysis.Result, error) {
	backend, err := r.router.Route(engine)
	if err != nil {
		metrics.Errors.WithLabelValues("relay", "config").Inc()
		sink(Event{Type: EventError, Err: msgUpstreamFailed})
		sink(Event{Type: EventDone})
		return nil, err
	}

	start := time.Now()
	var scanner extract.Scanner

	_, err = backend.Complete(ctx, prompt, model, func(token string) {
		scanner.Feed(token)
		metrics.StreamChunks.Inc()
		sink(Event{Type: EventChunk, Text: token})
	})
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Errors.WithLabelValues("llm", "upstream").Inc()
		sink(Event{Type: EventError, Err: msgUpstreamFailed})
		sink(Event{Type: EventDone})
		return nil, errors.Join(ErrUpstream, err)
	}

	obj, err := scanner.Result()
	if err != nil {
		metrics.Errors.WithLabelValues("extract", kind(err)).Inc()
		sink(Event{Type: EventError, Err: msgParseFailed})
		sink(Event{Type: EventDone})
		return nil, err
	}

	result, err := analysis.Decode([]byte(obj))
	if err != nil {
		metrics.Errors.WithLabelValues("extract", "schema").Inc()
		sink(Event{Type: EventError, Err: msgParseFailed})
		sink(Event{Type: EventDone})
		return nil, err
	}

	sink(Event{Type: EventComplete, Analysis: result})
	sink(Event{Type: EventDone})
	return result, nil
}

func kind(err error) string {
	if errors.Is(err, extract.ErrNoObject) {
		return "no_object"
	}
	return "malformed"
}
