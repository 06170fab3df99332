// Package consumer is the client side of the analysis stream: it dispatches
// snapshot analysis requests to the gateway, consumes the SSE event stream,
// and exposes a small state machine (idle, streaming, complete, error) to
// rendering callers.
//
// At most one stream is live per Consumer: Start cancels any in-flight
// session before opening a new connection. Cancellation is silent; it resets
// to idle and never populates the error field, so callers can tell
// user-navigated-away from genuine failure.
package consumer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sitepulse/insight-gateway/internal/analysis"
	"github.com/sitepulse/insight-gateway/internal/httputil"
	"github.com/sitepulse/insight-gateway/internal/snapshot"
)

// Status is the lifecycle state of the current analysis session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// State is a read-only snapshot of the consumer handed to callers between
// event ticks.
type State struct {
	Status        Status
	StreamingText string
	Result        *analysis.Result
	Err           string
}

// Consumer manages the request lifecycle against the gateway's analyze
// endpoint. Safe for concurrent use.
type Consumer struct {
	endpoint string
	client   *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
	state  State
}

// New creates a consumer for the given analyze endpoint URL. client may be
// nil, in which case a pooled default is used.
func New(endpoint string, client *http.Client) *Consumer {
	if client == nil {
		client = httputil.NewPooledClient(10, 0)
	}
	return &Consumer{
		endpoint: endpoint,
		client:   client,
		state:    State{Status: StatusIdle},
	}
}

// streamFrame mirrors the gateway's SSE event payload.
type streamFrame struct {
	Type     string           `json:"type"`
	Text     string           `json:"text"`
	Analysis *analysis.Result `json:"analysis"`
	Error    string           `json:"error"`
}

// Start dispatches a new analysis session. Any live session is cancelled
// before the new connection opens. The returned channel delivers the
// session's final state and is then closed; a superseded session's channel
// still closes.
func (c *Consumer) Start(ctx context.Context, snap *snapshot.Snapshot) <-chan State {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.state = State{Status: StatusStreaming}
	c.mu.Unlock()

	done := make(chan State, 1)
	go c.run(sctx, gen, snap, done)
	return done
}

// Cancel aborts the live session, if any. The session resets to idle
// without surfacing an error.
func (c *Consumer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// State returns the current session state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Consumer) run(ctx context.Context, gen uint64, snap *snapshot.Snapshot, done chan<- State) {
	defer close(done)

	final := c.request(ctx, gen, snap)
	done <- final
}

func (c *Consumer) request(ctx context.Context, gen uint64, snap *snapshot.Snapshot) State {
	body, err := json.Marshal(snap)
	if err != nil {
		return c.fail(ctx, gen, fmt.Sprintf("encode snapshot: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return c.fail(ctx, gen, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(ctx, gen, "analysis request failed")
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return c.fallback(ctx, gen, resp)
	}

	return c.consumeStream(ctx, gen, resp)
}

// consumeStream reads SSE frames until the [DONE] sentinel. Frames arrive
// in upstream order; the terminal complete/error frame precedes [DONE].
func (c *Consumer) consumeStream(ctx context.Context, gen uint64, resp *http.Response) State {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if payload == "[DONE]" {
			// Defensive: a stream that ended without a terminal frame must
			// not leave the caller stuck in streaming.
			return c.update(gen, func(s *State) {
				if s.Status == StatusStreaming {
					s.Status = StatusComplete
				}
			})
		}

		var frame streamFrame
		if json.Unmarshal([]byte(payload), &frame) != nil {
			// Partial frames split across reads are expected noise.
			continue
		}

		switch frame.Type {
		case "chunk":
			c.update(gen, func(s *State) { s.StreamingText += frame.Text })
		case "complete":
			c.update(gen, func(s *State) {
				s.Result = frame.Analysis
				s.Status = StatusComplete
			})
		case "error":
			c.update(gen, func(s *State) {
				s.Status = StatusError
				s.Err = frame.Error
			})
		}
	}

	if ctx.Err() != nil {
		return c.reset(gen)
	}

	// Stream ended without [DONE]; same defensive transition.
	return c.update(gen, func(s *State) {
		if s.Status == StatusStreaming {
			s.Status = StatusComplete
		}
	})
}

// fallback handles a non-event-stream response: a single JSON analysis body,
// or a JSON error object on non-2xx.
func (c *Consumer) fallback(ctx context.Context, gen uint64, resp *http.Response) State {
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = fmt.Sprintf("analysis failed with status %d", resp.StatusCode)
		}
		return c.fail(ctx, gen, apiErr.Error)
	}

	var result analysis.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return c.fail(ctx, gen, "decode analysis response")
	}
	return c.update(gen, func(s *State) {
		s.Result = &result
		s.Status = StatusComplete
	})
}

// fail records an error state unless the session was cancelled, in which
// case it resets silently.
func (c *Consumer) fail(ctx context.Context, gen uint64, msg string) State {
	if ctx.Err() != nil {
		return c.reset(gen)
	}
	return c.update(gen, func(s *State) {
		s.Status = StatusError
		s.Err = msg
	})
}

// reset is the silent cancellation transition: back to idle, no error.
func (c *Consumer) reset(gen uint64) State {
	return c.update(gen, func(s *State) {
		*s = State{Status: StatusIdle}
	})
}

// update applies fn to the shared state only if this session is still the
// live one, so a superseded session cannot clobber its successor. It returns
// the session's view of the state either way.
func (c *Consumer) update(gen uint64, fn func(*State)) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return State{Status: StatusIdle}
	}
	fn(&c.state)
	return c.state
}

// WaitTimeout is a test and CLI helper: it waits for the session's final
// state or gives up after d.
func WaitTimeout(done <-chan State, d time.Duration) (State, bool) {
	select {
	case s := <-done:
		return s, true
	case <-time.After(d):
		return State{}, false
	}
}
