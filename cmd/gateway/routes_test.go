package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sitepulse/insight-gateway/internal/analysis"
	"github.com/sitepulse/insight-gateway/internal/relay"
)

const modelResponse = `Analysis follows. {"improvements":[{"title":"内部リンク","reason":"直帰率55%","action":"リンクを追加する","priority":"high","icon":"📈"}],"industryComparison":{"bounceRate":{"value":55.0,"industryAvg":50,"status":"average"}},"priorityAction":{"title":"人気記事","description":"d","impact":"高","effort":"低"},"summary":"検索流入中心"}`

type fakeBackend struct {
	tokens []string
	err    error
}

func (f *fakeBackend) Complete(ctx context.Context, prompt, model string, onToken relay.TokenCallback) (string, error) {
	for _, tok := range f.tokens {
		if onToken != nil {
			onToken(tok)
		}
	}
	return strings.Join(f.tokens, ""), f.err
}

func testMux(backend relay.Completer) *http.ServeMux {
	d := deps{
		cfg:        config{fallbackIndustry: "小売"},
		relay:      relay.New(relay.NewBackendRouter(map[string]relay.Completer{"anthropic": backend}, "anthropic")),
		wsHandler:  http.NotFoundHandler(),
		configured: backend != nil,
	}
	mux := http.NewServeMux()
	registerRoutes(mux, d)
	return mux
}

func validBody() string {
	return `{"pageViews":500,"users":200,"sessions":100,"bounceRate":55.0,"avgSessionDuration":130,"industry":"メディア"}`
}

func TestHealth(t *testing.T) {
	mux := testMux(&fakeBackend{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	mux := testMux(&fakeBackend{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/analyze", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestAnalyzePreflight(t *testing.T) {
	mux := testMux(&fakeBackend{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/analyze", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers")
	}
}

func TestAnalyzeUnconfigured(t *testing.T) {
	mux := testMux(nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/analyze", strings.NewReader(validBody())))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestAnalyzeBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"empty snapshot", `{}`},
		{"negative counters", `{"pageViews":-1}`},
		{"bounce rate out of range", `{"pageViews":10,"sessions":5,"bounceRate":150}`},
	}
	mux := testMux(&fakeBackend{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/analyze", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("code = %d, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAnalyzeOnce(t *testing.T) {
	mux := testMux(&fakeBackend{tokens: []string{modelResponse}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/analyze", strings.NewReader(validBody())))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result analysis.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Summary != "検索流入中心" {
		t.Errorf("Summary = %q", result.Summary)
	}
}

func TestAnalyzeOnceUpstreamFailure(t *testing.T) {
	mux := testMux(&fakeBackend{err: errors.New("status 529")})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/analyze", strings.NewReader(validBody())))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to get AI analysis") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAnalyzeOnceParseFailure(t *testing.T) {
	mux := testMux(&fakeBackend{tokens: []string{"no json here"}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/analyze", strings.NewReader(validBody())))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to parse AI response") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAnalyzeStreaming(t *testing.T) {
	tokens := []string{"Analysis follows. ", modelResponse[len("Analysis follows. "):]}
	mux := testMux(&fakeBackend{tokens: tokens})

	req := httptest.NewRequest("POST", "/api/analyze", strings.NewReader(validBody()))
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}

	var frames []relay.Event
	var sawDone bool
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		var ev relay.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("bad frame %q: %v", payload, err)
		}
		frames = append(frames, ev)
	}

	if !sawDone {
		t.Error("stream missing [DONE] sentinel")
	}
	if len(frames) != len(tokens)+1 {
		t.Fatalf("len(frames) = %d, frames = %+v", len(frames), frames)
	}
	for i, tok := range tokens {
		if frames[i].Type != relay.EventChunk || frames[i].Text != tok {
			t.Errorf("frames[%d] = %+v", i, frames[i])
		}
	}
	last := frames[len(frames)-1]
	if last.Type != relay.EventComplete || last.Analysis == nil || last.Analysis.Summary != "検索流入中心" {
		t.Errorf("terminal frame = %+v", last)
	}
}

func TestAnalyzeStreamingError(t *testing.T) {
	mux := testMux(&fakeBackend{err: errors.New("connection reset")})

	req := httptest.NewRequest("POST", "/api/analyze", strings.NewReader(validBody()))
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"error"`) || !strings.Contains(body, "Failed to get AI analysis") {
		t.Errorf("body = %s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Errorf("stream did not end with [DONE]: %s", body)
	}
}

func TestHistoryDisabled(t *testing.T) {
	mux := testMux(&fakeBackend{})
	for _, path := range []string{"/api/analyses", "/api/analyses/abc"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s code = %d", path, rec.Code)
		}
	}
}

func TestSnapshotRequiresToken(t *testing.T) {
	mux := testMux(&fakeBackend{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/snapshot?property=123", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestSnapshotRequiresProperty(t *testing.T) {
	mux := testMux(&fakeBackend{})
	req := httptest.NewRequest("GET", "/api/snapshot", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d", rec.Code)
	}
}
