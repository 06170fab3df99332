package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sitepulse/insight-gateway/internal/httputil"
	"github.com/sitepulse/insight-gateway/internal/metrics"
)

// AnthropicClient streams completions from the Anthropic Messages API.
type AnthropicClient struct {
	apiKey      string
	url         string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewAnthropicClient creates an Anthropic streaming client.
func NewAnthropicClient(apiKey, url, model string, maxTokens int, temperature float64, poolSize int) *AnthropicClient {
	return &AnthropicClient{
		apiKey:      apiKey,
		url:         url,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      httputil.NewPooledClient(poolSize, 120*time.Second),
	}
}

// Complete sends the prompt as a single user message with streaming enabled
// and returns the accumulated response text.
func (c *AnthropicClient) Complete(ctx context.Context, prompt, model string, onToken TokenCallback) (string, error) {
	start := time.Now()

	useModel := c.model
	if model != "" {
		useModel = model
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       useModel,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("anthropic status %d: %s", resp.StatusCode, errBody)
	}

	text, ttft := consumeAnthropicStream(resp.Body, onToken)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ttft.IsZero() {
		metrics.TimeToFirstToken.Observe(ttft.Sub(start).Seconds())
	}
	return text, nil
}

// consumeAnthropicStream reads SSE frames until message_stop. Malformed
// data lines are expected mid-stream (frames split across network reads)
// and skipped silently.
func consumeAnthropicStream(body io.Reader, onToken TokenCallback) (string, time.Time) {
	var text strings.Builder
	var ttft time.Time
	var eventType string

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if eventType == "message_stop" {
			break
		}
		if eventType != "content_block_delta" {
			continue
		}

		var delta anthropicDeltaEvent
		if json.Unmarshal([]byte(data), &delta) != nil {
			continue
		}
		token := delta.Delta.Text
		if token == "" {
			continue
		}
		if ttft.IsZero() {
			ttft = time.Now()
		}
		if onToken != nil {
			onToken(token)
		}
		text.WriteString(token)
	}

	return text.String(), ttft
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicDeltaEvent struct {
	Delta anthropicDelta `json:"delta"`
}

type anthropicDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
