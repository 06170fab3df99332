package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/sitepulse/insight-gateway/internal/metrics"
)

// OpenAIClient streams completions from OpenAI or any OpenAI-compatible
// endpoint via the official SDK.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIClient creates an OpenAI streaming client. baseURL overrides the
// production endpoint when non-empty.
func NewOpenAIClient(apiKey, baseURL, model string, maxTokens int, temperature float64) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete streams a chat completion and returns the accumulated text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt, model string, onToken TokenCallback) (string, error) {
	start := time.Now()

	useModel := c.model
	if model != "" {
		useModel = model
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(useModel),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
		Temperature: openai.Float(c.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})

	var text strings.Builder
	var ttft time.Time
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
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
	if err := stream.Err(); err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return "", fmt.Errorf("openai stream: %w", err)
	}

	if !ttft.IsZero() {
		metrics.TimeToFirstToken.Observe(ttft.Sub(start).Seconds())
	}
	return text.String(), nil
}
