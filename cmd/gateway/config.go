package main

import (
	"time"

	"github.com/sitepulse/insight-gateway/internal/env"
)

type config struct {
	port                 string
	anthropicAPIKey      string
	anthropicURL         string
	anthropicModel       string
	openaiAPIKey         string
	openaiURL            string
	openaiModel          string
	analysisEngine       string
	maxTokens            int
	temperature          float64
	llmPoolSize          int
	ga4PoolSize          int
	maxConcurrentStreams int
	fallbackIndustry     string
	databaseURL          string
	redisURL             string
	cacheTTL             time.Duration
}

func loadConfig() config {
	return config{
		port:                 env.Str("GATEWAY_PORT", "8000"),
		anthropicAPIKey:      env.Str("ANTHROPIC_API_KEY", ""),
		anthropicURL:         env.Str("ANTHROPIC_URL", "https://api.anthropic.com"),
		anthropicModel:       env.Str("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		openaiAPIKey:         env.Str("OPENAI_API_KEY", ""),
		openaiURL:            env.Str("OPENAI_URL", ""),
		openaiModel:          env.Str("OPENAI_MODEL", "gpt-4o-mini"),
		analysisEngine:       env.Str("ANALYSIS_ENGINE", "anthropic"),
		maxTokens:            env.Int("ANALYSIS_MAX_TOKENS", 2048),
		temperature:          env.Float("ANALYSIS_TEMPERATURE", 0.7),
		llmPoolSize:          env.Int("LLM_POOL_SIZE", 50),
		ga4PoolSize:          env.Int("GA4_POOL_SIZE", 50),
		maxConcurrentStreams: env.Int("MAX_CONCURRENT_STREAMS", 100),
		fallbackIndustry:     env.Str("FALLBACK_INDUSTRY", "小売"),
		databaseURL:          env.Str("DATABASE_URL", ""),
		redisURL:             env.Str("REDIS_URL", ""),
		cacheTTL:             time.Duration(env.Int("CACHE_TTL_MINUTES", 60)) * time.Minute,
	}
}
