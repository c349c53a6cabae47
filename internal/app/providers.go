package app

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai/assemblyai"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai/real"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	"github.com/fairyhunter13/ai-interview-auditor/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-interview-auditor/internal/usecase"
)

// NewRedisClient parses REDIS_URL. An empty URL returns a nil client.
func NewRedisClient(cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=app.redis: %w", err)
	}
	return redis.NewClient(opts), nil
}

// BuildAI returns the transcriber and the assistant selected by AI_PROVIDER.
// Transcription always goes through AssemblyAI; only the LLM side switches.
// When rdb is set and UPSTREAM_RATE_LIMIT_PER_MIN is positive, assistant calls
// draw from a shared token bucket.
func BuildAI(cfg config.Config, rdb *redis.Client) (domain.Transcriber, domain.Assistant) {
	aai := assemblyai.New(cfg)

	var assistant domain.Assistant = aai
	if cfg.AIProvider == config.ProviderOpenRouter {
		assistant = real.New(cfg)
	}

	if rdb != nil && cfg.UpstreamRateLimitPerMin > 0 {
		limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			cfg.AIProvider: ratelimiter.NewBucketConfigFromPerMinute(cfg.UpstreamRateLimitPerMin),
		})
		if limiter != nil {
			assistant = ai.NewRateLimitedAssistant(assistant, limiter, cfg.AIProvider)
		}
	}
	slog.Info("ai provider configured",
		slog.String("provider", cfg.AIProvider),
		slog.Int("upstream_rate_limit_per_min", cfg.UpstreamRateLimitPerMin))
	return aai, assistant
}

// BuildDispatcher loads the prompt catalog and assembles the analysis round.
func BuildDispatcher(cfg config.Config, assistant domain.Assistant) (*usecase.Dispatcher, *ai.Caller, error) {
	catalog, err := config.LoadCatalog(cfg.PromptCatalogPath)
	if err != nil {
		return nil, nil, err
	}
	caller := ai.NewCaller(cfg.GetRetryPolicy())
	pipeline := usecase.NewPipeline(assistant, caller, catalog, usecase.PipelineOptions{
		AllowEmptyExtraction: cfg.AllowEmptyExtraction,
		GradingConcurrency:   cfg.GradingConcurrency,
	})
	return usecase.NewDispatcher(pipeline, cfg.RoundConcurrency, cfg.SummarizeQuestions), caller, nil
}
