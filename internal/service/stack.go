package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/cinesearch/internal/config"
	"github.com/user/cinesearch/internal/eventbus"
	"github.com/user/cinesearch/internal/repository"
	"github.com/user/cinesearch/internal/utils"
)

// Stack 按配置组装好的全部服务，生命周期由调用方负责（Close）
type Stack struct {
	Repos      *repository.Repositories
	Provider   *TMDBService
	Index      *PGVectorIndex
	Classifier *Classifier
	Dedup      *DedupManager
	Search     *SearchService
	Executor   *Executor
	Bus        *eventbus.Bus
	Ingestion  *IngestionService
	Cleanup    *CleanupService

	redis *redis.Client
}

// NewStack 组装服务。ctx 为导入流水线的生命周期 context
func NewStack(ctx context.Context, cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rdb := newRedis(ctx, cfg.RedisURL, logger)
	provider := NewTMDBService(cfg, rdb)

	llm, err := NewCompleter(cfg)
	if err != nil {
		return nil, err
	}

	embedder := utils.NewOllamaEmbedder(cfg.OllamaHost, cfg.OllamaModel)
	index := NewPGVectorIndex(embedder, repos.Vector)
	dedup := NewDedupManager(repos.Movie, index, provider)
	classifier := NewClassifier(llm)
	search := NewSearchService(classifier, dedup, repos.Movie, index, provider, cfg.VectorLimit)

	executor, err := NewExecutor(search, cfg.SearchWorkers, cfg.QueryTimeout, cfg.QueryLogDir, logger)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(logger)
	return &Stack{
		Repos:      repos,
		Provider:   provider,
		Index:      index,
		Classifier: classifier,
		Dedup:      dedup,
		Search:     search,
		Executor:   executor,
		Bus:        bus,
		Ingestion:  NewIngestionService(ctx, bus, provider, repos.Movie, index, logger),
		Cleanup:    NewCleanupService(repos.SearchLog, cfg.SearchLogRetentionDays, logger),
		redis:      rdb,
	}, nil
}

// Close 释放协程池和 Redis 连接
func (s *Stack) Close() {
	s.Executor.Release()
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// NewCompleter 按 LLM_PROVIDER 选择意图解析用的模型，none 时返回 nil（只走关键词）
func NewCompleter(cfg *config.Config) (Completer, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "", "none":
		return nil, nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		return utils.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, ""), nil
	case "openai":
		return utils.NewChatCompleter(cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIToken)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// newRedis 未配置或连接失败时返回 nil，TMDB 响应不缓存
func newRedis(ctx context.Context, url string, logger *slog.Logger) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("REDIS_URL 无效，禁用 TMDB 缓存", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis 连接失败，禁用 TMDB 缓存", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}
