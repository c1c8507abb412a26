package handler

import (
	"context"
	"log/slog"

	"github.com/user/cinesearch/internal/config"
	"github.com/user/cinesearch/internal/eventbus"
	"github.com/user/cinesearch/internal/model"
	"github.com/user/cinesearch/internal/service"
)

// QueryExecutor 并发执行查询
type QueryExecutor interface {
	RunAll(ctx context.Context, jobs []service.QueryJob) map[string]model.RetrievalResult
}

// MovieReader 电影目录只读接口
type MovieReader interface {
	GetByIDs(ctx context.Context, ids []int64) ([]model.Movie, error)
}

// SearchLogStore 搜索日志
type SearchLogStore interface {
	Log(ctx context.Context, entry *model.SearchLog) error
	Recent(ctx context.Context, limit int) ([]model.SearchLog, error)
}

// Ingester 批量导入
type Ingester interface {
	TryStart(pages int, recreateIndex bool, done func(eventbus.IngestionCompleted, error)) error
	Clear(ctx context.Context) error
	Running() bool
}

// Handler HTTP 处理器
type Handler struct {
	Config    *config.Config
	Executor  QueryExecutor
	Movies    MovieReader
	Logs      SearchLogStore
	Ingestion Ingester
	Logger    *slog.Logger
}

// NewHandler 创建处理器
func NewHandler(cfg *config.Config, exec QueryExecutor, movies MovieReader, logs SearchLogStore, ingestion Ingester, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Config:    cfg,
		Executor:  exec,
		Movies:    movies,
		Logs:      logs,
		Ingestion: ingestion,
		Logger:    logger.With("component", "handler"),
	}
}
