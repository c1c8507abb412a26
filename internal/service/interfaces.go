package service

import (
	"context"
	"errors"

	"github.com/user/cinesearch/internal/model"
)

var (
	ErrPersonNotFound  = errors.New("person not found")
	ErrEmptyQuery      = errors.New("empty query")
	ErrMalformedRecord = errors.New("malformed record")
)

// CatalogStore 电影目录存储
type CatalogStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	UpsertBatch(ctx context.Context, movies []model.Movie) (int64, error)
	GetByIDs(ctx context.Context, ids []int64) ([]model.Movie, error)
	GetByTitle(ctx context.Context, title string) (*model.Movie, error)
	ClearAll(ctx context.Context) error
}

// VectorIndex 向量索引，按查询文本返回最近邻
type VectorIndex interface {
	UpsertMovies(ctx context.Context, movies []model.Movie) (int, error)
	NearestNeighbors(ctx context.Context, text string, limit int) ([]model.VectorHit, error)
	Recreate(ctx context.Context) error
}

// MetadataProvider 外部元数据源，无结果时返回空列表
type MetadataProvider interface {
	SearchByText(ctx context.Context, query string) ([]model.RawMetadata, error)
	SearchPerson(ctx context.Context, name string) ([]model.PersonRecord, error)
	GetDirectorCredits(ctx context.Context, personID int64) ([]model.RawMetadata, error)
}

// DiscoverFeed 批量导入的数据源
type DiscoverFeed interface {
	Discover(ctx context.Context, page int) ([]model.RawMetadata, error)
}

// Completer 单轮 LLM 调用
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder 文本向量化
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore 向量持久化
type VectorStore interface {
	UpsertBatch(ctx context.Context, vectors []model.MovieVector) error
	NearestNeighbors(ctx context.Context, query []float32, limit int) ([]model.VectorHit, error)
	Recreate(ctx context.Context) error
}

// SearchLogStore 搜索日志存储
type SearchLogStore interface {
	Log(ctx context.Context, entry *model.SearchLog) error
	DeleteOldLogs(ctx context.Context, days int) (int64, error)
}
