package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"
	"github.com/user/cinesearch/internal/logging"
	"github.com/user/cinesearch/internal/metrics"
	"github.com/user/cinesearch/internal/model"
	"golang.org/x/sync/errgroup"
)

const embedConcurrency = 4

// PGVectorIndex 基于 Ollama 向量 + pgvector 的索引
type PGVectorIndex struct {
	embedder Embedder
	store    VectorStore
}

func NewPGVectorIndex(embedder Embedder, store VectorStore) *PGVectorIndex {
	return &PGVectorIndex{embedder: embedder, store: store}
}

// EmbeddingText 用简介生成向量，没有简介时退回片名
func EmbeddingText(m model.Movie) string {
	if text := strings.TrimSpace(m.Overview); text != "" {
		return text
	}
	return strings.TrimSpace(m.Title)
}

// UpsertMovies 批量生成向量并写入；单条生成失败只跳过该条
func (v *PGVectorIndex) UpsertMovies(ctx context.Context, movies []model.Movie) (int, error) {
	if len(movies) == 0 {
		return 0, nil
	}
	logger := logging.FromContext(ctx)

	var (
		mu      sync.Mutex
		vectors = make([]model.MovieVector, 0, len(movies))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for _, m := range movies {
		m := m
		text := EmbeddingText(m)
		if text == "" {
			logger.Warn("跳过无文本的电影", "tmdb_id", m.TMDBID)
			continue
		}
		g.Go(func() error {
			emb, err := v.embedder.Embed(gctx, text)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("生成向量失败", "tmdb_id", m.TMDBID, "error", err)
				return nil
			}
			mu.Lock()
			vectors = append(vectors, model.MovieVector{TMDBID: m.TMDBID, Embedding: pgvector.NewVector(emb)})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	if err := v.store.UpsertBatch(ctx, vectors); err != nil {
		metrics.VectorWritesTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("写入向量失败: %w", err)
	}
	metrics.VectorWritesTotal.WithLabelValues("ok").Inc()
	logger.Debug("向量写入完成", slog.Int("count", len(vectors)))
	return len(vectors), nil
}

// NearestNeighbors 对查询文本生成向量后检索
func (v *PGVectorIndex) NearestNeighbors(ctx context.Context, text string, limit int) ([]model.VectorHit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	emb, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("生成查询向量失败: %w", err)
	}
	return v.store.NearestNeighbors(ctx, emb, limit)
}

func (v *PGVectorIndex) Recreate(ctx context.Context) error {
	return v.store.Recreate(ctx)
}
