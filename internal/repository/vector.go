package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/user/cinesearch/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VectorRepository pgvector 存储，每部电影一条向量
// 表在首次使用时创建，Recreate 会删除后重建
type VectorRepository struct {
	db  *gorm.DB
	dim int

	mu    sync.Mutex
	ready bool
}

func NewVectorRepository(db *gorm.DB, dim int) *VectorRepository {
	return &VectorRepository{db: db, dim: dim}
}

// Dim 向量维度
func (r *VectorRepository) Dim() int {
	return r.dim
}

func (r *VectorRepository) ensureCollection(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	db := r.db.WithContext(ctx)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS movie_vectors (
			tmdb_id BIGINT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, r.dim),
		`CREATE INDEX IF NOT EXISTS idx_movie_vectors_embedding ON movie_vectors USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("创建向量表失败: %w", err)
		}
	}
	r.ready = true
	return nil
}

// Recreate 删除并重建向量表
func (r *VectorRepository) Recreate(ctx context.Context) error {
	r.mu.Lock()
	err := r.db.WithContext(ctx).Exec(`DROP TABLE IF EXISTS movie_vectors`).Error
	r.ready = false
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("删除向量表失败: %w", err)
	}
	return r.ensureCollection(ctx)
}

// UpsertBatch 批量写入向量
func (r *VectorRepository) UpsertBatch(ctx context.Context, vectors []model.MovieVector) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := r.ensureCollection(ctx); err != nil {
		return err
	}

	now := time.Now()
	for i := range vectors {
		if got := len(vectors[i].Embedding.Slice()); got != r.dim {
			return fmt.Errorf("向量维度不匹配: 期望 %d, 实际 %d (tmdb_id=%d)", r.dim, got, vectors[i].TMDBID)
		}
		vectors[i].UpdatedAt = now
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tmdb_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "updated_at"}),
		}).CreateInBatches(vectors, upsertBatchSize).Error
	})
}

// NearestNeighbors 余弦距离最近邻；certainty 按 1 - distance/2 归一到 [0,1]
func (r *VectorRepository) NearestNeighbors(ctx context.Context, query []float32, limit int) ([]model.VectorHit, error) {
	if err := r.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	var rows []struct {
		TMDBID   int64
		Distance float64
	}
	vec := pgvector.NewVector(query)
	err := r.db.WithContext(ctx).Raw(`
		SELECT tmdb_id, embedding <=> ? AS distance
		FROM movie_vectors
		ORDER BY embedding <=> ?
		LIMIT ?
	`, vec, vec, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	hits := make([]model.VectorHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, model.VectorHit{
			TMDBID:    row.TMDBID,
			Distance:  row.Distance,
			Certainty: 1 - row.Distance/2,
		})
	}
	return hits, nil
}

// Count 向量数量
func (r *VectorRepository) Count(ctx context.Context) (int64, error) {
	if err := r.ensureCollection(ctx); err != nil {
		return 0, err
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&model.MovieVector{}).Count(&count).Error
	return count, err
}
