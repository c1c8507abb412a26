package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/user/cinesearch/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 100

// movieUpdateColumns 冲突时覆盖的列（后写入者为准）
var movieUpdateColumns = []string{
	"title", "overview", "release_date", "popularity", "vote_average", "vote_count",
	"poster_path", "backdrop_path", "original_language", "original_title",
	"adult", "video", "genre_ids", "updated_at",
}

type MovieRepository struct {
	db *gorm.DB
}

func NewMovieRepository(db *gorm.DB) *MovieRepository {
	return &MovieRepository{db: db}
}

// Exists 判断电影是否已在目录中
func (r *MovieRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Movie{}).
		Where("tmdb_id = ?", id).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// ExistingIDs 批量判断存在性，返回已存在的 ID 集合
func (r *MovieRepository) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	existing := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	var found []int64
	err := r.db.WithContext(ctx).Model(&model.Movie{}).
		Where("tmdb_id IN ?", ids).
		Pluck("tmdb_id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

// UpsertBatch 在单个事务中创建或更新电影，失败时整体回滚
// director_name 只在新值非空时覆盖，避免语义检索补全时清掉导演信息
func (r *MovieRepository) UpsertBatch(ctx context.Context, movies []model.Movie) (int64, error) {
	if len(movies) == 0 {
		return 0, nil
	}

	updates := clause.AssignmentColumns(movieUpdateColumns)
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "director_name"},
		Value:  gorm.Expr("COALESCE(EXCLUDED.director_name, movies.director_name)"),
	})

	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tmdb_id"}},
			DoUpdates: updates,
		}).CreateInBatches(movies, upsertBatchSize)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// GetByIDs 批量查询，顺序不保证
func (r *MovieRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Movie, error) {
	var movies []model.Movie
	if len(ids) == 0 {
		return movies, nil
	}
	err := r.db.WithContext(ctx).Where("tmdb_id IN ?", ids).Find(&movies).Error
	return movies, err
}

// GetByTitle 按标题查找（不区分大小写），同名时取热度最高的一部
func (r *MovieRepository) GetByTitle(ctx context.Context, title string) (*model.Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}

	var movie model.Movie
	err := r.db.WithContext(ctx).
		Where("lower(title) = lower(?)", title).
		Order("popularity DESC").
		First(&movie).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// Count 目录中的电影数量
func (r *MovieRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Movie{}).Count(&count).Error
	return count, err
}

// ClearAll 清空目录
func (r *MovieRepository) ClearAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec(`TRUNCATE TABLE movies`).Error
}
