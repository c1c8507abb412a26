package repository

import (
	"context"
	"time"

	"github.com/user/cinesearch/internal/model"
	"gorm.io/gorm"
)

type SearchLogRepository struct {
	db *gorm.DB
}

func NewSearchLogRepository(db *gorm.DB) *SearchLogRepository {
	return &SearchLogRepository{db: db}
}

// Log 记录搜索日志
func (r *SearchLogRepository) Log(ctx context.Context, entry *model.SearchLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// Recent 最近的搜索记录
func (r *SearchLogRepository) Recent(ctx context.Context, limit int) ([]model.SearchLog, error) {
	var logs []model.SearchLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// DeleteOldLogs 清理超过指定天数的搜索日志
func (r *SearchLogRepository) DeleteOldLogs(ctx context.Context, days int) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		DELETE FROM search_logs
		WHERE created_at < NOW() - INTERVAL '1 day' * ?
	`, days)
	return result.RowsAffected, result.Error
}
