package service

import (
	"context"
	"log/slog"
	"time"
)

// CleanupService 清理服务
type CleanupService struct {
	logs          SearchLogStore
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

// NewCleanupService 创建清理服务
func NewCleanupService(logs SearchLogStore, retentionDays int, logger *slog.Logger) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		logs:          logs,
		retentionDays: retentionDays,
		interval:      24 * time.Hour,
		logger:        logger.With("component", "cleanup"),
	}
}

// Start 启动定时清理任务，ctx 取消后退出
func (s *CleanupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		// 启动时先运行一次
		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce 删除超过保留天数的搜索日志
func (s *CleanupService) RunOnce(ctx context.Context) int64 {
	s.logger.Info("开始清理过期数据...")

	affected, err := s.logs.DeleteOldLogs(ctx, s.retentionDays)
	if err != nil {
		s.logger.Error("清理搜索日志失败", "error", err)
		return 0
	}
	if affected > 0 {
		s.logger.Info("已清理过期搜索日志", "count", affected, "retention_days", s.retentionDays)
	}
	return affected
}
