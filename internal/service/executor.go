package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/user/cinesearch/internal/logging"
	"github.com/user/cinesearch/internal/metrics"
	"github.com/user/cinesearch/internal/model"
)

// QueryRunner 单条查询的检索流程
type QueryRunner interface {
	Run(ctx context.Context, query string, cfg model.SearchConfig) model.RetrievalResult
}

// QueryJob 一条待执行的查询
type QueryJob struct {
	Key    string             `json:"key"`
	Query  string             `json:"query" binding:"required"`
	Config model.SearchConfig `json:"config"`
}

// Executor 固定大小的协程池并发执行查询，每条查询有独立日志，失败互不影响
type Executor struct {
	runner  QueryRunner
	pool    *ants.Pool
	timeout time.Duration
	logDir  string
	logger  *slog.Logger
}

// NewExecutor timeout 为 0 时不限时
func NewExecutor(runner QueryRunner, workers int, timeout time.Duration, logDir string, logger *slog.Logger) (*Executor, error) {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("创建协程池失败: %w", err)
	}
	return &Executor{
		runner:  runner,
		pool:    pool,
		timeout: timeout,
		logDir:  logDir,
		logger:  logger.With("component", "executor"),
	}, nil
}

// Release 释放协程池
func (e *Executor) Release() {
	e.pool.Release()
}

// RunAll 并发执行所有查询，按 key 汇总结果。每个 key 都会有结果，失败时 Error 非空
func (e *Executor) RunAll(ctx context.Context, jobs []QueryJob) map[string]model.RetrievalResult {
	results := make(map[string]model.RetrievalResult, len(jobs))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(key string, res model.RetrievalResult) {
		mu.Lock()
		defer mu.Unlock()
		if _, dup := results[key]; dup {
			e.logger.Warn("重复的查询 key，结果被覆盖", "key", key)
		}
		results[key] = res
	}

	for i, job := range jobs {
		job := job
		if job.Key == "" {
			job.Key = fmt.Sprintf("query_%d", i+1)
		}
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			record(job.Key, e.runOne(ctx, job))
		})
		if err != nil {
			wg.Done()
			e.logger.Error("提交查询失败", "key", job.Key, "error", err)
			res := model.EmptyResult(job.Query)
			res.Error = err.Error()
			metrics.QueryFailuresTotal.WithLabelValues("rejected").Inc()
			record(job.Key, res)
		}
	}

	wg.Wait()
	return results
}

func (e *Executor) runOne(ctx context.Context, job QueryJob) (res model.RetrievalResult) {
	task, err := logging.OpenTask(e.logger, e.logDir, job.Key, job.Query)
	if err != nil {
		// 无法打开独立日志时仍然执行，只是日志写到主日志
		e.logger.Warn("打开查询日志失败", "key", job.Key, "error", err)
		task, _ = logging.OpenTask(e.logger, "", job.Key, job.Query)
	}
	defer func() {
		if err := task.Close(); err != nil {
			e.logger.Warn("关闭查询日志失败", "key", job.Key, "error", err)
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	ctx = logging.WithLogger(ctx, task.Logger)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			task.Logger.Error("查询执行异常", "panic", r)
			metrics.QueryFailuresTotal.WithLabelValues("panic").Inc()
			res = model.EmptyResult(job.Query)
			res.Error = fmt.Sprintf("query pipeline failed: %v", r)
		}
		res.CorrelationID = task.ID
		task.Logger.Info("查询结束", "duration", time.Since(start), "error", res.Error)
	}()

	res = e.runner.Run(ctx, job.Query, job.Config)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && res.Error == "" {
		metrics.QueryFailuresTotal.WithLabelValues("timeout").Inc()
		res.Error = fmt.Sprintf("query timed out after %s", e.timeout)
	}
	return res
}
