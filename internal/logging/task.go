package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/user/cinesearch/internal/utils"
)

type ctxKey struct{}

// Task 单个查询的执行上下文：关联 ID + 独立日志
type Task struct {
	ID     string
	Key    string
	Logger *slog.Logger
	Path   string

	file      *os.File
	closeOnce sync.Once
}

// OpenTask 为查询创建任务日志。dir 非空时额外写入 <dir>/<查询>-<短ID>.log
func OpenTask(base *slog.Logger, dir, key, query string) (*Task, error) {
	if base == nil {
		base = slog.Default()
	}
	id := uuid.NewString()
	t := &Task{ID: id, Key: key}

	handler := base.Handler()
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		name := fmt.Sprintf("%s-%s.log", utils.SanitizeLogName(query), id[:8])
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("打开查询日志失败: %w", err)
		}
		t.file = f
		t.Path = path
		handler = fanout{handler, slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})}
	}

	t.Logger = slog.New(handler).With("correlation_id", id, "query_key", key)
	return t, nil
}

// Close 释放日志文件，可重复调用
func (t *Task) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.file != nil {
			err = t.file.Close()
		}
	})
	return err
}

// Writer 任务日志文件，没有文件时丢弃
func (t *Task) Writer() io.Writer {
	if t.file == nil {
		return io.Discard
	}
	return t.file
}

// WithLogger 把日志器放入 context
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext 取出 context 中的日志器，没有则返回默认日志器
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// fanout 把同一条记录写到多个 handler
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
