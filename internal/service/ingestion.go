package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/cinesearch/internal/eventbus"
	"github.com/user/cinesearch/internal/metrics"
	"github.com/user/cinesearch/internal/model"
)

var ErrIngestionRunning = errors.New("ingestion already running")

// IngestionService 批量导入：拉取 → 入库 → 生成向量 → 完成，各阶段通过事件总线串联
type IngestionService struct {
	ctx    context.Context
	bus    *eventbus.Bus
	feed   DiscoverFeed
	store  CatalogStore
	index  VectorIndex
	logger *slog.Logger

	running sync.Mutex
	mu      sync.Mutex
	// sink 接收本次运行的完成事件，只由 run 读取，各阶段只读自己的事件
	sink chan eventbus.IngestionCompleted
}

// NewIngestionService ctx 为各阶段共用的生命周期 context
func NewIngestionService(ctx context.Context, bus *eventbus.Bus, feed DiscoverFeed, store CatalogStore, index VectorIndex, logger *slog.Logger) *IngestionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &IngestionService{
		ctx:    ctx,
		bus:    bus,
		feed:   feed,
		store:  store,
		index:  index,
		logger: logger.With("component", "ingestion"),
	}
	eventbus.Subscribe(bus, s.handleStart)
	eventbus.Subscribe(bus, s.handleFetched)
	eventbus.Subscribe(bus, s.handleSaved)
	eventbus.Subscribe(bus, s.handleCompleted)
	return s
}

// Ingest 同步执行一次完整导入并返回统计
func (s *IngestionService) Ingest(pages int, recreateIndex bool) (eventbus.IngestionCompleted, error) {
	if !s.running.TryLock() {
		return eventbus.IngestionCompleted{}, ErrIngestionRunning
	}
	defer s.running.Unlock()
	return s.run(pages, recreateIndex)
}

// TryStart 同步占用导入槽位后在后台执行，已有导入时返回 ErrIngestionRunning
func (s *IngestionService) TryStart(pages int, recreateIndex bool, done func(eventbus.IngestionCompleted, error)) error {
	if !s.running.TryLock() {
		return ErrIngestionRunning
	}
	go func() {
		defer s.running.Unlock()
		report, err := s.run(pages, recreateIndex)
		if done != nil {
			done(report, err)
		}
	}()
	return nil
}

func (s *IngestionService) run(pages int, recreateIndex bool) (eventbus.IngestionCompleted, error) {
	sink := make(chan eventbus.IngestionCompleted, 1)
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.sink = nil
		s.mu.Unlock()
	}()

	s.bus.Publish(eventbus.StartIngestion{Pages: pages, RecreateIndex: recreateIndex})

	select {
	case report := <-sink:
		return report, nil
	default:
		return eventbus.IngestionCompleted{}, fmt.Errorf("ingestion aborted before completion")
	}
}

func (s *IngestionService) handleStart(e eventbus.StartIngestion) error {
	pages := e.Pages
	if pages < 1 {
		pages = 1
	}
	s.logger.Info("开始导入", "pages", pages, "recreate_index", e.RecreateIndex)

	var fetched []model.RawMetadata
	for page := 1; page <= pages; page++ {
		items, err := s.feed.Discover(s.ctx, page)
		if err != nil {
			s.logger.Warn("拉取分页失败", "page", page, "error", err)
			continue
		}
		fetched = append(fetched, items...)
	}
	if len(fetched) == 0 {
		return fmt.Errorf("未拉取到任何电影，导入终止")
	}
	s.logger.Info("拉取完成", "count", len(fetched))

	s.bus.Publish(eventbus.MoviesFetched{Movies: fetched, RecreateIndex: e.RecreateIndex})
	return nil
}

func (s *IngestionService) handleFetched(e eventbus.MoviesFetched) error {
	movies := make([]model.Movie, 0, len(e.Movies))
	seen := make(map[int64]bool, len(e.Movies))
	for _, r := range e.Movies {
		if err := ValidateRecord(r); err != nil {
			metrics.MalformedRecordsTotal.Inc()
			s.logger.Warn("跳过无效记录", "error", err)
			continue
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		movies = append(movies, r.ToMovie())
	}

	if len(movies) > 0 {
		if _, err := s.store.UpsertBatch(s.ctx, movies); err != nil {
			metrics.CatalogWritesTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("保存电影失败: %w", err)
		}
		metrics.CatalogWritesTotal.WithLabelValues("ok").Inc()
	}
	s.logger.Info("电影已保存", "count", len(movies))

	s.bus.Publish(eventbus.CatalogSaved{Movies: movies, Fetched: len(e.Movies), RecreateIndex: e.RecreateIndex})
	return nil
}

func (s *IngestionService) handleSaved(e eventbus.CatalogSaved) error {
	if e.RecreateIndex {
		if err := s.index.Recreate(s.ctx); err != nil {
			return fmt.Errorf("重建向量表失败: %w", err)
		}
		s.logger.Info("向量表已重建")
	}

	indexed, err := s.index.UpsertMovies(s.ctx, e.Movies)
	if err != nil {
		return fmt.Errorf("写入向量失败: %w", err)
	}

	s.bus.Publish(eventbus.IngestionCompleted{Fetched: e.Fetched, Saved: len(e.Movies), Indexed: indexed})
	return nil
}

func (s *IngestionService) handleCompleted(e eventbus.IngestionCompleted) error {
	s.logger.Info("导入完成", "fetched", e.Fetched, "saved", e.Saved, "indexed", e.Indexed)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink != nil {
		select {
		case s.sink <- e:
		default:
		}
	}
	return nil
}

// Clear 清空目录并重建向量表
func (s *IngestionService) Clear(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("清空电影目录失败: %w", err)
	}
	if err := s.index.Recreate(ctx); err != nil {
		return fmt.Errorf("重建向量表失败: %w", err)
	}
	s.logger.Info("目录和向量表已清空")
	return nil
}

// Running 是否有导入正在进行
func (s *IngestionService) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}
