package eventbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/cinesearch/internal/model"
)

// Topic 事件主题，取值固定
type Topic string

const (
	TopicStartIngestion     Topic = "start_ingestion"
	TopicMoviesFetched      Topic = "movies_fetched"
	TopicCatalogSaved       Topic = "catalog_saved"
	TopicIngestionCompleted Topic = "ingestion_completed"
)

// Event 事件负载，只有本包内的类型可以实现
type Event interface {
	Topic() Topic
	sealed()
}

// StartIngestion 开始批量导入
type StartIngestion struct {
	Pages         int
	RecreateIndex bool
}

// MoviesFetched 已从 TMDB 拉取的原始记录
type MoviesFetched struct {
	Movies        []model.RawMetadata
	RecreateIndex bool
}

// CatalogSaved 已写入目录的电影
type CatalogSaved struct {
	Movies        []model.Movie
	Fetched       int
	RecreateIndex bool
}

// IngestionCompleted 导入完成统计
type IngestionCompleted struct {
	Fetched int
	Saved   int
	Indexed int
}

func (StartIngestion) Topic() Topic     { return TopicStartIngestion }
func (MoviesFetched) Topic() Topic      { return TopicMoviesFetched }
func (CatalogSaved) Topic() Topic       { return TopicCatalogSaved }
func (IngestionCompleted) Topic() Topic { return TopicIngestionCompleted }

func (StartIngestion) sealed()     {}
func (MoviesFetched) sealed()      {}
func (CatalogSaved) sealed()       {}
func (IngestionCompleted) sealed() {}

// Handler 事件处理函数
type Handler func(Event) error

// Bus 同步事件总线：Publish 在调用方 goroutine 上按订阅顺序依次调用处理函数
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Topic][]Handler),
		logger:   logger.With("component", "eventbus"),
	}
}

// SubscribeTopic 按主题注册原始处理函数
func (b *Bus) SubscribeTopic(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Subscribe 注册强类型处理函数，主题由事件类型决定
func Subscribe[E Event](b *Bus, fn func(E) error) {
	var zero E
	b.SubscribeTopic(zero.Topic(), func(ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return fmt.Errorf("handler for %s cannot accept %T", zero.Topic(), ev)
		}
		return fn(typed)
	})
}

// Publish 投递事件。单个处理函数出错或 panic 只记录日志，不影响后续处理函数，也不返回给发布方
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[ev.Topic()]))
	copy(hs, b.handlers[ev.Topic()])
	b.mu.RUnlock()

	if len(hs) == 0 {
		b.logger.Debug("no subscribers", "topic", ev.Topic())
		return
	}
	for i, h := range hs {
		b.invoke(ev, i, h)
	}
}

func (b *Bus) invoke(ev Event, idx int, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", "topic", ev.Topic(), "handler", idx, "panic", r)
		}
	}()
	if err := h(ev); err != nil {
		b.logger.Error("handler failed", "topic", ev.Topic(), "handler", idx, "error", err)
	}
}
