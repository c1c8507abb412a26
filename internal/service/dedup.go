package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/user/cinesearch/internal/logging"
	"github.com/user/cinesearch/internal/metrics"
	"github.com/user/cinesearch/internal/model"
	"golang.org/x/sync/singleflight"
)

// DedupManager 先查本地目录，只持久化新记录；目录写入成功后才写向量
type DedupManager struct {
	store    CatalogStore
	index    VectorIndex
	provider MetadataProvider
	sf       singleflight.Group
}

var recordValidator = validator.New()

const titleFetchTimeout = 30 * time.Second

func NewDedupManager(store CatalogStore, index VectorIndex, provider MetadataProvider) *DedupManager {
	return &DedupManager{
		store:    store,
		index:    index,
		provider: provider,
	}
}

// ValidateRecord 检查必填字段
func ValidateRecord(r model.RawMetadata) error {
	if err := recordValidator.Struct(r); err != nil {
		return fmt.Errorf("%w: tmdb_id=%d: %v", ErrMalformedRecord, r.ID, err)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: tmdb_id=%d: blank title", ErrMalformedRecord, r.ID)
	}
	return nil
}

// Ensure 持久化本批次中目录里还没有的记录，返回新写入的电影
// 目录写入失败时返回错误，且不会写向量
func (d *DedupManager) Ensure(ctx context.Context, records []model.RawMetadata) ([]model.Movie, error) {
	return d.ensure(ctx, records, nil)
}

// EnsureDirected 同 Ensure，新记录带上导演姓名
func (d *DedupManager) EnsureDirected(ctx context.Context, director string, records []model.RawMetadata) ([]model.Movie, error) {
	return d.ensure(ctx, records, func(m *model.Movie) {
		if director != "" {
			name := director
			m.DirectorName = &name
		}
	})
}

func (d *DedupManager) ensure(ctx context.Context, records []model.RawMetadata, decorate func(*model.Movie)) ([]model.Movie, error) {
	logger := logging.FromContext(ctx)

	candidates := make([]model.Movie, 0, len(records))
	seen := make(map[int64]bool, len(records))
	for _, r := range records {
		if err := ValidateRecord(r); err != nil {
			metrics.MalformedRecordsTotal.Inc()
			logger.Warn("跳过无效记录", "error", err)
			continue
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		m := r.ToMovie()
		if decorate != nil {
			decorate(&m)
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return []model.Movie{}, nil
	}

	ids := make([]int64, len(candidates))
	for i, m := range candidates {
		ids[i] = m.TMDBID
	}
	existing, err := d.store.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("查询已存在电影失败: %w", err)
	}

	fresh := make([]model.Movie, 0, len(candidates))
	for _, m := range candidates {
		if !existing[m.TMDBID] {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		logger.Debug("本批次均已存在", "count", len(candidates))
		return fresh, nil
	}

	if _, err := d.store.UpsertBatch(ctx, fresh); err != nil {
		metrics.CatalogWritesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("写入电影目录失败: %w", err)
	}
	metrics.CatalogWritesTotal.WithLabelValues("ok").Inc()

	if d.index != nil {
		if n, err := d.index.UpsertMovies(ctx, fresh); err != nil {
			logger.Error("写入向量失败", "count", len(fresh), "error", err)
		} else {
			logger.Debug("向量写入完成", "count", n)
		}
	}

	logger.Info("新电影已入库", "count", len(fresh), "skipped_existing", len(candidates)-len(fresh))
	return fresh, nil
}

// ResolveByTitle 先查本地目录，未命中才调用 TMDB；同一片名的并发未命中只请求一次
func (d *DedupManager) ResolveByTitle(ctx context.Context, title string) (*model.Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	m, err := d.store.GetByTitle(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("按片名查询失败: %w", err)
	}
	if m != nil {
		return m, nil
	}

	// 共享的请求不受任何单个调用方的超时影响，各调用方只按自己的 ctx 放弃等待
	ch := d.sf.DoChan(strings.ToLower(title), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), titleFetchTimeout)
		defer cancel()
		// 等待期间可能已被其他 goroutine 写入
		if m, err := d.store.GetByTitle(fetchCtx, title); err == nil && m != nil {
			return m, nil
		}
		return d.fetchTitle(fetchCtx, title)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Movie), nil
	}
}

func (d *DedupManager) fetchTitle(ctx context.Context, title string) (*model.Movie, error) {
	logger := logging.FromContext(ctx)
	results, err := d.provider.SearchByText(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("TMDB 搜索片名失败: %w", err)
	}
	if len(results) == 0 {
		logger.Info("TMDB 未找到片名", "title", title)
		return (*model.Movie)(nil), nil
	}

	first := results[0]
	if err := ValidateRecord(first); err != nil {
		metrics.MalformedRecordsTotal.Inc()
		logger.Warn("跳过无效记录", "error", err)
		return (*model.Movie)(nil), nil
	}
	movie := first.ToMovie()
	if _, err := d.Ensure(ctx, []model.RawMetadata{first}); err != nil {
		// 目录写入失败仍返回 TMDB 的结果
		logger.Error("片名结果入库失败", "title", title, "error", err)
	}
	return &movie, nil
}
