package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/user/cinesearch/internal/logging"
	"github.com/user/cinesearch/internal/metrics"
	"github.com/user/cinesearch/internal/model"
)

// IntentClassifier 查询意图解析
type IntentClassifier interface {
	Classify(ctx context.Context, query string, cfg model.SearchConfig) model.ParsedIntent
}

// SearchService 检索编排：解析意图后选择导演 / 片名 / 语义三个分支之一
type SearchService struct {
	classifier  IntentClassifier
	dedup       *DedupManager
	store       CatalogStore
	index       VectorIndex
	provider    MetadataProvider
	vectorLimit int
}

// NewSearchService 创建搜索服务
func NewSearchService(
	classifier IntentClassifier,
	dedup *DedupManager,
	store CatalogStore,
	index VectorIndex,
	provider MetadataProvider,
	vectorLimit int,
) *SearchService {
	if vectorLimit <= 0 {
		vectorLimit = 10
	}
	return &SearchService{
		classifier:  classifier,
		dedup:       dedup,
		store:       store,
		index:       index,
		provider:    provider,
		vectorLimit: vectorLimit,
	}
}

// Run 执行一次检索。分支内部的失败只会让对应列表为空，不会返回错误
func (s *SearchService) Run(ctx context.Context, query string, cfg model.SearchConfig) model.RetrievalResult {
	result := model.EmptyResult(query)
	logger := logging.FromContext(ctx)

	query = strings.TrimSpace(query)
	if query == "" {
		result.Error = ErrEmptyQuery.Error()
		return result
	}

	intent := s.classifier.Classify(ctx, query, cfg)
	result.Intent = intent
	result.Branch = intent.Branch()
	metrics.QueryPipelinesTotal.WithLabelValues(string(result.Branch)).Inc()
	logger.Info("开始检索", "query", query, "branch", result.Branch)

	switch result.Branch {
	case model.BranchDirector:
		result.ProviderResults = s.runDirector(ctx, intent.Director)
	case model.BranchTitles:
		result.ProviderResults = s.runTitles(ctx, intent.Titles)
	default:
		yearCfg := effectiveYearConfig(cfg, intent)
		result.VectorResults = s.runSemantic(ctx, query, yearCfg)
		if cfg.EnrichFromProvider {
			result.ProviderResults = s.runEnrichment(ctx, query, yearCfg)
		}
	}

	logger.Info("检索完成",
		"branch", result.Branch,
		"provider_results", len(result.ProviderResults),
		"vector_results", len(result.VectorResults),
	)
	return result
}

// runDirector 导演作品按热度降序，新作品入库；不查询向量索引
func (s *SearchService) runDirector(ctx context.Context, director string) []model.Movie {
	logger := logging.FromContext(ctx)

	records, err := s.directorCredits(ctx, director)
	if err != nil {
		logger.Warn("获取导演作品失败", "director", director, "error", err)
		return []model.Movie{}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Popularity > records[j].Popularity
	})

	movies := make([]model.Movie, 0, len(records))
	seen := make(map[int64]bool, len(records))
	for _, r := range records {
		if ValidateRecord(r) != nil || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		m := r.ToMovie()
		name := director
		m.DirectorName = &name
		movies = append(movies, m)
	}

	if _, err := s.dedup.EnsureDirected(ctx, director, records); err != nil {
		logger.Error("导演作品入库失败", "director", director, "error", err)
	}
	return movies
}

func (s *SearchService) directorCredits(ctx context.Context, director string) ([]model.RawMetadata, error) {
	people, err := s.provider.SearchPerson(ctx, director)
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPersonNotFound, director)
	}
	return s.provider.GetDirectorCredits(ctx, people[0].ID)
}

// runTitles 按输入顺序逐个解析片名，找不到的片名直接忽略
func (s *SearchService) runTitles(ctx context.Context, titles []string) []model.Movie {
	logger := logging.FromContext(ctx)
	movies := make([]model.Movie, 0, len(titles))
	seen := make(map[int64]bool, len(titles))

	for _, title := range titles {
		if ctx.Err() != nil {
			break
		}
		m, err := s.dedup.ResolveByTitle(ctx, title)
		if err != nil {
			logger.Warn("解析片名失败", "title", title, "error", err)
			continue
		}
		if m == nil || seen[m.TMDBID] {
			continue
		}
		seen[m.TMDBID] = true
		movies = append(movies, *m)
	}
	return movies
}

// runSemantic 向量检索后回表，保持向量排序，再按年份过滤
func (s *SearchService) runSemantic(ctx context.Context, query string, cfg model.SearchConfig) []model.ScoredMovie {
	logger := logging.FromContext(ctx)

	hits, err := s.index.NearestNeighbors(ctx, query, s.vectorLimit)
	if err != nil {
		logger.Warn("向量检索失败", "error", err)
		return []model.ScoredMovie{}
	}
	if len(hits) == 0 {
		return []model.ScoredMovie{}
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.TMDBID
	}
	movies, err := s.store.GetByIDs(ctx, ids)
	if err != nil {
		logger.Warn("向量结果回表失败", "error", err)
		return []model.ScoredMovie{}
	}
	byID := make(map[int64]model.Movie, len(movies))
	for _, m := range movies {
		byID[m.TMDBID] = m
	}

	scored := make([]model.ScoredMovie, 0, len(hits))
	for _, h := range hits {
		m, ok := byID[h.TMDBID]
		if !ok {
			// 向量已写入但目录中没有，跳过
			continue
		}
		scored = append(scored, model.ScoredMovie{Movie: m, Distance: h.Distance, Certainty: h.Certainty})
	}
	return FilterScoredByYear(scored, cfg)
}

// runEnrichment 额外调用 TMDB 文本搜索，结果入库后单独返回
func (s *SearchService) runEnrichment(ctx context.Context, query string, cfg model.SearchConfig) []model.Movie {
	logger := logging.FromContext(ctx)

	records, err := s.provider.SearchByText(ctx, query)
	if err != nil {
		logger.Warn("TMDB 文本搜索失败", "error", err)
		return []model.Movie{}
	}

	movies := make([]model.Movie, 0, len(records))
	seen := make(map[int64]bool, len(records))
	for _, r := range records {
		if ValidateRecord(r) != nil || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		movies = append(movies, r.ToMovie())
	}

	if _, err := s.dedup.Ensure(ctx, records); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("TMDB 结果入库失败", "error", err)
	}
	return FilterMoviesByYear(movies, cfg)
}

// effectiveYearConfig 请求未指定年份时使用意图中解析出的年份
func effectiveYearConfig(cfg model.SearchConfig, intent model.ParsedIntent) model.SearchConfig {
	if cfg.HasYearBound() {
		return cfg
	}
	cfg.StartYear = intent.StartYear
	cfg.EndYear = intent.EndYear
	return cfg
}

// FilterMoviesByYear 按上映年份闭区间过滤
func FilterMoviesByYear(movies []model.Movie, cfg model.SearchConfig) []model.Movie {
	if !cfg.HasYearBound() {
		return movies
	}
	out := make([]model.Movie, 0, len(movies))
	for _, m := range movies {
		if cfg.AcceptsYear(m.ReleaseYear()) {
			out = append(out, m)
		}
	}
	return out
}

// FilterScoredByYear 同 FilterMoviesByYear
func FilterScoredByYear(movies []model.ScoredMovie, cfg model.SearchConfig) []model.ScoredMovie {
	if !cfg.HasYearBound() {
		return movies
	}
	out := make([]model.ScoredMovie, 0, len(movies))
	for _, m := range movies {
		if cfg.AcceptsYear(m.ReleaseYear()) {
			out = append(out, m)
		}
	}
	return out
}
