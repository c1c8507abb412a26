package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/user/cinesearch/internal/config"
	"github.com/user/cinesearch/internal/logging"
	"github.com/user/cinesearch/internal/metrics"
	"github.com/user/cinesearch/internal/model"
	"github.com/user/cinesearch/internal/utils"
	"golang.org/x/time/rate"
)

const (
	tmdbProvider   = "tmdb"
	redisKeyPrefix = "cinesearch:tmdb:"
	directorJob    = "Director"
)

// TMDBService TMDB 元数据源
type TMDBService struct {
	baseURL  string
	token    string
	apiKey   string
	language string

	http     *utils.HTTPClient
	limiter  *rate.Limiter
	people   *cache.Cache
	redis    *redis.Client
	cacheTTL time.Duration
}

// NewTMDBService redis 可以为 nil，此时不缓存响应
func NewTMDBService(cfg *config.Config, rdb *redis.Client) *TMDBService {
	limit := rate.Limit(cfg.TMDBRateLimit)
	if cfg.TMDBRateLimit <= 0 {
		limit = rate.Inf
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TMDBService{
		baseURL:  strings.TrimRight(cfg.TMDBBaseURL, "/"),
		token:    cfg.TMDBToken,
		apiKey:   cfg.TMDBAPIKey,
		language: cfg.TMDBLanguage,
		http:     utils.NewHTTPClient(15 * time.Second),
		limiter:  rate.NewLimiter(limit, 5),
		people:   cache.New(ttl, 2*ttl),
		redis:    rdb,
		cacheTTL: ttl,
	}
}

type tmdbPage[T any] struct {
	Page    int `json:"page"`
	Results []T `json:"results"`
}

type tmdbCredits struct {
	Crew []model.RawMetadata `json:"crew"`
}

// SearchByText 按文本搜索电影
func (s *TMDBService) SearchByText(ctx context.Context, query string) ([]model.RawMetadata, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.RawMetadata{}, nil
	}
	var page tmdbPage[model.RawMetadata]
	params := url.Values{"query": {query}, "include_adult": {"false"}, "page": {"1"}}
	if err := s.get(ctx, "search_movie", "/search/movie", params, &page); err != nil {
		return nil, err
	}
	return nonNil(page.Results), nil
}

// SearchPerson 按姓名搜索人物
func (s *TMDBService) SearchPerson(ctx context.Context, name string) ([]model.PersonRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []model.PersonRecord{}, nil
	}
	key := strings.ToLower(name)
	if cached, ok := s.people.Get(key); ok {
		return cached.([]model.PersonRecord), nil
	}

	var page tmdbPage[model.PersonRecord]
	params := url.Values{"query": {name}, "include_adult": {"false"}}
	if err := s.get(ctx, "search_person", "/search/person", params, &page); err != nil {
		return nil, err
	}
	people := nonNil(page.Results)
	s.people.Set(key, people, cache.DefaultExpiration)
	return people, nil
}

// GetDirectorCredits 人物作为导演的电影
func (s *TMDBService) GetDirectorCredits(ctx context.Context, personID int64) ([]model.RawMetadata, error) {
	var credits tmdbCredits
	path := fmt.Sprintf("/person/%d/movie_credits", personID)
	if err := s.get(ctx, "person_credits", path, url.Values{}, &credits); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return []model.RawMetadata{}, nil
		}
		return nil, err
	}

	directed := make([]model.RawMetadata, 0, len(credits.Crew))
	for _, c := range credits.Crew {
		if c.Job == directorJob {
			directed = append(directed, c)
		}
	}
	return directed, nil
}

// Discover 按热度分页拉取电影，用于批量导入
func (s *TMDBService) Discover(ctx context.Context, page int) ([]model.RawMetadata, error) {
	if page < 1 {
		page = 1
	}
	var resp tmdbPage[model.RawMetadata]
	params := url.Values{
		"sort_by":       {"popularity.desc"},
		"include_adult": {"false"},
		"include_video": {"false"},
		"page":          {fmt.Sprint(page)},
	}
	if err := s.get(ctx, "discover", "/discover/movie", params, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Results), nil
}

func (s *TMDBService) get(ctx context.Context, operation, path string, params url.Values, target any) error {
	if s.language != "" {
		params.Set("language", s.language)
	}
	cacheKey := redisKeyPrefix + path + "?" + params.Encode()

	if s.redis != nil {
		data, err := s.redis.Get(ctx, cacheKey).Bytes()
		if err == nil && json.Unmarshal(data, target) == nil {
			metrics.ProviderRequestsTotal.WithLabelValues(tmdbProvider, operation, "cached").Inc()
			return nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			logging.FromContext(ctx).Warn("读取 TMDB 缓存失败", "error", err)
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("tmdb rate limiter: %w", err)
	}

	headers := map[string]string{}
	if s.token != "" {
		headers["Authorization"] = "Bearer " + s.token
	} else if s.apiKey != "" {
		params.Set("api_key", s.apiKey)
	}
	reqURL := s.baseURL + path + "?" + params.Encode()

	start := time.Now()
	body, err := s.http.GetBody(ctx, reqURL, headers)
	metrics.ProviderRequestDuration.WithLabelValues(tmdbProvider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(tmdbProvider, operation, "error").Inc()
		return fmt.Errorf("tmdb %s: %w", operation, err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(tmdbProvider, operation, "error").Inc()
		return fmt.Errorf("tmdb %s: 解析响应失败: %w", operation, err)
	}
	metrics.ProviderRequestsTotal.WithLabelValues(tmdbProvider, operation, "ok").Inc()

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey, body, s.cacheTTL).Err(); err != nil {
			logging.FromContext(ctx).Warn("写入 TMDB 缓存失败", slog.String("error", err.Error()))
		}
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
