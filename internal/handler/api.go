package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/user/cinesearch/internal/model"
	"github.com/user/cinesearch/internal/service"
	"github.com/user/cinesearch/internal/utils"
)

const maxBatchQueries = 50

// SearchRequest 单条搜索请求
type SearchRequest struct {
	Query  string             `json:"query" binding:"required"`
	Config model.SearchConfig `json:"config"`
}

// BatchSearchRequest 批量搜索请求
type BatchSearchRequest struct {
	Queries []service.QueryJob `json:"queries" binding:"required,min=1,dive"`
}

// Search 单条搜索
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		utils.BadRequest(c, "query 不能为空")
		return
	}

	start := time.Now()
	results := h.Executor.RunAll(c.Request.Context(), []service.QueryJob{{Key: "query", Query: req.Query, Config: req.Config}})
	res := results["query"]
	h.recordSearch(c.Request.Context(), res, time.Since(start))

	utils.Success(c, res)
}

// BatchSearch 批量并发搜索，结果按 key 返回
func (h *Handler) BatchSearch(c *gin.Context) {
	var req BatchSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if len(req.Queries) > maxBatchQueries {
		utils.BadRequest(c, fmt.Sprintf("一次最多 %d 条查询", maxBatchQueries))
		return
	}

	start := time.Now()
	results := h.Executor.RunAll(c.Request.Context(), req.Queries)
	elapsed := time.Since(start)
	for _, res := range results {
		h.recordSearch(c.Request.Context(), res, elapsed)
	}

	utils.Success(c, results)
}

// GetMovie 按 TMDB ID 获取电影
func (h *Handler) GetMovie(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.BadRequest(c, "无效的电影 ID")
		return
	}

	movies, err := h.Movies.GetByIDs(c.Request.Context(), []int64{id})
	if err != nil {
		h.Logger.Error("查询电影失败", "tmdb_id", id, "error", err)
		utils.InternalServerError(c, "")
		return
	}
	if len(movies) == 0 {
		utils.NotFound(c, "电影不存在")
		return
	}
	utils.Success(c, movies[0])
}

// RecentSearches 最近的搜索记录
func (h *Handler) RecentSearches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	logs, err := h.Logs.Recent(c.Request.Context(), limit)
	if err != nil {
		h.Logger.Error("查询搜索日志失败", "error", err)
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, logs)
}

// recordSearch 写搜索日志，失败不影响响应
func (h *Handler) recordSearch(ctx context.Context, res model.RetrievalResult, elapsed time.Duration) {
	if h.Logs == nil {
		return
	}
	entry := &model.SearchLog{
		Query:          utils.TruncateRunes(res.Query, 500),
		Branch:         string(res.Branch),
		CorrelationID:  res.CorrelationID,
		ProviderCount:  len(res.ProviderResults),
		VectorCount:    len(res.VectorResults),
		DurationMillis: elapsed.Milliseconds(),
		Failed:         res.Error != "",
	}
	if err := h.Logs.Log(ctx, entry); err != nil {
		h.Logger.Warn("记录搜索日志失败", "error", err)
	}
}
