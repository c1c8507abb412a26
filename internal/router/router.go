package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/user/cinesearch/internal/handler"
	"github.com/user/cinesearch/internal/middleware"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler, gatherer prometheus.Gatherer) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// ==================== 搜索 API ====================
	api := r.Group("/api")
	{
		api.POST("/search", h.Search)
		api.POST("/search/batch", h.BatchSearch)
		api.GET("/search/logs", h.RecentSearches)
		api.GET("/movies/:id", h.GetMovie)
	}

	// ==================== 管理接口 ====================
	admin := r.Group("/admin")
	admin.Use(middleware.RequireAuth(h.Config.AppSecret), middleware.RequireAdmin())
	{
		admin.POST("/ingest", h.Ingest)
		admin.POST("/clear", h.Clear)
	}
}
