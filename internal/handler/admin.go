package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/user/cinesearch/internal/eventbus"
	"github.com/user/cinesearch/internal/service"
	"github.com/user/cinesearch/internal/utils"
)

// IngestRequest 导入参数
type IngestRequest struct {
	Pages         int  `json:"pages" binding:"omitempty,min=1,max=500"`
	RecreateIndex bool `json:"recreate_index"`
}

// Ingest 后台执行批量导入，立即返回 202
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequest(c, "参数错误: "+err.Error())
			return
		}
	}
	if req.Pages == 0 {
		req.Pages = 1
	}
	err := h.Ingestion.TryStart(req.Pages, req.RecreateIndex, func(report eventbus.IngestionCompleted, err error) {
		if err != nil {
			h.Logger.Error("导入失败", "error", err)
			return
		}
		h.Logger.Info("导入完成", "fetched", report.Fetched, "saved", report.Saved, "indexed", report.Indexed)
	})
	if errors.Is(err, service.ErrIngestionRunning) {
		utils.Error(c, http.StatusConflict, "已有导入任务在执行")
		return
	}
	if err != nil {
		h.Logger.Error("启动导入失败", "error", err)
		utils.InternalServerError(c, "")
		return
	}

	utils.Accepted(c, "导入任务已开始", req)
}

// Clear 清空目录和向量表
func (h *Handler) Clear(c *gin.Context) {
	if h.Ingestion.Running() {
		utils.Error(c, http.StatusConflict, "已有导入任务在执行")
		return
	}
	if err := h.Ingestion.Clear(c.Request.Context()); err != nil {
		h.Logger.Error("清空数据失败", "error", err)
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, gin.H{"cleared": true})
}
