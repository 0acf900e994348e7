package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/models"
	"github.com/wfunc/optical-switch/internal/service"
)

// CommandLogAPI 命令历史API
type CommandLogAPI struct {
	service *service.CommandLogService
}

// NewCommandLogAPI 创建命令历史API
func NewCommandLogAPI(service *service.CommandLogService) *CommandLogAPI {
	return &CommandLogAPI{service: service}
}

// RegisterRoutes 注册路由，cleanup 需要额外的权限中间件
func (api *CommandLogAPI) RegisterRoutes(router *gin.RouterGroup, cleanupGuard gin.HandlerFunc) {
	logs := router.Group("/command-logs")
	{
		logs.GET("", api.QueryLogs)
		logs.GET("/latest", api.GetLatestLogs)
		logs.GET("/stats", api.GetStats)
		logs.GET("/request/:id", api.GetByRequestID)
		logs.POST("/cleanup", cleanupGuard, api.Cleanup)
	}
}

// QueryLogs 查询日志列表
// @Summary 查询命令历史
// @Tags CommandLog
// @Security Bearer
// @Produce json
// @Param direction query string false "SEND 或 RECEIVE"
// @Param operation query string false "操作名"
// @Param has_error query bool false "是否有错误"
// @Param limit query int false "每页数量"
// @Param offset query int false "偏移"
// @Router /api/v1/command-logs [get]
func (api *CommandLogAPI) QueryLogs(c *gin.Context) {
	query := &models.CommandLogQuery{
		Direction: models.CommandDirection(c.Query("direction")),
		Operation: c.Query("operation"),
		RequestID: c.Query("request_id"),
		SessionID: c.Query("session_id"),
		Source:    c.Query("source"),
		OrderBy:   c.Query("order_by"),
	}

	var err error
	if query.StartTime, err = parseTimeQuery(c, "start_time"); err != nil {
		badRequest(c, err)
		return
	}
	if query.EndTime, err = parseTimeQuery(c, "end_time"); err != nil {
		badRequest(c, err)
		return
	}

	if v := c.Query("has_error"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		query.HasError = &b
	}

	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, total, err := api.service.Query(c.Request.Context(), query)
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrDatabaseQuery))
		return
	}

	respondOK(c, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatestLogs 获取最新日志
// @Summary 最新命令历史
// @Tags CommandLog
// @Security Bearer
// @Produce json
// @Param limit query int false "数量"
// @Param operation query string false "操作名"
// @Router /api/v1/command-logs/latest [get]
func (api *CommandLogAPI) GetLatestLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := api.service.Latest(c.Request.Context(), limit, c.Query("operation"))
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrDatabaseQuery))
		return
	}
	respondOK(c, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetStats 获取统计信息
// @Summary 命令历史统计
// @Tags CommandLog
// @Security Bearer
// @Produce json
// @Router /api/v1/command-logs/stats [get]
func (api *CommandLogAPI) GetStats(c *gin.Context) {
	start, err := parseTimeQuery(c, "start_time")
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := parseTimeQuery(c, "end_time")
	if err != nil {
		badRequest(c, err)
		return
	}

	stats, err := api.service.Stats(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrDatabaseQuery))
		return
	}
	respondOK(c, stats)
}

// GetByRequestID 一次调用的发送与应答记录
// @Summary 按请求ID查询
// @Tags CommandLog
// @Security Bearer
// @Produce json
// @Param id path string true "请求ID"
// @Router /api/v1/command-logs/request/{id} [get]
func (api *CommandLogAPI) GetByRequestID(c *gin.Context) {
	logs, err := api.service.ByRequestID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrDatabaseQuery))
		return
	}
	if len(logs) == 0 {
		respondError(c, errors.New(errors.ErrNotFound, c.Param("id")))
		return
	}
	respondOK(c, logs)
}

// CleanupRequest 清理请求
type CleanupRequest struct {
	RetentionDays int `json:"retention_days" form:"retention_days"`
}

// Cleanup 清理旧日志
// @Summary 清理命令历史
// @Tags CommandLog
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body CleanupRequest false "保留天数，默认30"
// @Router /api/v1/command-logs/cleanup [post]
func (api *CommandLogAPI) Cleanup(c *gin.Context) {
	req := CleanupRequest{RetentionDays: 30}
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.RetentionDays < 1 {
		respondError(c, errors.New(errors.ErrInvalidParam, "保留天数必须大于0"))
		return
	}

	// 先写入缓冲中的日志，避免清理后又写入过期记录
	if err := api.service.Flush(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	count, err := api.service.Cleanup(c.Request.Context(), req.RetentionDays)
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrDatabaseDelete))
		return
	}

	respondOK(c, gin.H{
		"deleted":        count,
		"retention_days": req.RetentionDays,
	})
}

// parseTimeQuery 解析 RFC3339 时间参数，缺省返回 nil
func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
