package api

import (
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/hardware"
	"github.com/wfunc/optical-switch/internal/middleware"
	"github.com/wfunc/optical-switch/internal/service"
)

// SwitchHandler 光开关操作处理器
type SwitchHandler struct {
	svc *service.SwitchService
}

// NewSwitchHandler 创建光开关处理器
func NewSwitchHandler(svc *service.SwitchService) *SwitchHandler {
	return &SwitchHandler{svc: svc}
}

// ScanAllRequest 扫描全部端口请求
type ScanAllRequest struct {
	Continuous bool   `json:"continuous"`
	Duration   string `json:"duration,omitempty"` // 例如 "5s"，仅持续扫描有效
}

// ScanOneRequest 扫描单个端口请求
type ScanOneRequest struct {
	Port       *int `json:"port" binding:"required"`
	Continuous bool `json:"continuous"`
}

// ScanRangeRequest 扫描端口范围请求
type ScanRangeRequest struct {
	Port1      *int   `json:"port1" binding:"required"`
	Port2      *int   `json:"port2" binding:"required"`
	Continuous bool   `json:"continuous"`
	Duration   string `json:"duration,omitempty"`
}

// CameraDelayRequest 相机延时请求
type CameraDelayRequest struct {
	Before *int `json:"before" binding:"required"`
	After  *int `json:"after" binding:"required"`
}

// SwitchResponse 光开关操作响应，失败时也带回已收到的应答
type SwitchResponse struct {
	Success   bool                   `json:"success"`
	Result    *service.CommandResult `json:"result,omitempty"`
	Error     *errors.AppError       `json:"error,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ScanAll 扫描全部端口
// @Summary 扫描全部端口
// @Tags Switch
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body ScanAllRequest false "持续扫描参数"
// @Success 200 {object} SwitchResponse
// @Router /api/v1/switch/scan-all [post]
func (h *SwitchHandler) ScanAll(c *gin.Context) {
	var req ScanAllRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	if !req.Continuous {
		h.respond(c)(h.svc.ScanAll(c.Request.Context(), service.SourceAPI))
		return
	}
	d, err := parseDuration(req.Duration)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c)(h.svc.ScanAllContinuously(c.Request.Context(), service.SourceAPI, d))
}

// ScanOne 扫描单个端口
// @Summary 扫描单个端口
// @Tags Switch
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body ScanOneRequest true "端口"
// @Success 200 {object} SwitchResponse
// @Router /api/v1/switch/scan-one [post]
func (h *SwitchHandler) ScanOne(c *gin.Context) {
	var req ScanOneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.Continuous {
		h.respond(c)(h.svc.ScanOneContinuously(c.Request.Context(), service.SourceAPI, *req.Port))
		return
	}
	h.respond(c)(h.svc.ScanOne(c.Request.Context(), service.SourceAPI, *req.Port))
}

// ScanRange 扫描端口范围
// @Summary 扫描端口范围
// @Tags Switch
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body ScanRangeRequest true "端口范围"
// @Success 200 {object} SwitchResponse
// @Router /api/v1/switch/scan-range [post]
func (h *SwitchHandler) ScanRange(c *gin.Context) {
	var req ScanRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if !req.Continuous {
		h.respond(c)(h.svc.ScanRange(c.Request.Context(), service.SourceAPI, *req.Port1, *req.Port2))
		return
	}
	d, err := parseDuration(req.Duration)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c)(h.svc.ScanRangeContinuously(c.Request.Context(), service.SourceAPI, *req.Port1, *req.Port2, d))
}

// Debug 查询固件调试状态
// @Summary 查询固件调试状态
// @Tags Switch
// @Security Bearer
// @Produce json
// @Success 200 {object} SwitchResponse
// @Router /api/v1/switch/debug [post]
func (h *SwitchHandler) Debug(c *gin.Context) {
	h.respond(c)(h.svc.Debug(c.Request.Context(), service.SourceAPI))
}

// SetCameraDelay 设置相机延时
// @Summary 设置相机前后延时
// @Tags Switch
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body CameraDelayRequest true "延时"
// @Success 200 {object} SwitchResponse
// @Router /api/v1/switch/camera-delay [post]
func (h *SwitchHandler) SetCameraDelay(c *gin.Context) {
	var req CameraDelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c)(h.svc.SetCameraDelay(c.Request.Context(), service.SourceAPI, *req.Before, *req.After))
}

// LastCommand 最近一次发送的命令
// @Summary 最近一次发送的命令
// @Tags Switch
// @Security Bearer
// @Produce json
// @Router /api/v1/switch/last-command [get]
func (h *SwitchHandler) LastCommand(c *gin.Context) {
	respondOK(c, gin.H{
		"command":     h.svc.LastCommand(),
		"last_result": h.svc.LastResult(),
	})
}

// ListPorts 列出串口设备
// @Summary 列出串口设备
// @Tags Switch
// @Security Bearer
// @Produce json
// @Router /api/v1/ports [get]
func (h *SwitchHandler) ListPorts(c *gin.Context) {
	ports, err := listPorts()
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrSerialPortOpen))
		return
	}
	respondOK(c, ports)
}

// 测试替换点
var listPorts = hardware.ListPorts

// respond 统一输出操作结果
func (h *SwitchHandler) respond(c *gin.Context) func(*service.CommandResult, error) {
	return func(result *service.CommandResult, err error) {
		resp := SwitchResponse{
			Success:   err == nil,
			Result:    result,
			RequestID: middleware.GetRequestID(c),
		}
		status := http.StatusOK
		if err != nil {
			resp.Error = errors.Wrap(err, errors.ErrUnknown)
			status = resp.Error.HTTPStatus()
		}
		c.JSON(status, resp)
	}
}

// bindOptionalJSON 请求体可以为空
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !stderrors.Is(err, io.EOF) {
		badRequest(c, err)
		return false
	}
	return true
}

// parseDuration 解析持续时间，空字符串表示只执行一次
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInvalidDuration, s)
	}
	return d, nil
}
