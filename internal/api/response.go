package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/middleware"
)

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondOK 返回成功响应
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// respondError 按错误码返回错误响应
func respondError(c *gin.Context, err error) {
	appErr := errors.Wrap(err, errors.ErrUnknown)
	c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr, middleware.GetRequestID(c)))
}

// badRequest 请求参数错误
func badRequest(c *gin.Context, err error) {
	respondError(c, errors.Wrap(err, errors.ErrInvalidParam))
}
