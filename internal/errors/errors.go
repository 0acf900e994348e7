package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrNotFound       ErrorCode = 1002
	ErrTimeout        ErrorCode = 1005
	ErrCanceled       ErrorCode = 1006
	ErrNotImplemented ErrorCode = 1007

	// 光开关错误 (2000-2999)
	ErrInvalidPort     ErrorCode = 2000
	ErrInvalidDuration ErrorCode = 2001
	ErrSwitchClosed    ErrorCode = 2002

	// 硬件错误 (3000-3999)
	ErrSerialPortOpen  ErrorCode = 3000
	ErrSerialPortWrite ErrorCode = 3001
	ErrSerialPortRead  ErrorCode = 3002
	ErrSerialTimeout   ErrorCode = 3003
	ErrDeviceOffline   ErrorCode = 3004
	ErrCommandFailed   ErrorCode = 3006

	// 通信错误 (4000-4999)
	ErrMessageFormat ErrorCode = 4007

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000
	ErrDatabaseQuery   ErrorCode = 5001
	ErrDatabaseDelete  ErrorCode = 5004

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigValidate ErrorCode = 6002

	// 安全错误 (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrAuthorization  ErrorCode = 7001
	ErrTokenExpired   ErrorCode = 7002
	ErrTokenInvalid   ErrorCode = 7003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	ErrUnknown:        "未知错误",
	ErrInvalidParam:   "无效的参数",
	ErrNotFound:       "资源未找到",
	ErrTimeout:        "操作超时",
	ErrCanceled:       "操作已取消",
	ErrNotImplemented: "功能未实现",

	ErrInvalidPort:     "无效的光开关端口",
	ErrInvalidDuration: "无效的持续时间",
	ErrSwitchClosed:    "光开关已关闭",

	ErrSerialPortOpen:  "串口打开失败",
	ErrSerialPortWrite: "串口写入失败",
	ErrSerialPortRead:  "串口读取失败",
	ErrSerialTimeout:   "串口通信超时",
	ErrDeviceOffline:   "设备离线",
	ErrCommandFailed:   "命令执行失败",

	ErrMessageFormat: "消息格式错误",

	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrDatabaseDelete:  "数据库删除失败",

	ErrConfigLoad:     "配置加载失败",
	ErrConfigValidate: "配置验证失败",

	ErrAuthentication: "认证失败",
	ErrAuthorization:  "授权失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)
	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误；已经是AppError时保留原始错误码
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr = New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	} else {
		appErr.Details += ": " + err.Error()
	}
	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断错误链中是否有指定错误码
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		// 跳过runtime和本包的调用
		if !strings.HasPrefix(frame.Function, "runtime.") &&
			!strings.Contains(frame.Function, "optical-switch/internal/errors.") {
			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}

		// 只保留前10个栈帧
		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrNotFound:
		return http.StatusNotFound
	case e.Code == ErrAuthorization:
		return http.StatusForbidden
	case e.Code == ErrTimeout || e.Code == ErrSerialTimeout:
		return http.StatusGatewayTimeout
	case e.Code == ErrInvalidParam, e.Code >= 2000 && e.Code <= 2001:
		return http.StatusBadRequest
	case e.Code == ErrSwitchClosed, e.Code == ErrDeviceOffline:
		return http.StatusServiceUnavailable
	case e.Code >= 3000 && e.Code <= 3999:
		return http.StatusBadGateway
	case e.Code >= 7000 && e.Code <= 7003:
		return http.StatusUnauthorized
	case e.Code >= 5000 && e.Code <= 5999:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	switch GetCode(err) {
	case ErrDatabaseConnect, ErrSerialPortOpen, ErrDeviceOffline, ErrConfigLoad:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
