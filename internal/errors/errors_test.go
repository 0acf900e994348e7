package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidPort)
	suite.Equal(ErrInvalidPort, err.Code)
	suite.Equal("无效的光开关端口", err.Message)
	suite.Empty(err.Details)
	suite.NotEmpty(err.Stack)

	err = New(ErrInvalidParam, "port1 > port2", "port1=9")
	suite.Equal("port1 > port2; port1=9", err.Details)

	err = New(ErrorCode(9999))
	suite.Equal("未知错误", err.Message)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidDuration, "持续时间 %s 超过上限 %s", "1h", "10m")
	suite.Equal("持续时间 1h 超过上限 10m", err.Details)
}

func (suite *ErrorsTestSuite) TestWrap() {
	original := errors.New("device disconnected")
	wrapped := Wrap(original, ErrSerialPortWrite, "scan_one")
	suite.Equal(ErrSerialPortWrite, wrapped.Code)
	suite.Equal("scan_one: device disconnected", wrapped.Details)
	suite.ErrorIs(wrapped, original)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 已有的AppError保留原始错误码
	appErr := New(ErrInvalidPort, "port=0")
	again := Wrap(appErr, ErrCommandFailed, "extra")
	suite.Equal(ErrInvalidPort, again.Code)
	suite.Contains(again.Details, "extra")
}

func (suite *ErrorsTestSuite) TestIsAndGetCode() {
	err := New(ErrTokenExpired)
	suite.True(Is(err, ErrTokenExpired))
	suite.False(Is(err, ErrTokenInvalid))
	suite.False(Is(nil, ErrUnknown))

	// 经 fmt.Errorf 包装后仍可识别
	chained := fmt.Errorf("login: %w", err)
	suite.True(Is(chained, ErrTokenExpired))
	suite.Equal(ErrTokenExpired, GetCode(chained))

	suite.Equal(ErrUnknown, GetCode(errors.New("plain")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())
	err.Details = "request_id=abc"
	suite.Equal("[1002] 资源未找到: request_id=abc", err.Error())
}

func (suite *ErrorsTestSuite) TestHTTPStatus() {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrInvalidParam, http.StatusBadRequest},
		{ErrInvalidPort, http.StatusBadRequest},
		{ErrInvalidDuration, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrSwitchClosed, http.StatusServiceUnavailable},
		{ErrSerialPortWrite, http.StatusBadGateway},
		{ErrSerialTimeout, http.StatusGatewayTimeout},
		{ErrDeviceOffline, http.StatusServiceUnavailable},
		{ErrSerialPortRead, http.StatusBadGateway},
		{ErrTokenInvalid, http.StatusUnauthorized},
		{ErrAuthorization, http.StatusForbidden},
		{ErrDatabaseQuery, http.StatusServiceUnavailable},
		{ErrUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		suite.Equal(tt.want, New(tt.code).HTTPStatus(), "code %d", tt.code)
	}
}

func (suite *ErrorsTestSuite) TestIsCritical() {
	suite.True(IsCritical(New(ErrSerialPortOpen)))
	suite.True(IsCritical(Wrap(errors.New("gone"), ErrDeviceOffline)))
	suite.False(IsCritical(New(ErrInvalidPort)))
	suite.False(IsCritical(nil))
}

func (suite *ErrorsTestSuite) TestErrorResponse() {
	resp := NewErrorResponse(New(ErrNotFound), "req-1")
	suite.False(resp.Success)
	suite.Equal("req-1", resp.RequestID)
	suite.NotZero(resp.Timestamp)
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
