package service

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/hardware"
	"github.com/wfunc/optical-switch/internal/logger"
	"github.com/wfunc/optical-switch/internal/models"
	"github.com/wfunc/optical-switch/internal/opticalswitch"
	"go.uber.org/zap"
)

// SwitchServiceConfig 光开关服务配置
type SwitchServiceConfig struct {
	Port          string        // 串口设备名，写入命令日志
	PollAttempts  int           // 每条命令的轮询次数
	PollInterval  time.Duration // 轮询间隔
	Terminator    string        // 命令结束符，空时使用默认值
	MaxContinuous time.Duration // 持续扫描最长时间，0 表示不限制
	MaxPort       int           // 最大端口号，0 表示不校验上限
}

// NewSwitchServiceConfig 从应用配置生成服务配置
func NewSwitchServiceConfig(cfg *config.SwitchConfig, port string) *SwitchServiceConfig {
	return &SwitchServiceConfig{
		Port:          port,
		PollAttempts:  cfg.PollAttempts,
		PollInterval:  cfg.PollInterval,
		Terminator:    cfg.Terminator,
		MaxContinuous: cfg.MaxContinuous,
		MaxPort:       cfg.MaxPort,
	}
}

// SwitchService 光开关服务
//
// 所有调用经互斥锁串行化到同一个 Switch 上，每次调用生成请求ID，
// 应答行实时推送给订阅者并写入命令历史。
type SwitchService struct {
	mu        sync.Mutex
	sw        *opticalswitch.Switch
	conn      opticalswitch.Conn
	cfg       SwitchServiceConfig
	recorder  CommandRecorder
	publisher EventPublisher
	logger    *zap.Logger
	sessionID string

	// Close 取消进行中的持续扫描
	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	current *call // 持有 mu 时有效

	// 持续扫描期间 mu 一直被占用，最近命令和结果单独加锁
	lastMu      sync.RWMutex
	lastCommand string
	lastResult  *CommandResult
}

// call 正在执行的一次操作
type call struct {
	requestID  string
	op         opticalswitch.Opcode
	command    string
	continuous bool
	source     string
	args       []int
	responses  []string

	// 当前发送周期尚未写入的历史记录，发送行在前
	rows []*models.CommandLog
}

// NewSwitchService 创建光开关服务，conn 由服务接管并在 Close 时关闭
func NewSwitchService(conn opticalswitch.Conn, cfg *SwitchServiceConfig, recorder CommandRecorder, publisher EventPublisher, opts ...opticalswitch.Option) *SwitchService {
	s := &SwitchService{
		cfg:       *cfg,
		conn:      conn,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.WithModule("switch"),
		sessionID: uuid.New().String(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	swOpts := []opticalswitch.Option{
		opticalswitch.WithOwnedConn(),
		opticalswitch.WithResponseHandler(s.onResponse),
		opticalswitch.WithSendHandler(s.onSend),
	}
	if cfg.PollAttempts > 0 {
		swOpts = append(swOpts, opticalswitch.WithPollAttempts(cfg.PollAttempts))
	}
	if cfg.PollInterval > 0 {
		swOpts = append(swOpts, opticalswitch.WithPollInterval(cfg.PollInterval))
	}
	if cfg.Terminator != "" {
		swOpts = append(swOpts, opticalswitch.WithTerminator(cfg.Terminator))
	}
	s.sw = opticalswitch.New(conn, append(swOpts, opts...)...)
	return s
}

// SessionID 本次服务运行的会话ID
func (s *SwitchService) SessionID() string {
	return s.sessionID
}

// ScanAll 扫描全部端口
func (s *SwitchService) ScanAll(ctx context.Context, source string) (*CommandResult, error) {
	return s.run(ctx, source, opticalswitch.OpScanAll, nil, func(context.Context) error {
		return s.sw.ScanAll()
	})
}

// ScanAllContinuously 持续扫描全部端口 d 时长
func (s *SwitchService) ScanAllContinuously(ctx context.Context, source string, d time.Duration) (*CommandResult, error) {
	if err := s.validateDuration(d); err != nil {
		return nil, err
	}
	return s.run(ctx, source, opticalswitch.OpScanAll, []int{1}, func(ctx context.Context) error {
		return s.sw.ScanAllContinuouslyContext(ctx, d)
	})
}

// ScanOne 切换到单个端口
func (s *SwitchService) ScanOne(ctx context.Context, source string, port int) (*CommandResult, error) {
	if err := s.validatePort(port); err != nil {
		return nil, err
	}
	return s.run(ctx, source, opticalswitch.OpScanOne, []int{port}, func(context.Context) error {
		return s.sw.ScanOne(port)
	})
}

// ScanOneContinuously 持续扫描单个端口，由固件自行重复
func (s *SwitchService) ScanOneContinuously(ctx context.Context, source string, port int) (*CommandResult, error) {
	if err := s.validatePort(port); err != nil {
		return nil, err
	}
	return s.run(ctx, source, opticalswitch.OpScanOne, []int{port, 1}, func(context.Context) error {
		return s.sw.ScanOneContinuously(port)
	})
}

// ScanRange 扫描端口范围
func (s *SwitchService) ScanRange(ctx context.Context, source string, port1, port2 int) (*CommandResult, error) {
	if err := s.validateRange(port1, port2); err != nil {
		return nil, err
	}
	return s.run(ctx, source, opticalswitch.OpScanRange, []int{port1, port2}, func(context.Context) error {
		return s.sw.ScanRange(port1, port2)
	})
}

// ScanRangeContinuously 持续扫描端口范围 d 时长
func (s *SwitchService) ScanRangeContinuously(ctx context.Context, source string, port1, port2 int, d time.Duration) (*CommandResult, error) {
	if err := s.validateRange(port1, port2); err != nil {
		return nil, err
	}
	if err := s.validateDuration(d); err != nil {
		return nil, err
	}
	return s.run(ctx, source, opticalswitch.OpScanRange, []int{port1, port2, 1}, func(ctx context.Context) error {
		return s.sw.ScanRangeContinuouslyContext(ctx, port1, port2, d)
	})
}

// Debug 查询固件调试状态
func (s *SwitchService) Debug(ctx context.Context, source string) (*CommandResult, error) {
	return s.run(ctx, source, opticalswitch.OpDebug, nil, func(context.Context) error {
		return s.sw.Debug()
	})
}

// SetCameraDelay 设置相机前后延时（只发送，不等待应答）
func (s *SwitchService) SetCameraDelay(ctx context.Context, source string, before, after int) (*CommandResult, error) {
	if before < 0 || after < 0 {
		return nil, errors.Newf(errors.ErrInvalidParam, "延时不能为负数: %d,%d", before, after)
	}
	return s.run(ctx, source, opticalswitch.OpSetCameraDelay, []int{before, after}, func(context.Context) error {
		return s.sw.SetCameraDelay(before, after)
	})
}

// LastCommand 最近一次发送的命令（不含结束符）
func (s *SwitchService) LastCommand() string {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastCommand
}

// LastResult 最近一次操作的结果
func (s *SwitchService) LastResult() *CommandResult {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastResult
}

// Close 取消进行中的持续扫描并关闭串口
func (s *SwitchService) Close() error {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sw.Close()
}

// run 串行执行一次操作并记录结果
func (s *SwitchService) run(ctx context.Context, source string, op opticalswitch.Opcode, args []int, fn func(context.Context) error) (*CommandResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if source == "" {
		source = SourceAPI
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New(errors.ErrSwitchClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCanceled, op.String())
	}

	// 调用方取消或服务关闭都会结束持续扫描
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	c := &call{
		requestID:  uuid.New().String(),
		op:         op,
		command:    opticalswitch.Encode(op, args...),
		continuous: opticalswitch.IsContinuous(op, args),
		source:     source,
		args:       args,
	}
	s.current = c
	defer func() { s.current = nil }()

	if s.publisher != nil {
		s.publisher.Publish(EventCommand, c.requestID, &CommandEvent{
			Operation:  op.String(),
			Command:    c.command,
			Continuous: c.continuous,
			Source:     source,
		})
	}

	start := time.Now()
	// 上一条命令的迟到应答和持续模式下固件的后续输出不属于本次调用
	err := s.conn.ResetInput()
	if err != nil {
		err = fmt.Errorf("%s: flush input: %w", op, err)
	} else {
		err = fn(runCtx)
	}
	elapsed := time.Since(start)
	s.flushRows(c, time.Now(), err)

	result := &CommandResult{
		RequestID:  c.requestID,
		Operation:  op.String(),
		Command:    c.command,
		Continuous: c.continuous,
		Responses:  c.responses,
		Duration:   elapsed,
		DurationMs: elapsed.Milliseconds(),
	}
	if result.Responses == nil {
		result.Responses = []string{}
	}

	appErr := s.classify(op, err)
	if appErr != nil {
		result.Error = appErr.Error()
	}
	s.lastMu.Lock()
	s.lastResult = result
	s.lastMu.Unlock()

	logger.LogSerialCommand(c.command, c.responses, err)
	if appErr != nil && errors.IsCritical(appErr) {
		s.logger.Error("光开关设备不可用",
			zap.String("port", s.cfg.Port),
			zap.Error(appErr),
		)
	}
	s.logger.Debug("光开关操作完成",
		zap.String("request_id", c.requestID),
		zap.String("operation", result.Operation),
		zap.Int("responses", len(c.responses)),
		zap.Duration("duration", elapsed),
	)

	if s.publisher != nil {
		s.publisher.Publish(EventResult, c.requestID, result)
	}

	if appErr != nil {
		return result, appErr
	}
	return result, nil
}

// classify 把句柄返回的错误映射为应用错误
func (s *SwitchService) classify(op opticalswitch.Opcode, err error) *errors.AppError {
	var code errors.ErrorCode
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		code = errors.ErrCanceled
	case stderrors.Is(err, hardware.ErrConnClosed), stderrors.Is(err, os.ErrClosed):
		code = errors.ErrDeviceOffline
	case stderrors.Is(err, hardware.ErrLineTimeout):
		code = errors.ErrSerialTimeout
	case stderrors.Is(err, opticalswitch.ErrWrite):
		code = errors.ErrSerialPortWrite
	case stderrors.Is(err, opticalswitch.ErrRead):
		code = errors.ErrSerialPortRead
	default:
		code = errors.ErrCommandFailed
	}
	return errors.Wrap(err, code, op.String())
}

// onResponse 句柄回调，在 run 持有锁期间调用
func (s *SwitchService) onResponse(line string) {
	c := s.current
	if c == nil {
		return
	}
	c.responses = append(c.responses, line)

	if s.publisher != nil {
		s.publisher.Publish(EventResponse, c.requestID, &ResponseEvent{
			Operation: c.op.String(),
			Line:      line,
		})
	}
	if s.recorder != nil {
		c.rows = append(c.rows, &models.CommandLog{
			RequestID:  c.requestID,
			SessionID:  s.sessionID,
			Source:     c.source,
			Port:       s.cfg.Port,
			Direction:  models.DirectionReceive,
			Operation:  c.op.String(),
			Opcode:     int(c.op),
			Command:    c.command,
			Continuous: c.continuous,
			Response:   line,
			CreatedAt:  time.Now(),
		})
	}
}

// onSend 句柄写入回调，在 run 持有锁期间调用；持续扫描每次重发各记一行
func (s *SwitchService) onSend(command []byte, err error) {
	now := time.Now()
	s.lastMu.Lock()
	s.lastCommand = strings.TrimRight(string(command), "\r\n")
	s.lastMu.Unlock()

	c := s.current
	if c == nil || s.recorder == nil {
		return
	}
	s.flushRows(c, now, nil)

	log := &models.CommandLog{
		RequestID:  c.requestID,
		SessionID:  s.sessionID,
		Source:     c.source,
		Port:       s.cfg.Port,
		Direction:  models.DirectionSend,
		Operation:  c.op.String(),
		Opcode:     int(c.op),
		Command:    c.command,
		Args:       models.IntList(c.args),
		Continuous: c.continuous,
		HexData:    hex.EncodeToString(command),
		BytesCount: len(command),
		CreatedAt:  now,
	}
	if c.continuous {
		log.Source = SourceContinuous
	}
	if err != nil {
		log.ErrorMsg = err.Error()
	}
	c.rows = append(c.rows, log)
}

// flushRows 写入一个发送周期的记录，发送行耗时截止到 end，err 记在发送行上
func (s *SwitchService) flushRows(c *call, end time.Time, err error) {
	if s.recorder == nil || len(c.rows) == 0 {
		return
	}
	if send := c.rows[0]; send.Direction == models.DirectionSend {
		send.DurationMs = end.Sub(send.CreatedAt).Milliseconds()
		if err != nil && send.ErrorMsg == "" {
			send.ErrorMsg = err.Error()
		}
	}
	for _, row := range c.rows {
		s.recorder.Record(row)
	}
	c.rows = nil
}

// validatePort 校验端口号
func (s *SwitchService) validatePort(port int) error {
	if port < 1 {
		return errors.Newf(errors.ErrInvalidPort, "端口必须大于0: %d", port)
	}
	if s.cfg.MaxPort > 0 && port > s.cfg.MaxPort {
		return errors.Newf(errors.ErrInvalidPort, "端口 %d 超出范围 1-%d", port, s.cfg.MaxPort)
	}
	return nil
}

// validateRange 校验端口范围
func (s *SwitchService) validateRange(port1, port2 int) error {
	if err := s.validatePort(port1); err != nil {
		return err
	}
	return s.validatePort(port2)
}

// validateDuration 校验持续扫描时长
func (s *SwitchService) validateDuration(d time.Duration) error {
	if d < 0 {
		return errors.Newf(errors.ErrInvalidDuration, "持续时间不能为负数: %s", d)
	}
	if s.cfg.MaxContinuous > 0 && d > s.cfg.MaxContinuous {
		return errors.Newf(errors.ErrInvalidDuration, "持续时间 %s 超过上限 %s", d, s.cfg.MaxContinuous)
	}
	return nil
}
