// Package opticalswitch 光开关命令编码与串口收发
//
// Switch 包装一个外部已打开的串口连接，每个方法对应一种开关操作：
// 编码命令、写入串口，再在固定次数内轮询设备的响应行。
// Switch 不做并发保护，多个调用方必须在外部串行化。
package opticalswitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// DefaultPollAttempts 默认轮询次数
	DefaultPollAttempts = 50
	// DefaultPollInterval 默认轮询间隔
	DefaultPollInterval = 100 * time.Millisecond
)

// 失败环节，可用 errors.Is 区分
var (
	ErrWrite = errors.New("write")
	ErrRead  = errors.New("read")
)

// Conn 串口连接（由调用方打开并配置）
type Conn interface {
	io.Writer
	// Available 是否有待读取的数据
	Available() (bool, error)
	// ReadLine 读取一行响应（不含行结束符）
	ReadLine() (string, error)
	// ResetInput 丢弃所有未读取的输入
	ResetInput() error
}

// ResponseHandler 响应行回调
type ResponseHandler func(line string)

// SendHandler 每次写入命令后回调，err 为写入错误
type SendHandler func(command []byte, err error)

// Switch 光开关句柄
type Switch struct {
	conn         Conn
	command      []byte
	clock        Clock
	pollAttempts int
	pollInterval time.Duration
	terminator   string
	onResponse   ResponseHandler
	onSend       SendHandler
	ownsConn     bool
}

// Option Switch 配置项
type Option func(*Switch)

// WithClock 注入时钟（测试用）
func WithClock(c Clock) Option {
	return func(s *Switch) { s.clock = c }
}

// WithPollAttempts 设置轮询次数
func WithPollAttempts(n int) Option {
	return func(s *Switch) { s.pollAttempts = n }
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(s *Switch) { s.pollInterval = d }
}

// WithTerminator 设置命令结束符，空字符串表示不追加
func WithTerminator(t string) Option {
	return func(s *Switch) { s.terminator = t }
}

// WithResponseHandler 设置响应行回调
func WithResponseHandler(h ResponseHandler) Option {
	return func(s *Switch) { s.onResponse = h }
}

// WithSendHandler 设置写入回调，持续扫描时每次重发都会调用
func WithSendHandler(h SendHandler) Option {
	return func(s *Switch) { s.onSend = h }
}

// WithOwnedConn Close 时一并关闭连接
func WithOwnedConn() Option {
	return func(s *Switch) { s.ownsConn = true }
}

// New 创建光开关句柄
func New(conn Conn, opts ...Option) *Switch {
	s := &Switch{
		conn:         conn,
		clock:        RealClock{},
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
		terminator:   DefaultTerminator,
		onResponse:   PrintResponse,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PrintResponse 默认回调：打印到控制台
func PrintResponse(line string) {
	fmt.Println(line)
}

// LastCommand 返回最近一次编码的命令
func (s *Switch) LastCommand() []byte {
	return s.command
}

// ScanAll 扫描全部端口
func (s *Switch) ScanAll() error {
	return s.sendAndPoll(OpScanAll)
}

// ScanAllContinuously 持续扫描全部端口，d > 0 时在 d 内反复发送
func (s *Switch) ScanAllContinuously(d time.Duration) error {
	return s.ScanAllContinuouslyContext(context.Background(), d)
}

// ScanAllContinuouslyContext 同 ScanAllContinuously，ctx 取消时提前结束
func (s *Switch) ScanAllContinuouslyContext(ctx context.Context, d time.Duration) error {
	return s.repeat(ctx, d, OpScanAll, continuousFlag)
}

// ScanOne 扫描单个端口
func (s *Switch) ScanOne(port int) error {
	return s.sendAndPoll(OpScanOne, port)
}

// ScanOneContinuously 持续扫描单个端口（由固件重复）
func (s *Switch) ScanOneContinuously(port int) error {
	return s.sendAndPoll(OpScanOne, port, continuousFlag)
}

// ScanRange 扫描端口范围
func (s *Switch) ScanRange(port1, port2 int) error {
	return s.sendAndPoll(OpScanRange, port1, port2)
}

// ScanRangeContinuously 持续扫描端口范围，d > 0 时在 d 内反复发送
func (s *Switch) ScanRangeContinuously(port1, port2 int, d time.Duration) error {
	return s.ScanRangeContinuouslyContext(context.Background(), port1, port2, d)
}

// ScanRangeContinuouslyContext 同 ScanRangeContinuously，ctx 取消时提前结束
func (s *Switch) ScanRangeContinuouslyContext(ctx context.Context, port1, port2 int, d time.Duration) error {
	return s.repeat(ctx, d, OpScanRange, port1, port2, continuousFlag)
}

// Debug 查询固件调试状态
func (s *Switch) Debug() error {
	return s.sendAndPoll(OpDebug)
}

// SetCameraDelay 设置相机前后延时（固件未完成，只发送不轮询）
func (s *Switch) SetCameraDelay(before, after int) error {
	return s.send(OpSetCameraDelay, before, after)
}

// Close 关闭句柄；仅在 WithOwnedConn 时关闭连接
func (s *Switch) Close() error {
	if !s.ownsConn {
		return nil
	}
	if c, ok := s.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// send 编码并写入命令
func (s *Switch) send(op Opcode, args ...int) error {
	s.command = Frame(s.terminator, op, args...)
	_, err := s.conn.Write(s.command)
	if s.onSend != nil {
		s.onSend(s.command, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrWrite, err)
	}
	return nil
}

// sendAndPoll 发送命令后轮询响应
func (s *Switch) sendAndPoll(op Opcode, args ...int) error {
	if err := s.send(op, args...); err != nil {
		return err
	}
	if err := s.poll(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// repeat 在截止时间前反复发送并轮询，至少执行一次
func (s *Switch) repeat(ctx context.Context, d time.Duration, op Opcode, args ...int) error {
	deadline := s.clock.Now().Add(d)
	for {
		if err := s.sendAndPoll(op, args...); err != nil {
			return err
		}
		if d <= 0 || !s.clock.Now().Before(deadline) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// poll 最多检查 pollAttempts 次，有数据时读出全部可用行后停止；
// 无论是否收到数据，结束时清空一次输入缓冲
func (s *Switch) poll() error {
	for i := 0; i < s.pollAttempts; i++ {
		ok, err := s.conn.Available()
		if err != nil {
			return fmt.Errorf("%w: check input: %w", ErrRead, err)
		}
		if ok {
			if err := s.drain(); err != nil {
				return err
			}
			break
		}
		if i < s.pollAttempts-1 {
			s.clock.Sleep(s.pollInterval)
		}
	}
	if err := s.conn.ResetInput(); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	return nil
}

// drain 读出当前所有可用行
func (s *Switch) drain() error {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			return fmt.Errorf("%w line: %w", ErrRead, err)
		}
		if s.onResponse != nil {
			s.onResponse(line)
		}
		ok, err := s.conn.Available()
		if err != nil {
			return fmt.Errorf("%w: check input: %w", ErrRead, err)
		}
		if !ok {
			return nil
		}
	}
}
