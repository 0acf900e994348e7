package hardware

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/optical-switch/internal/logger"
	"go.uber.org/zap"
)

var (
	// ErrLineTimeout 等待整行超时
	ErrLineTimeout = errors.New("等待串口响应行超时")
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("串口连接已关闭")
)

const (
	defaultLineTimeout = time.Second
	maxQueuedLines     = 256
	readBufferSize     = 256
)

// LineConn 按行读取的串口连接
//
// 后台协程持续读取串口，以 '\n' 切分并去掉 '\r'，空行丢弃。
// 同一次读取得到的多行一起入队，轮询方不会只看到其中一部分。
type LineConn struct {
	port        SerialPort
	notify      chan struct{}
	stopCh      chan struct{}
	done        chan struct{}
	lineTimeout time.Duration
	generation  atomic.Uint64
	closeOnce   sync.Once
	logger      *zap.Logger

	mu      sync.Mutex
	lines   []string
	readErr error
}

// NewLineConn 创建行连接并启动读取协程
func NewLineConn(port SerialPort, lineTimeout time.Duration) *LineConn {
	if lineTimeout <= 0 {
		lineTimeout = defaultLineTimeout
	}
	c := &LineConn{
		port:        port,
		notify:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		lineTimeout: lineTimeout,
		logger:      logger.WithModule("serial"),
	}
	go c.readLoop()
	return c
}

// readLoop 读取串口数据并切分为行
func (c *LineConn) readLoop() {
	defer close(c.done)

	buf := make([]byte, readBufferSize)
	var partial []byte
	gen := c.generation.Load()

	for {
		n, err := c.port.Read(buf)

		// ResetInput 之后丢弃半行数据
		if cur := c.generation.Load(); cur != gen {
			partial = partial[:0]
			gen = cur
		}

		if n > 0 {
			partial = append(partial, buf[:n]...)
			var lines []string
			for {
				i := bytes.IndexByte(partial, '\n')
				if i < 0 {
					break
				}
				if line := strings.Trim(string(partial[:i]), "\r"); line != "" {
					lines = append(lines, line)
				}
				partial = partial[i+1:]
			}
			c.push(gen, lines)
		}

		if c.stopped() {
			return
		}

		if err != nil {
			// tarm 读超时返回 io.EOF
			if errors.Is(err, io.EOF) {
				continue
			}
			c.setErr(err)
			c.logger.Error("串口读取失败", zap.Error(err))
			return
		}
	}
}

// push 入队一批行，期间发生过 ResetInput 时丢弃
func (c *LineConn) push(gen uint64, lines []string) {
	if len(lines) == 0 {
		return
	}
	c.mu.Lock()
	if c.generation.Load() != gen {
		c.mu.Unlock()
		return
	}
	c.lines = append(c.lines, lines...)
	if over := len(c.lines) - maxQueuedLines; over > 0 {
		c.lines = c.lines[over:]
		c.logger.Warn("响应行积压，丢弃最早的行", zap.Int("dropped", over))
	}
	c.mu.Unlock()
	c.signal()
}

func (c *LineConn) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *LineConn) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *LineConn) setErr(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.signal()
}

// pop 取出一行；没有数据时返回读取错误
func (c *LineConn) pop() (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) > 0 {
		line := c.lines[0]
		c.lines = c.lines[1:]
		return line, true, nil
	}
	return "", false, c.readErr
}

func (c *LineConn) queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Write 写入原始数据
func (c *LineConn) Write(p []byte) (int, error) {
	if c.stopped() {
		return 0, ErrConnClosed
	}
	return c.port.Write(p)
}

// Available 是否有已接收的完整行
func (c *LineConn) Available() (bool, error) {
	if c.stopped() {
		return false, ErrConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) > 0 {
		return true, nil
	}
	return false, c.readErr
}

// ReadLine 读取一行，不含行尾
func (c *LineConn) ReadLine() (string, error) {
	timer := time.NewTimer(c.lineTimeout)
	defer timer.Stop()

	for {
		line, ok, err := c.pop()
		if ok {
			return line, nil
		}
		if err != nil {
			return "", err
		}

		select {
		case <-c.notify:
		case <-timer.C:
			return "", ErrLineTimeout
		case <-c.stopCh:
			return "", ErrConnClosed
		}
	}
}

// ResetInput 丢弃所有未读取的数据
func (c *LineConn) ResetInput() error {
	c.mu.Lock()
	c.generation.Add(1)
	c.lines = nil
	c.mu.Unlock()
	return c.port.Flush()
}

// Close 停止读取并关闭串口
func (c *LineConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopCh)
		err = c.port.Close()
		select {
		case <-c.done:
		case <-time.After(time.Second):
			c.logger.Warn("串口读取协程未及时退出")
		}
	})
	return err
}
