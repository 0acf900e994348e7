package hardware

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/wfunc/optical-switch/internal/logger"
	"github.com/wfunc/optical-switch/internal/opticalswitch"
	"go.uber.org/zap"
)

// SimulatedSwitch 模拟光开关固件（用于测试和无硬件调试）
//
// 实现 SerialPort，收到命令后把应答写入输入缓冲区，应答行以 "\r\n" 结尾。
type SimulatedSwitch struct {
	mu     sync.Mutex
	cond   *sync.Cond
	logger *zap.Logger

	out    bytes.Buffer
	closed bool

	// 模拟状态
	ports        int
	currentPort  int
	cameraBefore int
	cameraAfter  int
	continuous   bool
	received     []string
}

// NewSimulatedSwitch 创建模拟固件
func NewSimulatedSwitch(ports int) *SimulatedSwitch {
	if ports <= 0 {
		ports = 16
	}
	s := &SimulatedSwitch{
		ports:  ports,
		logger: logger.WithModule("serial"),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write 接收命令，'\n' 或 '\r' 均视为命令结束
func (s *SimulatedSwitch) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, os.ErrClosed
	}

	cmds := strings.FieldsFunc(string(p), func(r rune) bool { return r == '\n' || r == '\r' })
	for _, cmd := range cmds {
		s.received = append(s.received, cmd)
		for _, line := range s.handle(cmd) {
			s.out.WriteString(line)
			s.out.WriteString("\r\n")
		}
	}
	s.cond.Broadcast()
	return len(p), nil
}

// Read 阻塞直到有应答数据或端口关闭
func (s *SimulatedSwitch) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.out.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.out.Len() == 0 {
		return 0, os.ErrClosed
	}
	return s.out.Read(b)
}

// Flush 丢弃未读取的应答
func (s *SimulatedSwitch) Flush() error {
	s.mu.Lock()
	s.out.Reset()
	s.mu.Unlock()
	return nil
}

// Close 关闭模拟端口
func (s *SimulatedSwitch) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

// Received 返回收到的命令
func (s *SimulatedSwitch) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// CurrentPort 当前切换到的端口
func (s *SimulatedSwitch) CurrentPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPort
}

// CameraDelay 当前相机延时设置
func (s *SimulatedSwitch) CameraDelay() (before, after int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraBefore, s.cameraAfter
}

// handle 生成命令应答，调用方持有锁
func (s *SimulatedSwitch) handle(cmd string) []string {
	op, args, err := opticalswitch.ParseCommand(cmd)
	if err != nil {
		s.logger.Debug("模拟固件收到未知命令", zap.String("command", cmd))
		return []string{"ERR unknown command"}
	}
	continuous := opticalswitch.IsContinuous(op, args)
	s.continuous = continuous

	switch op {
	case opticalswitch.OpScanAll:
		if continuous {
			return []string{fmt.Sprintf("SCAN 1-%d CONTINUOUS", s.ports)}
		}
		s.currentPort = s.ports
		return []string{fmt.Sprintf("SCAN 1-%d", s.ports), "DONE"}

	case opticalswitch.OpScanOne:
		if len(args) < 1 || !s.validPort(args[0]) {
			return []string{"ERR invalid port"}
		}
		s.currentPort = args[0]
		if continuous {
			return []string{fmt.Sprintf("PORT %d CONTINUOUS", args[0])}
		}
		return []string{fmt.Sprintf("PORT %d", args[0])}

	case opticalswitch.OpScanRange:
		if len(args) < 2 || !s.validPort(args[0]) || !s.validPort(args[1]) {
			return []string{"ERR invalid range"}
		}
		if continuous {
			return []string{fmt.Sprintf("SCAN %d-%d CONTINUOUS", args[0], args[1])}
		}
		s.currentPort = args[1]
		return []string{fmt.Sprintf("SCAN %d-%d", args[0], args[1]), "DONE"}

	case opticalswitch.OpDebug:
		s.continuous = false
		return []string{
			fmt.Sprintf("ports=%d", s.ports),
			fmt.Sprintf("current_port=%d", s.currentPort),
			fmt.Sprintf("camera_delay=%d,%d", s.cameraBefore, s.cameraAfter),
			"mode=idle",
		}

	case opticalswitch.OpSetCameraDelay:
		if len(args) < 2 {
			return []string{"ERR invalid delay"}
		}
		s.cameraBefore, s.cameraAfter = args[0], args[1]
		return []string{fmt.Sprintf("DELAY %d,%d", args[0], args[1])}
	}

	return []string{"ERR unknown command"}
}

func (s *SimulatedSwitch) validPort(p int) bool {
	return p >= 1 && p <= s.ports
}
