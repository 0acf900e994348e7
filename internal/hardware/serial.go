package hardware

import (
	"fmt"
	"os"
	"strings"
	"time"

	tarm "github.com/tarm/serial"
	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/logger"
	bugst "go.bug.st/serial"
	"go.uber.org/zap"
)

// 串口驱动
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
)

// SerialConfig 串口配置
type SerialConfig struct {
	Driver      string        // 串口驱动
	Port        string        // 串口端口
	BaudRate    int           // 波特率
	DataBits    int           // 数据位
	StopBits    int           // 停止位
	Parity      string        // 校验位
	ReadTimeout time.Duration // 读取超时
	MockMode    bool          // 使用模拟固件
	MockPorts   int           // 模拟固件端口数
}

// DefaultSerialConfig 光开关固件的默认串口参数
func DefaultSerialConfig() *SerialConfig {
	return &SerialConfig{
		Driver:      DriverTarm,
		Port:        "/dev/ttyACM0",
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    2,
		Parity:      "O",
		ReadTimeout: 100 * time.Millisecond,
		MockPorts:   16,
	}
}

// NewSerialConfig 从应用配置生成串口配置
func NewSerialConfig(c *config.SerialConfig) *SerialConfig {
	cfg := DefaultSerialConfig()
	if c == nil {
		return cfg
	}
	if c.Driver != "" {
		cfg.Driver = c.Driver
	}
	if c.Port != "" {
		cfg.Port = c.Port
	}
	if c.BaudRate > 0 {
		cfg.BaudRate = c.BaudRate
	}
	if c.DataBits > 0 {
		cfg.DataBits = c.DataBits
	}
	if c.StopBits > 0 {
		cfg.StopBits = c.StopBits
	}
	if c.Parity != "" {
		cfg.Parity = c.Parity
	}
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
	}
	if c.MockPorts > 0 {
		cfg.MockPorts = c.MockPorts
	}
	cfg.MockMode = c.MockMode
	return cfg
}

// Open 按配置打开串口
func Open(cfg *SerialConfig) (SerialPort, error) {
	log := logger.WithModule("serial")

	if cfg.MockMode {
		log.Info("使用模拟光开关固件", zap.Int("ports", cfg.MockPorts))
		return NewSimulatedSwitch(cfg.MockPorts), nil
	}

	if strings.HasPrefix(cfg.Port, "/") && !SerialPortExists(cfg.Port) {
		return nil, fmt.Errorf("串口 %s 不存在", cfg.Port)
	}

	var (
		port SerialPort
		err  error
	)
	switch cfg.Driver {
	case DriverBugst:
		port, err = openBugst(cfg)
	case DriverTarm, "":
		port, err = openTarm(cfg)
	default:
		return nil, fmt.Errorf("未知的串口驱动: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Info("串口已打开",
		zap.String("driver", cfg.Driver),
		zap.String("port", cfg.Port),
		zap.Int("baud", cfg.BaudRate),
		zap.String("parity", cfg.Parity),
		zap.Int("stop_bits", cfg.StopBits),
	)
	return port, nil
}

// openTarm 使用 tarm/serial 打开串口
func openTarm(cfg *SerialConfig) (SerialPort, error) {
	parity, err := tarmParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := tarmStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	port, err := tarm.OpenPort(&tarm.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		Parity:      parity,
		StopBits:    stopBits,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("打开串口 %s 失败: %w", cfg.Port, err)
	}
	return port, nil
}

// bugstPort 为 go.bug.st/serial 端口补充 Flush
type bugstPort struct {
	bugst.Port
}

// Flush 丢弃输入缓冲区
func (p bugstPort) Flush() error {
	return p.ResetInputBuffer()
}

// openBugst 使用 go.bug.st/serial 打开串口
func openBugst(cfg *SerialConfig) (SerialPort, error) {
	parity, err := bugstParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := bugstStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	port, err := bugst.Open(cfg.Port, &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: stopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("打开串口 %s 失败: %w", cfg.Port, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("设置读取超时失败: %w", err)
		}
	}
	return bugstPort{Port: port}, nil
}

// normalizeParity 统一校验位写法: N/O/E
func normalizeParity(p string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(p)) {
	case "", "N", "NONE":
		return "N", nil
	case "O", "ODD":
		return "O", nil
	case "E", "EVEN":
		return "E", nil
	default:
		return "", fmt.Errorf("无效的校验位: %q", p)
	}
}

func tarmParity(p string) (tarm.Parity, error) {
	n, err := normalizeParity(p)
	if err != nil {
		return 0, err
	}
	switch n {
	case "O":
		return tarm.ParityOdd, nil
	case "E":
		return tarm.ParityEven, nil
	default:
		return tarm.ParityNone, nil
	}
}

func tarmStopBits(bits int) (tarm.StopBits, error) {
	switch bits {
	case 1:
		return tarm.Stop1, nil
	case 2:
		return tarm.Stop2, nil
	default:
		return 0, fmt.Errorf("无效的停止位: %d", bits)
	}
}

func bugstParity(p string) (bugst.Parity, error) {
	n, err := normalizeParity(p)
	if err != nil {
		return 0, err
	}
	switch n {
	case "O":
		return bugst.OddParity, nil
	case "E":
		return bugst.EvenParity, nil
	default:
		return bugst.NoParity, nil
	}
}

func bugstStopBits(bits int) (bugst.StopBits, error) {
	switch bits {
	case 1:
		return bugst.OneStopBit, nil
	case 2:
		return bugst.TwoStopBits, nil
	default:
		return 0, fmt.Errorf("无效的停止位: %d", bits)
	}
}

// SerialPortExists 检查串口设备文件是否存在
func SerialPortExists(port string) bool {
	_, err := os.Stat(port)
	return err == nil
}
