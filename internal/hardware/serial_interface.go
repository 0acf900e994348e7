package hardware

import "io"

// SerialPort 串口接口（用于测试）
type SerialPort interface {
	io.ReadWriteCloser
	// Flush 丢弃输入缓冲区中未读取的数据
	Flush() error
}
