package opticalswitch

import (
	"strconv"
	"strings"
)

// Opcode 命令操作码（命令字符串的第一个整数）
type Opcode int

const (
	OpScanAll        Opcode = 1 // 扫描全部端口
	OpScanOne        Opcode = 2 // 扫描单个端口
	OpScanRange      Opcode = 3 // 扫描端口范围
	OpDebug          Opcode = 4 // 查询调试状态
	OpSetCameraDelay Opcode = 5 // 设置相机延时
)

// DefaultTerminator 命令结束符
const DefaultTerminator = "\n\r"

// continuousFlag 追加在参数末尾，请求固件持续扫描
const continuousFlag = 1

// String 返回操作码名称
func (op Opcode) String() string {
	switch op {
	case OpScanAll:
		return "scan_all"
	case OpScanOne:
		return "scan_one"
	case OpScanRange:
		return "scan_range"
	case OpDebug:
		return "debug"
	case OpSetCameraDelay:
		return "set_camera_delay"
	default:
		return "unknown"
	}
}

// Encode 按 "<opcode>[,<arg>]*" 格式编码命令，不含结束符
func Encode(op Opcode, args ...int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(op)))
	for _, arg := range args {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(arg))
	}
	return b.String()
}

// Frame 编码命令并追加结束符
func Frame(terminator string, op Opcode, args ...int) []byte {
	return []byte(Encode(op, args...) + terminator)
}

// ParseCommand 解析命令字符串（忽略结束符），用于日志和模拟固件
func ParseCommand(raw string) (Opcode, []int, error) {
	raw = strings.Trim(raw, "\r\n ")
	parts := strings.Split(raw, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, nil, err
		}
		values = append(values, v)
	}
	return Opcode(values[0]), values[1:], nil
}

// IsContinuous 判断参数是否带有持续扫描标志
func IsContinuous(op Opcode, args []int) bool {
	switch op {
	case OpScanAll:
		return len(args) == 1 && args[0] == continuousFlag
	case OpScanOne:
		return len(args) == 2 && args[1] == continuousFlag
	case OpScanRange:
		return len(args) == 3 && args[2] == continuousFlag
	}
	return false
}
