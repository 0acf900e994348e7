package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CommandDirection 命令日志方向
type CommandDirection string

const (
	DirectionSend    CommandDirection = "SEND"    // 发送到光开关
	DirectionReceive CommandDirection = "RECEIVE" // 光开关应答
)

// IntList 以JSON数组存储的整数列表
type IntList []int

// Value 实现 driver.Valuer 接口
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口
func (l *IntList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*l = IntList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("IntList: 不支持的类型 %T", value)
	}
	return json.Unmarshal(data, l)
}

// CommandLog 光开关命令历史
type CommandLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	// 关联信息
	RequestID string           `gorm:"type:varchar(64);index" json:"request_id"` // 同一次调用的发送和应答共用
	Direction CommandDirection `gorm:"type:varchar(10);index;not null" json:"direction"`
	SessionID string           `gorm:"type:varchar(64);index" json:"session_id"` // 服务运行会话
	Source    string           `gorm:"type:varchar(16);index" json:"source"`     // api/cli/continuous
	Port      string           `gorm:"type:varchar(100)" json:"port,omitempty"` // 串口设备

	// 命令相关
	Operation  string  `gorm:"type:varchar(32);index" json:"operation"`  // 如 scan_one
	Opcode     int     `gorm:"default:0" json:"opcode"`                 // 命令首个整数
	Command    string  `gorm:"type:varchar(64)" json:"command"`          // 如 "2,4"
	Args       IntList `gorm:"type:varchar(255)" json:"args,omitempty"`  // 命令参数
	HexData    string  `gorm:"type:varchar(255)" json:"hex_data"`        // 发送字节（十六进制）
	BytesCount int     `gorm:"default:0" json:"bytes_count"`            // 字节数
	Continuous bool    `gorm:"default:false" json:"continuous"`         // 持续扫描
	Response   string  `gorm:"type:text" json:"response,omitempty"`     // 应答行
	ErrorMsg   string  `gorm:"type:text" json:"error_msg,omitempty"`    // 错误信息
	DurationMs int64   `gorm:"default:0" json:"duration_ms,omitempty"`  // 命令耗时（毫秒）
	Timestamp  int64   `gorm:"index" json:"timestamp"`                  // Unix时间戳（毫秒）
}

// TableName 指定表名
func (CommandLog) TableName() string {
	return "command_logs"
}

// BeforeCreate 创建前的钩子
func (c *CommandLog) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Timestamp == 0 {
		c.Timestamp = c.CreatedAt.UnixMilli()
	}
	return nil
}

// CommandLogQuery 查询参数
type CommandLogQuery struct {
	Direction CommandDirection `json:"direction,omitempty" form:"direction"`
	Operation string           `json:"operation,omitempty" form:"operation"`
	RequestID string           `json:"request_id,omitempty" form:"request_id"`
	SessionID string           `json:"session_id,omitempty" form:"session_id"`
	Source    string           `json:"source,omitempty" form:"source"`
	StartTime *time.Time       `json:"start_time,omitempty" form:"start_time" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime   *time.Time       `json:"end_time,omitempty" form:"end_time" time_format:"2006-01-02T15:04:05Z07:00"`
	HasError  *bool            `json:"has_error,omitempty" form:"has_error"`
	Limit     int              `json:"limit,omitempty" form:"limit"`
	Offset    int              `json:"offset,omitempty" form:"offset"`
	OrderBy   string           `json:"order_by,omitempty" form:"order_by"`
}

// CommandLogStats 统计信息
type CommandLogStats struct {
	TotalCount   int64            `json:"total_count"`
	TotalSend    int64            `json:"total_send"`
	TotalReceive int64            `json:"total_receive"`
	TotalErrors  int64            `json:"total_errors"`
	ByOperation  map[string]int64 `json:"by_operation"`
	AvgDuration  float64          `json:"avg_duration_ms"`
	MaxDuration  int64            `json:"max_duration_ms"`
}
