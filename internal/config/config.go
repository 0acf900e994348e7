package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Serial     SerialConfig     `mapstructure:"serial"`
	Switch     SwitchConfig     `mapstructure:"switch"`
	CommandLog CommandLogConfig `mapstructure:"command_log"`
	Log        LogConfig        `mapstructure:"log"`
	Security   SecurityConfig   `mapstructure:"security"`
	System     SystemConfig     `mapstructure:"system"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Driver      string        `mapstructure:"driver"`    // tarm 或 bugst
	MockMode    bool          `mapstructure:"mock_mode"` // 使用模拟固件
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	LineTimeout time.Duration `mapstructure:"line_timeout"`
	MockPorts   int           `mapstructure:"mock_ports"`
}

// SwitchConfig 光开关命令配置
type SwitchConfig struct {
	PollAttempts  int           `mapstructure:"poll_attempts"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Terminator    string        `mapstructure:"terminator"`
	MaxContinuous time.Duration `mapstructure:"max_continuous"`
	MaxPort       int           `mapstructure:"max_port"`
}

// CommandLogConfig 命令历史配置
type CommandLogConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AuthEnabled bool             `mapstructure:"auth_enabled"`
	JWT         JWTConfig        `mapstructure:"jwt"`
	Operators   []OperatorConfig `mapstructure:"operators"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

// OperatorConfig 操作员账号（密码为 argon2id 编码哈希）
type OperatorConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		v.SetEnvPrefix("OPTOSWITCH")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		SetDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		loaded := &Config{}
		if err = v.Unmarshal(loaded); err != nil {
			return
		}
		if err = loaded.Validate(); err != nil {
			return
		}

		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// SetDefaults 设置默认配置值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/optical-switch.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("websocket.path", "/ws/responses")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.ping_interval", "30s")

	// 固件要求：奇校验、2停止位、8数据位、无读超时
	v.SetDefault("serial.driver", "tarm")
	v.SetDefault("serial.mock_mode", false)
	v.SetDefault("serial.port", "/dev/ttyACM0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 2)
	v.SetDefault("serial.parity", "O")
	v.SetDefault("serial.read_timeout", "0s")
	v.SetDefault("serial.line_timeout", "1s")
	v.SetDefault("serial.mock_ports", 64)

	v.SetDefault("switch.poll_attempts", 50)
	v.SetDefault("switch.poll_interval", "100ms")
	v.SetDefault("switch.terminator", "\n\r")
	v.SetDefault("switch.max_continuous", "4m") // 小于 server.write_timeout
	v.SetDefault("switch.max_port", 0)

	v.SetDefault("command_log.enabled", true)
	v.SetDefault("command_log.buffer_size", 1000)
	v.SetDefault("command_log.batch_size", 100)
	v.SetDefault("command_log.flush_interval", "5s")
	v.SetDefault("command_log.retention_days", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "optical-switch.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("security.auth_enabled", true)
	v.SetDefault("security.jwt.secret", "change-me-in-production")
	v.SetDefault("security.jwt.expire_hours", 12)
	v.SetDefault("security.jwt.refresh_hours", 168)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Serial.Driver {
	case "tarm", "bugst":
	default:
		return fmt.Errorf("不支持的串口驱动: %s", c.Serial.Driver)
	}
	if c.Switch.PollAttempts <= 0 {
		return fmt.Errorf("switch.poll_attempts 必须大于0")
	}
	if c.Switch.PollInterval < 0 {
		return fmt.Errorf("switch.poll_interval 不能为负数")
	}
	if !c.Serial.MockMode && c.Serial.Port == "" {
		return fmt.Errorf("serial.port 未配置")
	}
	if c.Security.AuthEnabled && c.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret 未配置")
	}
	return nil
}

// Load 从指定文件加载配置（不影响全局实例，供命令行工具和测试使用）
func Load(configPath string) (*Config, error) {
	lv := viper.New()
	lv.SetEnvPrefix("OPTOSWITCH")
	lv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	lv.AutomaticEnv()
	SetDefaults(lv)

	if configPath != "" {
		lv.SetConfigFile(configPath)
		if err := lv.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	loaded := &Config{}
	if err := lv.Unmarshal(loaded); err != nil {
		return nil, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置校验失败，保留旧配置: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}

// ConfigFile 当前使用的配置文件路径
func ConfigFile() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
