package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/optical-switch/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zap.Logger
	mu     sync.RWMutex

	// 模块日志器
	moduleLoggers = map[string]*zap.Logger{}
)

// Init 初始化日志系统，可重复调用以应用新配置
func Init(cfg *config.LogConfig) error {
	encoder := newEncoder(cfg.Format)
	level := parseLevel(cfg.Level)

	sinks, err := openSinks(cfg)
	if err != nil {
		return err
	}

	cores := make([]zapcore.Core, 0, len(sinks)+1)
	for _, ws := range sinks {
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}

	// 文件输出时单独记录错误日志
	if cfg.Output == "file" || cfg.Output == "both" {
		errorWriter := newRotatingWriter(cfg.File, "error.log")
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(errorWriter), zapcore.ErrorLevel))
	}

	base := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	// 模块日志器共用输出，只覆盖级别
	modules := make(map[string]*zap.Logger, len(cfg.Modules))
	for module, levelStr := range cfg.Modules {
		moduleLevel := parseLevel(levelStr)
		moduleCores := make([]zapcore.Core, 0, len(sinks))
		for _, ws := range sinks {
			moduleCores = append(moduleCores, zapcore.NewCore(encoder, ws, moduleLevel))
		}
		modules[module] = zap.New(zapcore.NewTee(moduleCores...), zap.AddCaller()).
			Named(module)
	}

	mu.Lock()
	logger = base
	moduleLoggers = modules
	mu.Unlock()

	return nil
}

// newEncoder 根据格式创建编码器
func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// openSinks 打开输出目标
func openSinks(cfg *config.LogConfig) ([]zapcore.WriteSyncer, error) {
	var sinks []zapcore.WriteSyncer

	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}

	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		sinks = append(sinks, zapcore.AddSync(newRotatingWriter(cfg.File, cfg.File.Filename)))
	}

	return sinks, nil
}

// newRotatingWriter 创建支持轮转的文件写入器
func newRotatingWriter(cfg config.LogFileConfig, filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, filename),
		MaxSize:    cfg.MaxSize,    // MB
		MaxAge:     cfg.MaxAge,     // days
		MaxBackups: cfg.MaxBackups, // 保留文件数
		Compress:   cfg.Compress,
	}
}

// parseLevel 解析日志级别
func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger 获取日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		// 未初始化时使用默认配置
		defaultLogger, _ := zap.NewProduction()
		return defaultLogger
	}
	return logger
}

// WithModule 获取模块日志器，未单独配置的模块使用默认日志器
func WithModule(module string) *zap.Logger {
	mu.RLock()
	moduleLogger, ok := moduleLoggers[module]
	mu.RUnlock()
	if ok {
		return moduleLogger
	}
	return GetLogger().Named(module)
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Debug 输出调试日志
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Warn 输出警告日志
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogRequest 记录请求日志
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	WithModule("api").Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogSerialCommand 记录串口命令
func LogSerialCommand(cmd string, responses []string, err error) {
	l := WithModule("serial")
	if err == nil {
		l.Info("serial_command",
			zap.String("command", cmd),
			zap.Strings("responses", responses),
		)
		return
	}
	l.Error("serial_command_failed",
		zap.String("command", cmd),
		zap.Strings("responses", responses),
		zap.Error(err),
	)
}

// LogDatabaseOperation 记录数据库操作
func LogDatabaseOperation(operation string, table string, duration time.Duration, err error) {
	l := WithModule("database")
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Duration("duration", duration),
	}
	if err != nil {
		l.Error("database_operation_failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("database_operation", fields...)
}

// SetLevel 动态设置日志级别
func SetLevel(levelStr string) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("配置未初始化")
	}
	logCfg := cfg.Log
	logCfg.Level = levelStr
	return Init(&logCfg)
}

// Cleanup 清理日志资源
func Cleanup() {
	if err := Sync(); err != nil {
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}
