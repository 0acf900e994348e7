package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/optical-switch/internal/api"
	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/database"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/hardware"
	"github.com/wfunc/optical-switch/internal/logger"
	"github.com/wfunc/optical-switch/internal/service"
	ws "github.com/wfunc/optical-switch/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db         *gorm.DB
	hub        *ws.Hub
	services   *service.Services
	httpServer *http.Server

	wg sync.WaitGroup
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		mock        = flag.Bool("mock", false, "使用模拟固件，不打开串口")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	if *mock {
		cfg.Serial.MockMode = true
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	setupSystem(&cfg.System)
	printStartInfo(cfg)

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
	}
}

// Start 初始化组件并开始监听
func (s *Server) Start() error {
	s.logger.Info("正在启动光开关服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()

	config.Watch(func(newCfg *config.Config) {
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.cfg.Server.Addr()),
		zap.String("websocket", s.cfg.WebSocket.Path),
		zap.String("serial", s.cfg.Serial.Port),
		zap.Bool("mock", s.cfg.Serial.MockMode),
	)
	return nil
}

// initComponents 初始化数据库、串口、服务和路由
func (s *Server) initComponents() error {
	if s.cfg.CommandLog.Enabled {
		if err := s.initDatabase(); err != nil {
			return err
		}
	}

	port, err := hardware.Open(hardware.NewSerialConfig(&s.cfg.Serial))
	if err != nil {
		return errors.Wrap(err, errors.ErrSerialPortOpen, s.cfg.Serial.Port)
	}
	conn := hardware.NewLineConn(port, s.cfg.Serial.LineTimeout)

	s.hub = ws.NewHub(logger.WithModule("websocket"), s.cfg.WebSocket.PingInterval)

	s.services, err = service.NewServices(s.cfg, conn, s.db, s.hub, s.logger)
	if err != nil {
		conn.Close()
		return err
	}

	router := api.NewRouter(s.cfg, s.services, s.hub, s.db, logger.WithModule("api"))
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	return nil
}

// initDatabase 初始化命令历史数据库
func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}
	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	s.db = database.GetDB()
	return nil
}

// WaitForShutdown 等待退出信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭
//
// 先停止光开关，进行中的持续扫描立即结束，HTTP 请求才能在超时内返回。
func (s *Server) Shutdown() error {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.services.Switch.Close(); err != nil {
		s.logger.Error("关闭串口失败", zap.Error(err))
	}

	var shutdownErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		shutdownErr = errors.Wrap(err, errors.ErrTimeout, "HTTP服务关闭超时")
	}

	if err := s.services.Close(); err != nil {
		s.logger.Error("关闭服务失败", zap.Error(err))
	}
	s.hub.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("关闭超时，强制退出")
	}

	if s.db != nil {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}
	logger.Cleanup()
	return shutdownErr
}

// reloadConfig 应用可热更新的配置项
func (s *Server) reloadConfig(newCfg *config.Config) {
	if err := logger.SetLevel(newCfg.Log.Level); err != nil {
		s.logger.Warn("日志级别无效", zap.String("level", newCfg.Log.Level), zap.Error(err))
	}
	if newCfg.Serial != s.cfg.Serial || newCfg.Server != s.cfg.Server {
		s.logger.Warn("串口和监听地址的修改需要重启生效")
	}
	s.logger.Info("配置重新加载完成", zap.String("log_level", newCfg.Log.Level))
}

// setupSystem 设置时区
func setupSystem(cfg *config.SystemConfig) {
	if cfg.Timezone == "" {
		return
	}
	if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
		time.Local = loc
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("光开关控制服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("  Optical Switch Controller")
	fmt.Printf("  版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("  配置文件: %s\n", config.ConfigFile())
	fmt.Printf("  串口: %s (%s, %d baud, mock=%v)\n", cfg.Serial.Port, cfg.Serial.Driver, cfg.Serial.BaudRate, cfg.Serial.MockMode)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
