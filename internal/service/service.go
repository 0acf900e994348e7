package service

import (
	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/opticalswitch"
	"github.com/wfunc/optical-switch/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Switch      *SwitchService
	CommandLogs *CommandLogService // 未启用命令历史时为 nil
	Auth        AuthService
}

// NewServices 创建服务集合
//
// db 为 nil 或 command_log.enabled 为 false 时不记录命令历史；
// publisher 可为 nil。conn 由 Switch 服务接管。
func NewServices(cfg *config.Config, conn opticalswitch.Conn, db *gorm.DB, publisher EventPublisher, log *zap.Logger) (*Services, error) {
	auth, err := NewAuthService(&cfg.Security, log)
	if err != nil {
		return nil, err
	}

	s := &Services{Auth: auth}

	var recorder CommandRecorder
	if db != nil && cfg.CommandLog.Enabled {
		s.CommandLogs = NewCommandLogService(repository.NewCommandLogRepository(db), &cfg.CommandLog)
		recorder = s.CommandLogs
	}

	s.Switch = NewSwitchService(conn,
		NewSwitchServiceConfig(&cfg.Switch, cfg.Serial.Port),
		recorder,
		publisher,
	)

	log.Info("服务初始化完成",
		zap.String("session_id", s.Switch.SessionID()),
		zap.Bool("command_log", s.CommandLogs != nil),
	)
	return s, nil
}

// Close 关闭光开关并写完剩余的命令历史
func (s *Services) Close() error {
	err := s.Switch.Close()
	if s.CommandLogs != nil {
		s.CommandLogs.Close()
	}
	return err
}
