package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/logger"
	"github.com/wfunc/optical-switch/internal/models"
	"github.com/wfunc/optical-switch/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultLogBufferSize    = 1000
	defaultLogBatchSize     = 100
	defaultLogFlushInterval = 5 * time.Second
	cleanupInterval         = 24 * time.Hour
)

// CommandLogService 命令历史服务，异步批量写入
type CommandLogService struct {
	repo   repository.CommandLogRepository
	logger *zap.Logger

	buffer        []*models.CommandLog
	bufferCh      chan *models.CommandLog
	flushCh       chan chan struct{}
	stopCh        chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
	batchSize     int
	flushInterval time.Duration
	retentionDays int
	dropped       atomic.Int64
}

// NewCommandLogService 创建命令历史服务并启动后台写入协程
func NewCommandLogService(repo repository.CommandLogRepository, cfg *config.CommandLogConfig) *CommandLogService {
	bufferSize, batchSize, interval := defaultLogBufferSize, defaultLogBatchSize, defaultLogFlushInterval
	retention := 0
	if cfg != nil {
		if cfg.BufferSize > 0 {
			bufferSize = cfg.BufferSize
		}
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
		if cfg.FlushInterval > 0 {
			interval = cfg.FlushInterval
		}
		retention = cfg.RetentionDays
	}

	s := &CommandLogService{
		repo:          repo,
		logger:        logger.WithModule("database"),
		buffer:        make([]*models.CommandLog, 0, batchSize),
		bufferCh:      make(chan *models.CommandLog, bufferSize),
		flushCh:       make(chan chan struct{}),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		batchSize:     batchSize,
		flushInterval: interval,
		retentionDays: retention,
	}

	go s.backgroundWriter()
	return s
}

// backgroundWriter 后台写入协程，缓冲区只在此协程中访问
func (s *CommandLogService) backgroundWriter() {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
			if len(s.buffer) >= s.batchSize {
				s.flushBuffer()
			}

		case <-ticker.C:
			s.flushBuffer()

		case ack := <-s.flushCh:
			s.drainChannel()
			s.flushBuffer()
			close(ack)

		case <-cleanup.C:
			if s.retentionDays > 0 {
				if n, err := s.repo.Cleanup(context.Background(), s.retentionDays); err != nil {
					s.logger.Error("清理命令日志失败", zap.Error(err))
				} else if n > 0 {
					s.logger.Info("已清理过期命令日志", zap.Int64("count", n))
				}
			}

		case <-s.stopCh:
			// 退出前写入剩余的日志
			s.drainChannel()
			s.flushBuffer()
			return
		}
	}
}

// drainChannel 把通道中已排队的日志移入缓冲区
func (s *CommandLogService) drainChannel() {
	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
			if len(s.buffer) >= s.batchSize {
				s.flushBuffer()
			}
		default:
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库
func (s *CommandLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	start := time.Now()
	err := s.repo.CreateBatch(context.Background(), s.buffer)
	logger.LogDatabaseOperation("create_batch", "command_logs", time.Since(start), err)
	if err != nil {
		s.logger.Error("批量写入命令日志失败", zap.Int("count", len(s.buffer)), zap.Error(err))
	}

	s.buffer = make([]*models.CommandLog, 0, s.batchSize)
}

// Record 异步记录一条命令日志，缓冲区满时丢弃
func (s *CommandLogService) Record(log *models.CommandLog) {
	select {
	case <-s.stopCh:
		return
	default:
	}

	select {
	case s.bufferCh <- log:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.logger.Warn("命令日志缓冲区满，丢弃日志", zap.Int64("dropped", s.dropped.Load()))
		}
	}
}

// Dropped 因缓冲区满丢弃的日志数
func (s *CommandLogService) Dropped() int64 {
	return s.dropped.Load()
}

// Flush 立即写入所有已记录的日志
func (s *CommandLogService) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case s.flushCh <- ack:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query 查询命令日志
func (s *CommandLogService) Query(ctx context.Context, query *models.CommandLogQuery) ([]*models.CommandLog, int64, error) {
	return s.repo.Query(ctx, query)
}

// Latest 最新的命令日志
func (s *CommandLogService) Latest(ctx context.Context, limit int, operation string) ([]*models.CommandLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.GetLatest(ctx, limit, operation)
}

// ByRequestID 一次调用的全部记录
func (s *CommandLogService) ByRequestID(ctx context.Context, requestID string) ([]*models.CommandLog, error) {
	return s.repo.GetByRequestID(ctx, requestID)
}

// Stats 统计信息
func (s *CommandLogService) Stats(ctx context.Context, start, end *time.Time) (*models.CommandLogStats, error) {
	return s.repo.GetStats(ctx, start, end)
}

// Cleanup 只保留最近N天的日志
func (s *CommandLogService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return s.repo.Cleanup(ctx, retentionDays)
}

// Close 停止后台协程并写入剩余日志
func (s *CommandLogService) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.done
	})
}
