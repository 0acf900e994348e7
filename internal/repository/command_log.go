package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/optical-switch/internal/models"
	"gorm.io/gorm"
)

// defaultBatchSize 批量写入的单批行数
const defaultBatchSize = 100

// 允许的排序字段
var commandLogOrders = map[string]string{
	"":                 "created_at DESC, id DESC",
	"created_at DESC":  "created_at DESC, id DESC",
	"created_at ASC":   "created_at ASC, id ASC",
	"duration_ms DESC": "duration_ms DESC",
	"duration_ms ASC":  "duration_ms ASC",
}

// CommandLogRepository 命令日志仓储接口
type CommandLogRepository interface {
	GetDB() *gorm.DB
	Create(ctx context.Context, log *models.CommandLog) error
	CreateBatch(ctx context.Context, logs []*models.CommandLog) error
	GetByID(ctx context.Context, id uint) (*models.CommandLog, error)
	GetByRequestID(ctx context.Context, requestID string) ([]*models.CommandLog, error)
	Query(ctx context.Context, query *models.CommandLogQuery) ([]*models.CommandLog, int64, error)
	GetLatest(ctx context.Context, limit int, operation string) ([]*models.CommandLog, error)
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*models.CommandLogStats, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// commandLogRepo 命令日志仓储实现
type commandLogRepo struct {
	*BaseRepo
}

// NewCommandLogRepository 创建命令日志仓储
func NewCommandLogRepository(db *gorm.DB) CommandLogRepository {
	return &commandLogRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建日志记录
func (r *commandLogRepo) Create(ctx context.Context, log *models.CommandLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// CreateBatch 批量创建日志记录
func (r *commandLogRepo) CreateBatch(ctx context.Context, logs []*models.CommandLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, defaultBatchSize).Error
}

// GetByID 根据ID获取日志
func (r *commandLogRepo) GetByID(ctx context.Context, id uint) (*models.CommandLog, error) {
	var log models.CommandLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// GetByRequestID 获取一次调用的发送和应答记录
func (r *commandLogRepo) GetByRequestID(ctx context.Context, requestID string) ([]*models.CommandLog, error) {
	var logs []*models.CommandLog
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&logs).Error
	return logs, err
}

// Query 按条件查询日志，返回当前页和总数
func (r *commandLogRepo) Query(ctx context.Context, query *models.CommandLogQuery) ([]*models.CommandLog, int64, error) {
	orderBy, ok := commandLogOrders[query.OrderBy]
	if !ok {
		return nil, 0, fmt.Errorf("不支持的排序方式: %s", query.OrderBy)
	}

	db := r.db.WithContext(ctx).Model(&models.CommandLog{})
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Operation != "" {
		db = db.Where("operation = ?", query.Operation)
	}
	if query.RequestID != "" {
		db = db.Where("request_id = ?", query.RequestID)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.Source != "" {
		db = db.Where("source = ?", query.Source)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.HasError != nil {
		if *query.HasError {
			db = db.Where("error_msg IS NOT NULL AND error_msg != ''")
		} else {
			db = db.Where("(error_msg IS NULL OR error_msg = '')")
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Order(orderBy)
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var logs []*models.CommandLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// GetLatest 获取最新的日志记录
func (r *commandLogRepo) GetLatest(ctx context.Context, limit int, operation string) ([]*models.CommandLog, error) {
	var logs []*models.CommandLog
	db := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if operation != "" {
		db = db.Where("operation = ?", operation)
	}
	err := db.Find(&logs).Error
	return logs, err
}

// GetStats 获取统计信息
func (r *commandLogRepo) GetStats(ctx context.Context, startTime, endTime *time.Time) (*models.CommandLogStats, error) {
	stats := &models.CommandLogStats{ByOperation: map[string]int64{}}

	scoped := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.CommandLog{})
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}

	if err := scoped().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := scoped().Where("direction = ?", models.DirectionSend).Count(&stats.TotalSend).Error; err != nil {
		return nil, err
	}
	stats.TotalReceive = stats.TotalCount - stats.TotalSend

	if err := scoped().Where("error_msg IS NOT NULL AND error_msg != ''").Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	// 按操作统计发送次数
	type operationCount struct {
		Operation string
		Count     int64
	}
	var counts []operationCount
	if err := scoped().
		Select("operation, COUNT(*) as count").
		Where("direction = ?", models.DirectionSend).
		Group("operation").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.ByOperation[c.Operation] = c.Count
	}

	// 耗时统计
	type durationStats struct {
		AvgDuration float64
		MaxDuration int64
	}
	var ds durationStats
	if err := scoped().
		Select("COALESCE(AVG(duration_ms), 0) as avg_duration, COALESCE(MAX(duration_ms), 0) as max_duration").
		Where("direction = ? AND duration_ms > 0", models.DirectionSend).
		Scan(&ds).Error; err != nil {
		return nil, err
	}
	stats.AvgDuration = ds.AvgDuration
	stats.MaxDuration = ds.MaxDuration

	return stats, nil
}

// DeleteBefore 删除指定时间之前的日志
func (r *commandLogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.CommandLog{})
	return result.RowsAffected, result.Error
}

// Cleanup 只保留最近N天的日志
func (r *commandLogRepo) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	return r.DeleteBefore(ctx, time.Now().AddDate(0, 0, -retentionDays))
}
