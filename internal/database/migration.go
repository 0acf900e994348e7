package database

import (
	"fmt"

	"github.com/wfunc/optical-switch/internal/logger"
	"github.com/wfunc/optical-switch/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// largeTableThreshold 超过该行数的 SQLite 表跳过 AutoMigrate，只补索引
const largeTableThreshold = 10000

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	CleanupStaleLocks()

	// 获取迁移锁，避免多个进程同时迁移同一个 SQLite 文件
	if dbPath := getDBPath(DB); dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	return Migrate(DB)
}

// Migrate 迁移指定数据库的表结构
func Migrate(db *gorm.DB) error {
	logger.Info("开始数据库迁移...")

	migrationModels := []interface{}{
		&models.CommandLog{},
	}

	for _, model := range migrationModels {
		tableName := getTableName(db, model)
		if shouldSkipMigration(db, tableName) {
			logger.Info("跳过大型表的迁移", zap.String("table", tableName))
			continue
		}

		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db)

	logger.Info("数据库迁移完成")
	return nil
}

// commandLogIndexes 命令日志表的查询索引
var commandLogIndexes = map[string]string{
	"idx_command_logs_request_created": "CREATE INDEX IF NOT EXISTS idx_command_logs_request_created ON command_logs(request_id, created_at)",
	"idx_command_logs_operation_dir":   "CREATE INDEX IF NOT EXISTS idx_command_logs_operation_dir ON command_logs(operation, direction)",
}

// createIndexes 创建组合索引，失败只记录警告
func createIndexes(db *gorm.DB) {
	for name, stmt := range commandLogIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}

// getTableName 获取模型对应的表名
func getTableName(db *gorm.DB, model interface{}) string {
	if tabler, ok := model.(interface{ TableName() string }); ok {
		return tabler.TableName()
	}
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return ""
	}
	return stmt.Schema.Table
}

// shouldSkipMigration 大型 SQLite 表不再执行 AutoMigrate，避免重建表长时间锁库
func shouldSkipMigration(db *gorm.DB, tableName string) bool {
	if db.Dialector.Name() != "sqlite" || !db.Migrator().HasTable(tableName) {
		return false
	}

	var count int64
	if err := db.Table(tableName).Count(&count).Error; err != nil {
		return false
	}
	if count <= largeTableThreshold {
		return false
	}

	logger.Info("表中数据量较大，跳过AutoMigrate",
		zap.String("table", tableName),
		zap.Int64("count", count))
	createIndexes(db)
	return true
}
