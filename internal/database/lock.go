package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wfunc/optical-switch/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockRetries   = 30
	lockStaleAge  = 5 * time.Minute
	lockSweepAge  = 10 * time.Minute
	lockRetryWait = time.Second
)

// acquireMigrationLock 获取迁移锁
func acquireMigrationLock(dbPath string) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	for i := 0; i < lockRetries; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			logger.Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 锁文件过旧说明上次迁移异常退出
		if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > lockStaleAge {
			logger.Warn("迁移锁文件过期，尝试删除", zap.String("lock", lockPath))
			os.Remove(lockPath)
			continue
		}

		logger.Debug("等待迁移锁...", zap.Int("attempt", i+1))
		time.Sleep(lockRetryWait)
	}

	return nil, fmt.Errorf("无法获取迁移锁，可能有其他进程正在执行迁移")
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}

	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
	logger.Debug("释放迁移锁", zap.String("lock", lockPath))
}

// getDBPath 返回 SQLite 数据库文件路径，内存库和其他数据库返回空
func getDBPath(db *gorm.DB) string {
	if db == nil {
		return ""
	}
	if name := db.Dialector.Name(); name != "sqlite" && name != "sqlite3" {
		return ""
	}

	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}
	row := sqlDB.QueryRow("PRAGMA database_list")
	var (
		seq        int
		name, file string
	)
	if err := row.Scan(&seq, &name, &file); err != nil {
		return ""
	}
	return file
}

// CleanupStaleLocks 清理过期的锁文件
func CleanupStaleLocks() {
	patterns := []string{
		"./data/*.lock",
		"./*.lock",
	}

	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, lockFile := range matches {
			if info, err := os.Stat(lockFile); err == nil && time.Since(info.ModTime()) > lockSweepAge {
				logger.Info("清理过期锁文件", zap.String("file", lockFile))
				os.Remove(lockFile)
			}
		}
	}
}
