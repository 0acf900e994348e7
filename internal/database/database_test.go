package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/models"
)

func TestOpenAndMigrateSQLiteFile(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "nested", "switch.db")

	DB = nil
	require.NoError(t, Init(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn, LogLevel: "silent"}))
	defer Close()

	assert.True(t, IsConnected())
	require.NoError(t, AutoMigrate())
	assert.True(t, DB.Migrator().HasTable(&models.CommandLog{}))
	assert.True(t, DB.Migrator().HasIndex("command_logs", "idx_command_logs_request_created"))

	assert.Equal(t, dsn, getDBPath(DB))
	// 迁移结束后锁文件已删除
	_, err := os.Stat(dsn + ".migration.lock")
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestMemoryDatabase(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	assert.Empty(t, getDBPath(db))
	assert.Equal(t, "command_logs", getTableName(db, &models.CommandLog{}))
	assert.False(t, shouldSkipMigration(db, "command_logs"))
}

func TestMigrationLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switch.db")
	lock, err := acquireMigrationLock(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".migration.lock")
	require.NoError(t, err)

	releaseMigrationLock(lock)
	_, err = os.Stat(path + ".migration.lock")
	assert.True(t, os.IsNotExist(err))
}
