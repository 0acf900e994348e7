package service

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/models"
	"github.com/wfunc/optical-switch/internal/repository"
	"gorm.io/gorm"
)

func newTestCommandLogService(t *testing.T, cfg *config.CommandLogConfig) *CommandLogService {
	t.Helper()
	db := repository.SetupTestDB()
	t.Cleanup(func() { repository.CleanupTestDB(db) })

	svc := NewCommandLogService(repository.NewCommandLogRepository(db), cfg)
	t.Cleanup(svc.Close)
	return svc
}

func sendLog(requestID, operation string, durationMs int64) *models.CommandLog {
	return &models.CommandLog{
		RequestID:  requestID,
		Direction:  models.DirectionSend,
		Operation:  operation,
		Command:    "1",
		DurationMs: durationMs,
	}
}

func TestCommandLogServiceFlush(t *testing.T) {
	svc := newTestCommandLogService(t, &config.CommandLogConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
	})
	ctx := context.Background()

	svc.Record(sendLog("r1", "scan_all", 10))
	svc.Record(&models.CommandLog{RequestID: "r1", Direction: models.DirectionReceive, Operation: "scan_all", Response: "DONE"})
	svc.Record(sendLog("r2", "debug", 30))

	require.NoError(t, svc.Flush(ctx))

	logs, total, err := svc.Query(ctx, &models.CommandLogQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, logs, 3)

	byRequest, err := svc.ByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, byRequest, 2)

	latest, err := svc.Latest(ctx, 0, "debug")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "r2", latest[0].RequestID)

	stats, err := svc.Stats(ctx, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalSend)
	assert.EqualValues(t, 1, stats.TotalReceive)
}

func TestCommandLogServiceBatchWrite(t *testing.T) {
	svc := newTestCommandLogService(t, &config.CommandLogConfig{
		BatchSize:     2,
		FlushInterval: time.Hour,
	})

	svc.Record(sendLog("a", "scan_one", 1))
	svc.Record(sendLog("b", "scan_one", 1))

	// 达到批量大小后无需 Flush 即写入
	assert.Eventually(t, func() bool {
		_, total, err := svc.Query(context.Background(), &models.CommandLogQuery{})
		return err == nil && total == 2
	}, time.Second, 10*time.Millisecond)
}

func TestCommandLogServiceCloseWritesRemaining(t *testing.T) {
	db := repository.SetupTestDB()
	defer repository.CleanupTestDB(db)
	repo := repository.NewCommandLogRepository(db)

	svc := NewCommandLogService(repo, &config.CommandLogConfig{FlushInterval: time.Hour})
	svc.Record(sendLog("x", "scan_all", 5))
	svc.Close()
	svc.Close()

	logs, err := repo.GetByRequestID(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	// 关闭后记录被忽略，Flush 立即返回
	svc.Record(sendLog("y", "scan_all", 5))
	assert.NoError(t, svc.Flush(context.Background()))
}

func TestCommandLogServiceDropsWhenFull(t *testing.T) {
	repo := &mockCommandLogRepo{}
	started := make(chan struct{}, 2)
	block := make(chan struct{})
	repo.On("CreateBatch", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-block
		}).
		Return(nil)

	svc := NewCommandLogService(repo, &config.CommandLogConfig{
		BufferSize:    1,
		BatchSize:     1,
		FlushInterval: time.Hour,
	})

	// 第一条被后台协程取走并阻塞在写入上，之后缓冲区只能容纳一条
	svc.Record(sendLog("1", "debug", 1))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("writer did not start")
	}
	svc.Record(sendLog("2", "debug", 1))
	svc.Record(sendLog("3", "debug", 1))
	svc.Record(sendLog("4", "debug", 1))

	assert.EqualValues(t, 2, svc.Dropped())

	close(block)
	svc.Close()
	repo.AssertNumberOfCalls(t, "CreateBatch", 2)
}

func TestCommandLogServiceWriteErrorIsLogged(t *testing.T) {
	repo := &mockCommandLogRepo{}
	repo.On("CreateBatch", mock.Anything, mock.Anything).Return(stderrors.New("disk full"))

	svc := NewCommandLogService(repo, &config.CommandLogConfig{FlushInterval: time.Hour})
	svc.Record(sendLog("1", "debug", 1))
	require.NoError(t, svc.Flush(context.Background()))
	svc.Close()

	repo.AssertExpectations(t)
}

// mockCommandLogRepo 只模拟写入路径
type mockCommandLogRepo struct {
	mock.Mock
}

func (m *mockCommandLogRepo) GetDB() *gorm.DB { return nil }

func (m *mockCommandLogRepo) Create(ctx context.Context, log *models.CommandLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *mockCommandLogRepo) CreateBatch(ctx context.Context, logs []*models.CommandLog) error {
	return m.Called(ctx, logs).Error(0)
}

func (m *mockCommandLogRepo) GetByID(ctx context.Context, id uint) (*models.CommandLog, error) {
	return nil, nil
}

func (m *mockCommandLogRepo) GetByRequestID(ctx context.Context, requestID string) ([]*models.CommandLog, error) {
	return nil, nil
}

func (m *mockCommandLogRepo) Query(ctx context.Context, query *models.CommandLogQuery) ([]*models.CommandLog, int64, error) {
	return nil, 0, nil
}

func (m *mockCommandLogRepo) GetLatest(ctx context.Context, limit int, operation string) ([]*models.CommandLog, error) {
	return nil, nil
}

func (m *mockCommandLogRepo) GetStats(ctx context.Context, startTime, endTime *time.Time) (*models.CommandLogStats, error) {
	return &models.CommandLogStats{}, nil
}

func (m *mockCommandLogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockCommandLogRepo) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}

func TestCommandHistoryOrderedByRequest(t *testing.T) {
	logs := newTestCommandLogService(t, &config.CommandLogConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
	})
	conn := newFakeConn()
	conn.reply = func(cmd string) []string { return []string{"PORT " + cmd, "DONE"} }
	svc := NewSwitchService(conn, &SwitchServiceConfig{PollAttempts: 3, PollInterval: time.Millisecond}, logs, nil)
	defer svc.Close()
	ctx := context.Background()

	result, err := svc.ScanOne(ctx, SourceAPI, 4)
	require.NoError(t, err)
	require.NoError(t, logs.Flush(ctx))

	rows, err := logs.ByRequestID(ctx, result.RequestID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.DirectionSend, rows[0].Direction)
	assert.Equal(t, "2,4", rows[0].Command)
	assert.Equal(t, models.DirectionReceive, rows[1].Direction)
	assert.Equal(t, "PORT 2,4", rows[1].Response)
	assert.Equal(t, "DONE", rows[2].Response)
}
