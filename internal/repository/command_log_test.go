package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/optical-switch/internal/models"
	"gorm.io/gorm"
)

// CommandLogRepositoryTestSuite 命令日志仓储测试套件
type CommandLogRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo CommandLogRepository
	ctx  context.Context
}

func (suite *CommandLogRepositoryTestSuite) SetupSuite() {
	suite.db = SetupTestDB()
	suite.repo = NewCommandLogRepository(suite.db)
	suite.ctx = context.Background()
}

func (suite *CommandLogRepositoryTestSuite) TearDownSuite() {
	CleanupTestDB(suite.db)
}

func (suite *CommandLogRepositoryTestSuite) SetupTest() {
	suite.repo.GetDB().Exec("DELETE FROM command_logs")
}

// seed 写入一次 scan_one 调用和一次失败的 scan_all 调用
func (suite *CommandLogRepositoryTestSuite) seed() time.Time {
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	logs := []*models.CommandLog{
		{RequestID: "r1", Direction: models.DirectionSend, Operation: "scan_one", Command: "2,4", Args: models.IntList{4}, DurationMs: 120, CreatedAt: base},
		{RequestID: "r1", Direction: models.DirectionReceive, Operation: "scan_one", Response: "PORT 4", CreatedAt: base.Add(time.Millisecond)},
		{RequestID: "r2", Direction: models.DirectionSend, Operation: "scan_all", Command: "1", DurationMs: 40, ErrorMsg: "write: broken pipe", CreatedAt: base.Add(time.Minute)},
	}
	suite.Require().NoError(suite.repo.CreateBatch(suite.ctx, logs))
	return base
}

func (suite *CommandLogRepositoryTestSuite) TestCreateAndGet() {
	log := &models.CommandLog{
		RequestID:  "abc",
		Direction:  models.DirectionSend,
		Operation:  "scan_range",
		Command:    "3,2,5,1",
		Args:       models.IntList{2, 5, 1},
		Continuous: true,
	}
	suite.Require().NoError(suite.repo.Create(suite.ctx, log))
	suite.NotZero(log.ID)
	suite.NotZero(log.Timestamp)

	got, err := suite.repo.GetByID(suite.ctx, log.ID)
	suite.Require().NoError(err)
	suite.Equal(models.IntList{2, 5, 1}, got.Args)
	suite.True(got.Continuous)

	_, err = suite.repo.GetByID(suite.ctx, 9999)
	suite.ErrorIs(err, gorm.ErrRecordNotFound)
}

func (suite *CommandLogRepositoryTestSuite) TestGetByRequestID() {
	suite.seed()

	logs, err := suite.repo.GetByRequestID(suite.ctx, "r1")
	suite.Require().NoError(err)
	suite.Require().Len(logs, 2)
	suite.Equal(models.DirectionSend, logs[0].Direction)
	suite.Equal("PORT 4", logs[1].Response)
}

func (suite *CommandLogRepositoryTestSuite) TestQuery() {
	base := suite.seed()

	logs, total, err := suite.repo.Query(suite.ctx, &models.CommandLogQuery{Direction: models.DirectionSend})
	suite.Require().NoError(err)
	suite.EqualValues(2, total)
	suite.Equal("scan_all", logs[0].Operation)

	hasError := true
	logs, total, err = suite.repo.Query(suite.ctx, &models.CommandLogQuery{HasError: &hasError})
	suite.Require().NoError(err)
	suite.EqualValues(1, total)
	suite.Equal("r2", logs[0].RequestID)

	end := base.Add(30 * time.Second)
	logs, total, err = suite.repo.Query(suite.ctx, &models.CommandLogQuery{EndTime: &end, Limit: 1, OrderBy: "created_at ASC"})
	suite.Require().NoError(err)
	suite.EqualValues(2, total)
	suite.Require().Len(logs, 1)
	suite.Equal("2,4", logs[0].Command)

	_, _, err = suite.repo.Query(suite.ctx, &models.CommandLogQuery{OrderBy: "id; DROP TABLE command_logs"})
	suite.Error(err)
}

func (suite *CommandLogRepositoryTestSuite) TestGetLatest() {
	suite.seed()

	logs, err := suite.repo.GetLatest(suite.ctx, 2, "")
	suite.Require().NoError(err)
	suite.Require().Len(logs, 2)
	suite.Equal("r2", logs[0].RequestID)

	logs, err = suite.repo.GetLatest(suite.ctx, 10, "scan_one")
	suite.Require().NoError(err)
	suite.Len(logs, 2)
}

func (suite *CommandLogRepositoryTestSuite) TestGetStats() {
	suite.seed()

	stats, err := suite.repo.GetStats(suite.ctx, nil, nil)
	suite.Require().NoError(err)
	suite.EqualValues(3, stats.TotalCount)
	suite.EqualValues(2, stats.TotalSend)
	suite.EqualValues(1, stats.TotalReceive)
	suite.EqualValues(1, stats.TotalErrors)
	suite.EqualValues(1, stats.ByOperation["scan_one"])
	suite.EqualValues(1, stats.ByOperation["scan_all"])
	suite.InDelta(80.0, stats.AvgDuration, 0.001)
	suite.EqualValues(120, stats.MaxDuration)
}

func (suite *CommandLogRepositoryTestSuite) TestCleanup() {
	suite.seed()
	old := &models.CommandLog{
		RequestID: "old",
		Direction: models.DirectionSend,
		Operation: "debug",
		Command:   "4",
		CreatedAt: time.Now().AddDate(0, 0, -40),
	}
	suite.Require().NoError(suite.repo.Create(suite.ctx, old))

	deleted, err := suite.repo.Cleanup(suite.ctx, 30)
	suite.Require().NoError(err)
	suite.EqualValues(1, deleted)

	_, err = suite.repo.Cleanup(suite.ctx, 0)
	suite.Error(err)
}

func TestCommandLogRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(CommandLogRepositoryTestSuite))
}
