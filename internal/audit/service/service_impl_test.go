package service

import (
	"context"
	"testing"
	"time"

	"github.com/adsboard/adsboard/internal/audit/domain"
	"github.com/adsboard/adsboard/internal/audit/repository"
	"github.com/adsboard/adsboard/internal/clock"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T, clk clock.Clock) domain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Event{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.New(),
	})
}

func TestRecordAndList(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)
	ctx := context.Background()

	svc.Record(ctx, domain.Record{
		Type:   domain.EventLogin,
		Status: domain.StatusSuccess,
		Metadata: map[string]any{
			"scope": "advertising::campaign_management",
		},
	})
	clk.Advance(time.Minute)
	svc.Record(ctx, domain.Record{
		Type:         domain.EventRefresh,
		Status:       domain.StatusFailure,
		ErrorCode:    "invalid_grant",
		ErrorMessage: "refresh token revoked",
	})

	resp, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)
	require.Len(t, resp.Events, 2)

	// Newest first.
	assert.Equal(t, domain.EventRefresh, resp.Events[0].EventType)
	require.NotNil(t, resp.Events[0].ErrorCode)
	assert.Equal(t, "invalid_grant", *resp.Events[0].ErrorCode)
	assert.Equal(t, domain.EventLogin, resp.Events[1].EventType)
}

func TestListFilters(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)
	ctx := context.Background()

	svc.Record(ctx, domain.Record{Type: domain.EventLogin, Status: domain.StatusSuccess})
	svc.Record(ctx, domain.Record{Type: domain.EventRefresh, Status: domain.StatusSuccess})
	svc.Record(ctx, domain.Record{Type: domain.EventRefresh, Status: domain.StatusFailure})

	resp, err := svc.List(ctx, domain.ListRequest{EventType: domain.EventRefresh})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)

	resp, err = svc.List(ctx, domain.ListRequest{EventType: domain.EventRefresh, Status: domain.StatusFailure})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Total)

	_, err = svc.List(ctx, domain.ListRequest{EventType: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidEventType)

	_, err = svc.List(ctx, domain.ListRequest{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestListPagination(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Record(ctx, domain.Record{Type: domain.EventRefresh, Status: domain.StatusSuccess})
		clk.Advance(time.Second)
	}

	resp, err := svc.List(ctx, domain.ListRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Total)
	assert.Len(t, resp.Events, 2)

	resp, err = svc.List(ctx, domain.ListRequest{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, resp.Events, 1)
}

func TestPurgeRespectsCutoff(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)
	ctx := context.Background()

	svc.Record(ctx, domain.Record{Type: domain.EventLogin, Status: domain.StatusSuccess})
	clk.Advance(48 * time.Hour)
	svc.Record(ctx, domain.Record{Type: domain.EventRefresh, Status: domain.StatusSuccess})

	deleted, err := svc.Purge(ctx, clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	resp, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Total)
	assert.Equal(t, domain.EventRefresh, resp.Events[0].EventType)
}
