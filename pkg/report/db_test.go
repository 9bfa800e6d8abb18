package report

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupDBSink 构建隔离的测试环境
func setupDBSink(t *testing.T) *DBSink {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sink, err := NewDBSinkWithConn(db)
	require.NoError(t, err)
	return sink
}

func TestDBSink_PublishAndRecent(t *testing.T) {
	sink := setupDBSink(t)
	ctx := context.Background()

	// 1. 写入一个成功周期和一个中止周期
	done := sampleReport()
	require.NoError(t, sink.Publish(ctx, done))

	aborted := New(false)
	aborted.StartedAt = done.StartedAt.Add(time.Second)
	aborted.Abort(errors.New("tag app:v1: missing link"))
	require.NoError(t, sink.Publish(ctx, aborted))

	// 2. 最新的在前
	rows, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, aborted.ID, rows[0].ID)
	assert.True(t, rows[0].Aborted)
	assert.Equal(t, "tag app:v1: missing link", rows[0].Error)

	assert.Equal(t, done.ID, rows[1].ID)
	assert.Equal(t, 3, rows[1].Garbage)
	assert.JSONEq(t, `["blobs/sha256/ab/abcd: device busy"]`, string(rows[1].Failures))

	// 3. 同一周期不能重复写入
	assert.Error(t, sink.Publish(ctx, done))
}

func TestNewDBSink_UnknownDriver(t *testing.T) {
	_, err := NewDBSink(context.Background(), DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNewDBSink_SQLite(t *testing.T) {
	sink, err := NewDBSink(context.Background(), DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(context.Background(), sampleReport()))
	rows, err := sink.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
