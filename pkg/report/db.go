package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DBConfig 数据库配置
type DBConfig struct {
	Driver string // "postgres" 或 "sqlite"
	DSN    string
}

// CycleModel 是 Report 在关系型数据库中的投影，用于查询回收历史
type CycleModel struct {
	ID string `gorm:"primaryKey;type:varchar(36)"`

	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	DryRun     bool

	Phase   string `gorm:"type:varchar(16)"`
	Aborted bool   `gorm:"index"`
	Error   string `gorm:"type:text"`

	Digests          int
	Locations        int
	RepositoryErrors int
	Tags             int
	Reachable        int
	Garbage          int
	Deleted          int
	Protected        int

	// Timings / Failures 结构不固定，使用 JSON 存储
	Timings  datatypes.JSON
	Failures datatypes.JSON

	CreatedAt time.Time
}

// TableName 强制指定表名
func (CycleModel) TableName() string {
	return "gc_cycles"
}

// DBSink 把每份报告写成一行
type DBSink struct {
	conn *gorm.DB
}

// NewDBSink 打开连接并迁移表结构
func NewDBSink(ctx context.Context, cfg DBConfig) (*DBSink, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported report database driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层 sql.DB 以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return NewDBSinkWithConn(db)
}

// NewDBSinkWithConn 复用现有的 GORM 连接 (依赖注入、单元测试)
func NewDBSinkWithConn(conn *gorm.DB) (*DBSink, error) {
	if err := conn.AutoMigrate(&CycleModel{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return &DBSink{conn: conn}, nil
}

func (s *DBSink) Publish(ctx context.Context, r *Report) error {
	timings, err := json.Marshal(r.Timings)
	if err != nil {
		return err
	}
	failures, err := json.Marshal(r.Failures)
	if err != nil {
		return err
	}

	row := CycleModel{
		ID:               r.ID,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		DryRun:           r.DryRun,
		Phase:            string(r.Phase),
		Aborted:          r.Aborted,
		Error:            r.Error,
		Digests:          r.Digests,
		Locations:        r.Locations,
		RepositoryErrors: r.RepositoryErrors,
		Tags:             r.Tags,
		Reachable:        r.Reachable,
		Garbage:          r.Garbage,
		Deleted:          r.Deleted,
		Protected:        r.Protected,
		Timings:          datatypes.JSON(timings),
		Failures:         datatypes.JSON(failures),
	}
	if err := s.conn.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert cycle %s: %w", r.ID, err)
	}
	return nil
}

// Recent 返回最近 n 个周期，最新的在前
func (s *DBSink) Recent(ctx context.Context, n int) ([]CycleModel, error) {
	var rows []CycleModel
	err := s.conn.WithContext(ctx).
		Order("started_at desc").
		Limit(n).
		Find(&rows).Error
	return rows, err
}

// Close 关闭底层连接池
func (s *DBSink) Close() error {
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
