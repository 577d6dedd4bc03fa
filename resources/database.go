package resources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseOptions 数据库存储配置选项
type DatabaseOptions struct {
	Name         string
	Dialector    gorm.Dialector
	GormConfig   *gorm.Config
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	Table        string // 资源表名
}

// NewDefaultDatabaseOptions 创建默认配置
func NewDefaultDatabaseOptions(name string, dialector gorm.Dialector) *DatabaseOptions {
	return &DatabaseOptions{
		Name:         name,
		Dialector:    dialector,
		GormConfig:   &gorm.Config{},
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  time.Hour,
		Table:        "resources",
	}
}

// Validate 验证配置
func (o *DatabaseOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if o.Dialector == nil {
		return fmt.Errorf("database dialector is required")
	}
	if o.Table == "" {
		return fmt.Errorf("database table is required")
	}
	return nil
}

// resourceRecord 资源表的一行
type resourceRecord struct {
	Name      string `gorm:"primaryKey;size:255"`
	Data      []byte
	UpdatedAt time.Time
}

// DatabaseStore 基于 gorm 的资源存储
type DatabaseStore struct {
	name  string
	table string
	db    *gorm.DB
}

var _ WritableStore = (*DatabaseStore)(nil)

// NewDatabaseStore 打开数据库并迁移资源表
func NewDatabaseStore(opts DatabaseOptions) (*DatabaseStore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.GormConfig == nil {
		opts.GormConfig = &gorm.Config{}
	}

	db, err := gorm.Open(opts.Dialector, opts.GormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", opts.Name, err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for '%s': %w", opts.Name, err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)

	if err := db.Table(opts.Table).AutoMigrate(&resourceRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto migrate failed for '%s': %w", opts.Name, err)
	}

	return &DatabaseStore{name: opts.Name, table: opts.Table, db: db}, nil
}

func (s *DatabaseStore) Name() string { return "database:" + s.name }

func (s *DatabaseStore) Get(ctx context.Context, name string) ([]byte, error) {
	var rec resourceRecord
	err := s.db.WithContext(ctx).Table(s.table).Where("name = ?", name).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// Put 写入资源，已存在时覆盖
func (s *DatabaseStore) Put(ctx context.Context, name string, data []byte) error {
	rec := resourceRecord{Name: name, Data: data, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

func (s *DatabaseStore) Delete(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Table(s.table).Where("name = ?", name).Delete(&resourceRecord{}).Error
}

// List 返回所有资源名
func (s *DatabaseStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Table(s.table).Order("name").Pluck("name", &names).Error
	return names, err
}

// Close 关闭数据库连接
func (s *DatabaseStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for '%s': %w", s.name, err)
	}
	return sqlDB.Close()
}
