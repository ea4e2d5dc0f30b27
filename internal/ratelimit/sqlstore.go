package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type bucketModel struct {
	BucketKey string `gorm:"column:bucket_key;primaryKey;size:255"`
	Tokens    int    `gorm:"not null"`
	ResetAtMs int64  `gorm:"not null"`
	UpdatedAt time.Time
}

func (bucketModel) TableName() string { return "rate_limit_buckets" }

// SQLStore persists buckets in SQLite so several processes can share limits.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("rate limit store: path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("rate limit store: create dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit store: open: %w", err)
	}
	if err := db.AutoMigrate(&bucketModel{}); err != nil {
		return nil, fmt.Errorf("rate limit store: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// single writer keeps read-modify-write serialized
	sqlDB.SetMaxOpenConns(1)
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	var out Decision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row bucketModel
		fresh := false
		if err := tx.Where("bucket_key = ?", key).Take(&row).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			fresh = true
			row.BucketKey = key
		}
		tokens, resetAt, d := bucket(row.Tokens, time.UnixMilli(row.ResetAtMs), fresh, limit, window, now)
		row.Tokens = tokens
		row.ResetAtMs = resetAt.UnixMilli()
		out = d
		return tx.Save(&row).Error
	})
	if err != nil {
		return Decision{}, err
	}
	out.ResetAt = time.UnixMilli(out.ResetAt.UnixMilli())
	return out, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
