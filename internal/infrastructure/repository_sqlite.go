package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/hotsync-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteCacheIndex implements CacheIndexRepository using SQLite
type SQLiteCacheIndex struct {
	db *gorm.DB
}

// NewSQLiteCacheIndex opens (or creates) the cache index database
func NewSQLiteCacheIndex(dbPath string) (*SQLiteCacheIndex, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.CacheRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteCacheIndex{db: db}, nil
}

// Upsert creates or replaces the record of a cached file
func (r *SQLiteCacheIndex) Upsert(record *domain.CacheRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "package"}, {Name: "file_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"hash", "size", "cached_at"}),
	}).Create(record).Error
}

// Find returns the record of a cached file, or nil if there is none
func (r *SQLiteCacheIndex) Find(pkg, fileName string) (*domain.CacheRecord, error) {
	var record domain.CacheRecord
	err := r.db.Where("package = ? AND file_name = ?", pkg, fileName).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns every cached file of a package
func (r *SQLiteCacheIndex) List(pkg string) ([]*domain.CacheRecord, error) {
	var records []*domain.CacheRecord
	err := r.db.Where("package = ?", pkg).Order("file_name ASC").Find(&records).Error
	return records, err
}

// Delete removes the record of one file
func (r *SQLiteCacheIndex) Delete(pkg, fileName string) error {
	return r.db.Where("package = ? AND file_name = ?", pkg, fileName).Delete(&domain.CacheRecord{}).Error
}

// DeleteAll removes every record of a package
func (r *SQLiteCacheIndex) DeleteAll(pkg string) error {
	return r.db.Where("package = ?", pkg).Delete(&domain.CacheRecord{}).Error
}

// Info aggregates file count and total size of a package
func (r *SQLiteCacheIndex) Info(pkg string) (*domain.CacheInfo, error) {
	info := &domain.CacheInfo{Package: pkg}

	var result struct {
		Count int64
		Total int64
	}
	err := r.db.Model(&domain.CacheRecord{}).
		Select("COUNT(*) as count, COALESCE(SUM(size), 0) as total").
		Where("package = ?", pkg).
		Scan(&result).Error
	if err != nil {
		return nil, err
	}

	info.FileCount = result.Count
	info.TotalSize = result.Total
	return info, nil
}

// Close closes the database connection
func (r *SQLiteCacheIndex) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
