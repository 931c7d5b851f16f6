package domain

import "time"

// CacheRecord is one cached bundle file of a package
type CacheRecord struct {
	Package  string    `json:"package" gorm:"primaryKey"`
	FileName string    `json:"file_name" gorm:"primaryKey"`
	Hash     string    `json:"hash" gorm:"not null"`
	Size     int64     `json:"size" gorm:"not null"`
	CachedAt time.Time `json:"cached_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (CacheRecord) TableName() string {
	return "cache_records"
}

// CacheInfo summarises what a package holds on disk
type CacheInfo struct {
	Package   string `json:"package"`
	TotalSize int64  `json:"total_size"`
	FileCount int64  `json:"file_count"`
}

// CacheIndexRepository defines persistence for cached bundle records
type CacheIndexRepository interface {
	Upsert(record *CacheRecord) error
	Find(pkg, fileName string) (*CacheRecord, error)
	List(pkg string) ([]*CacheRecord, error)
	Delete(pkg, fileName string) error
	DeleteAll(pkg string) error
	Info(pkg string) (*CacheInfo, error)
}
