package tsdbwriter

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Store is the local sqlite buffer of results awaiting remote upload,
// grounded on repository.Repository.
type Store struct {
	db *gorm.DB
}

// NewStore opens (creating if necessary) the sqlite buffer at path.
func NewStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("tsdbwriter: open database: %w", err)
	}
	if err := db.AutoMigrate(&storedResult{}); err != nil {
		return nil, fmt.Errorf("tsdbwriter: migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// StoreResults buffers results locally, each starting with upload attempt
// count 0.
func (s *Store) StoreResults(results []Result) error {
	stored := make([]storedResult, 0, len(results))
	for _, r := range results {
		stored = append(stored, newStoredResult(r))
	}
	return s.db.Create(&stored).Error
}

// PendingResults returns up to limit buffered results, ordered so
// least-attempted and most-recent are retried first.
func (s *Store) PendingResults(limit int) ([]storedResult, error) {
	var results []storedResult
	err := s.db.Limit(limit).Order("upload_attempt_count asc, time desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteResults removes rows once successfully uploaded.
func (s *Store) DeleteResults(results []storedResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.db.Delete(&results).Error
}

// IncrementUploadAttemptCount bumps the retry counter for rows that failed
// to upload, so PendingResults deprioritizes them on the next pass.
func (s *Store) IncrementUploadAttemptCount(results []storedResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.db.Model(&results).UpdateColumn("upload_attempt_count", gorm.Expr("upload_attempt_count + ?", 1)).Error
}
