package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/maheshrc27/postflow/internal/repository"
)

// Store bundles a throwaway sqlite schedule store and its repositories.
type Store struct {
	DB      *repository.DB
	Records repository.ScheduledRecordRepository
	Pending repository.PendingPublishRepository
}

// NewStore opens a fresh sqlite store under the test's temp dir.
func NewStore(t testing.TB) *Store {
	t.Helper()

	db, err := repository.Open(context.Background(), repository.DriverSQLite, filepath.Join(t.TempDir(), "schedule.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &Store{
		DB:      db,
		Records: repository.NewScheduledRecordRepository(db),
		Pending: repository.NewPendingPublishRepository(db),
	}
}

// NewOfflineQueue opens a fresh offline write queue database.
func NewOfflineQueue(t testing.TB) repository.OfflineWriteRepository {
	t.Helper()

	db, err := repository.OpenOfflineQueue(context.Background(), filepath.Join(t.TempDir(), "offline.db"))
	if err != nil {
		t.Fatalf("open offline queue: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewOfflineWriteRepository(db)
}
