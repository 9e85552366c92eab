package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/pkg/utils"
)

// Lease is what a worker writes when it claims a pending item. A lease
// older than StaleBefore may be taken over.
type Lease struct {
	Token       string
	Owner       string
	StartedAt   time.Time
	StaleBefore time.Time
}

type PendingPublishRepository interface {
	Create(ctx context.Context, tx *sql.Tx, item *models.PendingPublishItem) error
	GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.PendingPublishItem, error)
	List(ctx context.Context, tx *sql.Tx) ([]*models.PendingPublishItem, error)
	ListByRecordID(ctx context.Context, tx *sql.Tx, recordID string) ([]*models.PendingPublishItem, error)
	Claim(ctx context.Context, tx *sql.Tx, id string, lease Lease) (bool, error)
	Release(ctx context.Context, tx *sql.Tx, id, leaseToken, lastError string) (bool, error)
	Remove(ctx context.Context, tx *sql.Tx, id, leaseToken string) (bool, error)
	RemoveByRecordID(ctx context.Context, tx *sql.Tx, recordID string) (int64, error)
}

type pendingPublishRepository struct {
	db *DB
}

func NewPendingPublishRepository(db *DB) PendingPublishRepository {
	return &pendingPublishRepository{db: db}
}

const pendingColumns = `id, account_id, provider_creation_id, access_token, scheduled_unix, scheduled_record_id,
	retry_count, last_error, last_attempt, is_processing, processing_started_at, lease_token, lease_owner, created_at`

func (r *pendingPublishRepository) Create(ctx context.Context, tx *sql.Tx, item *models.PendingPublishItem) error {
	if item.ID == "" {
		id, err := utils.NewRecordID()
		if err != nil {
			return err
		}
		item.ID = id
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	query := `INSERT INTO pending_publish_items (` + pendingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.exec(ctx, tx, query,
		item.ID, item.AccountID, item.ProviderCreationID, item.AccessToken, item.ScheduledUnix, item.ScheduledRecordID,
		item.RetryCount, item.LastError, toUnix(item.LastAttempt), boolToInt(item.IsProcessing),
		toUnix(item.ProcessingStartedAt), item.LeaseToken, item.LeaseOwner, toUnix(item.CreatedAt))
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("insert pending publish item: %w", err)
	}
	return nil
}

func (r *pendingPublishRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.PendingPublishItem, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_publish_items WHERE id = ?`

	item, err := scanPending(r.db.queryRow(ctx, tx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return item, nil
}

func (r *pendingPublishRepository) List(ctx context.Context, tx *sql.Tx) ([]*models.PendingPublishItem, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_publish_items ORDER BY scheduled_unix ASC, created_at ASC`
	return r.list(ctx, tx, query)
}

func (r *pendingPublishRepository) ListByRecordID(ctx context.Context, tx *sql.Tx, recordID string) ([]*models.PendingPublishItem, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_publish_items WHERE scheduled_record_id = ?`
	return r.list(ctx, tx, query, recordID)
}

func (r *pendingPublishRepository) list(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]*models.PendingPublishItem, error) {
	rows, err := r.db.query(ctx, tx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []*models.PendingPublishItem
	for rows.Next() {
		item, err := scanPending(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Claim takes the processing lease and charges one retry. It only succeeds
// when nobody holds the lease or the held lease is stale, so of two racing
// workers at most one gets true.
func (r *pendingPublishRepository) Claim(ctx context.Context, tx *sql.Tx, id string, lease Lease) (bool, error) {
	query := `UPDATE pending_publish_items
		SET is_processing = 1, processing_started_at = ?, last_attempt = ?,
			retry_count = retry_count + 1, lease_token = ?, lease_owner = ?
		WHERE id = ? AND (is_processing = 0 OR processing_started_at <= ?)`

	res, err := r.db.exec(ctx, tx, query,
		lease.StartedAt.Unix(), lease.StartedAt.Unix(), lease.Token, lease.Owner, id, lease.StaleBefore.Unix())
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affectedOne(res)
}

// Release gives the lease back after a retryable failure.
func (r *pendingPublishRepository) Release(ctx context.Context, tx *sql.Tx, id, leaseToken, lastError string) (bool, error) {
	query := `UPDATE pending_publish_items
		SET is_processing = 0, processing_started_at = 0, lease_token = '', lease_owner = '', last_error = ?
		WHERE id = ? AND lease_token = ?`

	res, err := r.db.exec(ctx, tx, query, lastError, id, leaseToken)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affectedOne(res)
}

// Remove deletes the item. A non-empty leaseToken restricts the delete to
// the current lease holder.
func (r *pendingPublishRepository) Remove(ctx context.Context, tx *sql.Tx, id, leaseToken string) (bool, error) {
	query := `DELETE FROM pending_publish_items WHERE id = ?`
	args := []any{id}
	if leaseToken != "" {
		query += ` AND lease_token = ?`
		args = append(args, leaseToken)
	}

	res, err := r.db.exec(ctx, tx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affectedOne(res)
}

func (r *pendingPublishRepository) RemoveByRecordID(ctx context.Context, tx *sql.Tx, recordID string) (int64, error) {
	res, err := r.db.exec(ctx, tx, `DELETE FROM pending_publish_items WHERE scheduled_record_id = ?`, recordID)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanPending(row rowScanner) (*models.PendingPublishItem, error) {
	var item models.PendingPublishItem
	var lastAttempt, startedAt, createdAt int64
	var processing int

	err := row.Scan(&item.ID, &item.AccountID, &item.ProviderCreationID, &item.AccessToken, &item.ScheduledUnix,
		&item.ScheduledRecordID, &item.RetryCount, &item.LastError, &lastAttempt, &processing, &startedAt,
		&item.LeaseToken, &item.LeaseOwner, &createdAt)
	if err != nil {
		return nil, err
	}

	item.LastAttempt = fromUnix(lastAttempt)
	item.IsProcessing = processing != 0
	item.ProcessingStartedAt = fromUnix(startedAt)
	item.CreatedAt = fromUnix(createdAt)
	return &item, nil
}
