package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/pkg/utils"
)

type ScheduledRecordRepository interface {
	Create(ctx context.Context, tx *sql.Tx, rec *models.ScheduledRecord) error
	GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.ScheduledRecord, error)
	ListUpcoming(ctx context.Context, accountIDs []string, now time.Time) ([]*models.ScheduledRecord, error)
	ListByStatus(ctx context.Context, status models.RecordStatus) ([]*models.ScheduledRecord, error)
	MarkPublished(ctx context.Context, tx *sql.Tx, id, postID string, publishedAt time.Time) error
	MarkFinal(ctx context.Context, tx *sql.Tx, id string, status models.RecordStatus, errMsg string) error
	MarkEdited(ctx context.Context, tx *sql.Tx, id, replacedBy string) error
	MarkDeleted(ctx context.Context, tx *sql.Tx, id string) error
}

type scheduledRecordRepository struct {
	db *DB
}

func NewScheduledRecordRepository(db *DB) ScheduledRecordRepository {
	return &scheduledRecordRepository{db: db}
}

const recordColumns = `id, account_id, account_name, platform, caption, image_url, watermark_url,
	scheduled_unix, status, provider_post_id, provider_creation_id, provider_response,
	error_message, replaced_by, published_at, created_at, updated_at`

func (r *scheduledRecordRepository) Create(ctx context.Context, tx *sql.Tx, rec *models.ScheduledRecord) error {
	if rec.ID == "" {
		id, err := utils.NewRecordID()
		if err != nil {
			return err
		}
		rec.ID = id
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `INSERT INTO scheduled_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.exec(ctx, tx, query,
		rec.ID, rec.AccountID, rec.AccountName, string(rec.Platform), rec.Caption, rec.ImageURL, rec.WatermarkURL,
		rec.ScheduledUnix, string(rec.Status), rec.ProviderPostID, rec.ProviderCreationID, rec.ProviderResponse,
		rec.ErrorMessage, rec.ReplacedBy, toUnix(rec.PublishedAt), toUnix(rec.CreatedAt), toUnix(rec.UpdatedAt))
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("insert scheduled record: %w", err)
	}
	return nil
}

func (r *scheduledRecordRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.ScheduledRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM scheduled_records WHERE id = ?`

	rec, err := scanRecord(r.db.queryRow(ctx, tx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return rec, nil
}

// ListUpcoming returns records still waiting to go out on the given
// accounts, soonest first.
func (r *scheduledRecordRepository) ListUpcoming(ctx context.Context, accountIDs []string, now time.Time) ([]*models.ScheduledRecord, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(accountIDs)), ", ")
	query := `SELECT ` + recordColumns + ` FROM scheduled_records
		WHERE account_id IN (` + placeholders + `)
		AND (status = ? OR (status = ? AND scheduled_unix > ?))
		ORDER BY scheduled_unix ASC, created_at ASC`

	args := make([]any, 0, len(accountIDs)+3)
	for _, id := range accountIDs {
		args = append(args, id)
	}
	args = append(args, string(models.RecordStatusPending), string(models.RecordStatusScheduled), now.Unix())

	return r.list(ctx, query, args...)
}

func (r *scheduledRecordRepository) ListByStatus(ctx context.Context, status models.RecordStatus) ([]*models.ScheduledRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM scheduled_records WHERE status = ? ORDER BY scheduled_unix ASC`
	return r.list(ctx, query, string(status))
}

func (r *scheduledRecordRepository) list(ctx context.Context, query string, args ...any) ([]*models.ScheduledRecord, error) {
	rows, err := r.db.query(ctx, nil, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var records []*models.ScheduledRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *scheduledRecordRepository) MarkPublished(ctx context.Context, tx *sql.Tx, id, postID string, publishedAt time.Time) error {
	query := `UPDATE scheduled_records
		SET status = ?, provider_post_id = ?, published_at = ?, error_message = '', updated_at = ?
		WHERE id = ?`
	return r.update(ctx, tx, query, string(models.RecordStatusPublished), postID, toUnix(publishedAt), time.Now().Unix(), id)
}

// MarkFinal records a failed or token_expired outcome.
func (r *scheduledRecordRepository) MarkFinal(ctx context.Context, tx *sql.Tx, id string, status models.RecordStatus, errMsg string) error {
	if !status.Terminal() || status == models.RecordStatusPublished {
		return fmt.Errorf("mark final: %q is not a failure status", status)
	}
	query := `UPDATE scheduled_records SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`
	return r.update(ctx, tx, query, string(status), errMsg, time.Now().Unix(), id)
}

// MarkEdited supersedes the record. Provider ids are cleared so nothing
// can publish it afterwards.
func (r *scheduledRecordRepository) MarkEdited(ctx context.Context, tx *sql.Tx, id, replacedBy string) error {
	query := `UPDATE scheduled_records
		SET status = ?, replaced_by = ?, provider_post_id = '', provider_creation_id = '', updated_at = ?
		WHERE id = ?`
	return r.update(ctx, tx, query, string(models.RecordStatusEdited), replacedBy, time.Now().Unix(), id)
}

func (r *scheduledRecordRepository) MarkDeleted(ctx context.Context, tx *sql.Tx, id string) error {
	query := `UPDATE scheduled_records SET status = ?, updated_at = ? WHERE id = ?`
	return r.update(ctx, tx, query, string(models.RecordStatusDeleted), time.Now().Unix(), id)
}

func (r *scheduledRecordRepository) update(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := r.db.exec(ctx, tx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ScheduledRecord, error) {
	var rec models.ScheduledRecord
	var platform, status string
	var publishedAt, createdAt, updatedAt int64

	err := row.Scan(&rec.ID, &rec.AccountID, &rec.AccountName, &platform, &rec.Caption, &rec.ImageURL, &rec.WatermarkURL,
		&rec.ScheduledUnix, &status, &rec.ProviderPostID, &rec.ProviderCreationID, &rec.ProviderResponse,
		&rec.ErrorMessage, &rec.ReplacedBy, &publishedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Platform = models.PlatformKind(platform)
	rec.Status = models.RecordStatus(status)
	rec.PublishedAt = fromUnix(publishedAt)
	rec.CreatedAt = fromUnix(createdAt)
	rec.UpdatedAt = fromUnix(updatedAt)
	return &rec, nil
}
