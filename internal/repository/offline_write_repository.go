package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type OfflineWriteRepository interface {
	Append(ctx context.Context, collection string, payload []byte) (int64, error)
	List(ctx context.Context) ([]*models.OfflineWrite, error)
	Remove(ctx context.Context, id int64) error
	MarkAttempt(ctx context.Context, id int64, lastError string) error
	Count(ctx context.Context) (int, error)
}

type offlineWriteRepository struct {
	db *DB
}

func NewOfflineWriteRepository(db *DB) OfflineWriteRepository {
	return &offlineWriteRepository{db: db}
}

func (r *offlineWriteRepository) Append(ctx context.Context, collection string, payload []byte) (int64, error) {
	res, err := r.db.exec(ctx, nil,
		`INSERT INTO offline_writes (collection, payload, created_at) VALUES (?, ?, ?)`,
		collection, payload, time.Now().Unix())
	if err != nil {
		slog.Info(err.Error())
		return 0, fmt.Errorf("append offline write: %w", err)
	}
	return res.LastInsertId()
}

// List returns queued writes in insertion order.
func (r *offlineWriteRepository) List(ctx context.Context) ([]*models.OfflineWrite, error) {
	rows, err := r.db.query(ctx, nil,
		`SELECT id, collection, payload, attempts, last_error, created_at FROM offline_writes ORDER BY id ASC`)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var writes []*models.OfflineWrite
	for rows.Next() {
		var w models.OfflineWrite
		var payload []byte
		var createdAt int64
		if err := rows.Scan(&w.ID, &w.Collection, &payload, &w.Attempts, &w.LastError, &createdAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		w.Payload = payload
		w.CreatedAt = fromUnix(createdAt)
		writes = append(writes, &w)
	}
	return writes, rows.Err()
}

func (r *offlineWriteRepository) Remove(ctx context.Context, id int64) error {
	_, err := r.db.exec(ctx, nil, `DELETE FROM offline_writes WHERE id = ?`, id)
	if err != nil {
		slog.Info(err.Error())
	}
	return err
}

func (r *offlineWriteRepository) MarkAttempt(ctx context.Context, id int64, lastError string) error {
	_, err := r.db.exec(ctx, nil,
		`UPDATE offline_writes SET attempts = attempts + 1, last_error = ? WHERE id = ?`, lastError, id)
	if err != nil {
		slog.Info(err.Error())
	}
	return err
}

func (r *offlineWriteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.queryRow(ctx, nil, `SELECT COUNT(*) FROM offline_writes`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
