package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

// DocumentWriter replays a serialized write into the schedule store.
type DocumentWriter struct {
	db      *DB
	records ScheduledRecordRepository
	pending PendingPublishRepository
}

func NewDocumentWriter(db *DB, records ScheduledRecordRepository, pending PendingPublishRepository) *DocumentWriter {
	return &DocumentWriter{db: db, records: records, pending: pending}
}

func (w *DocumentWriter) WriteDocument(ctx context.Context, collection string, payload []byte) error {
	switch collection {
	case models.CollectionScheduledRecords:
		var rec models.ScheduledRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("decode %s: %w", collection, err)
		}
		return w.upsertRecord(ctx, nil, &rec)

	case models.CollectionPendingPublish:
		var item models.PendingPublishItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return fmt.Errorf("decode %s: %w", collection, err)
		}
		return w.upsertPending(ctx, nil, &item)

	case models.CollectionRecordBundles:
		var bundle models.RecordBundle
		if err := json.Unmarshal(payload, &bundle); err != nil {
			return fmt.Errorf("decode %s: %w", collection, err)
		}
		if bundle.Record == nil {
			return fmt.Errorf("decode %s: bundle without record", collection)
		}
		return w.db.WithTx(ctx, func(tx *sql.Tx) error {
			if err := w.upsertRecord(ctx, tx, bundle.Record); err != nil {
				return err
			}
			if bundle.Pending != nil {
				return w.upsertPending(ctx, tx, bundle.Pending)
			}
			return nil
		})
	}
	return fmt.Errorf("unknown collection %q", collection)
}

// Replays may repeat after a partial failure, so rows already present are
// left alone.
func (w *DocumentWriter) upsertRecord(ctx context.Context, tx *sql.Tx, rec *models.ScheduledRecord) error {
	if rec.ID != "" {
		existing, err := w.records.GetByID(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
	}
	return w.records.Create(ctx, tx, rec)
}

func (w *DocumentWriter) upsertPending(ctx context.Context, tx *sql.Tx, item *models.PendingPublishItem) error {
	if item.ID != "" {
		existing, err := w.pending.GetByID(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
	}
	return w.pending.Create(ctx, tx, item)
}
