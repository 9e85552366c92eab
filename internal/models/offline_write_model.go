package models

import (
	"encoding/json"
	"time"
)

const (
	CollectionScheduledRecords = "scheduled_records"
	CollectionPendingPublish   = "pending_publish_items"
	CollectionRecordBundles    = "scheduled_bundles"
)

// OfflineWrite is a store write captured while the store was unreachable.
type OfflineWrite struct {
	ID         int64           `db:"id" json:"id"`
	Collection string          `db:"collection" json:"collection"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Attempts   int             `db:"attempts" json:"attempts"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// RecordBundle is a record and its optional pending item, written together.
type RecordBundle struct {
	Record  *ScheduledRecord    `json:"record"`
	Pending *PendingPublishItem `json:"pending,omitempty"`
}
