package repository

var scheduleSchema = []string{
	`CREATE TABLE IF NOT EXISTS scheduled_records (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		account_name TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL,
		caption TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		watermark_url TEXT NOT NULL DEFAULT '',
		scheduled_unix BIGINT NOT NULL,
		status TEXT NOT NULL,
		provider_post_id TEXT NOT NULL DEFAULT '',
		provider_creation_id TEXT NOT NULL DEFAULT '',
		provider_response TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		replaced_by TEXT NOT NULL DEFAULT '',
		published_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_records_account ON scheduled_records (account_id, scheduled_unix)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_records_status ON scheduled_records (status)`,
	`CREATE TABLE IF NOT EXISTS pending_publish_items (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL DEFAULT '',
		provider_creation_id TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		scheduled_unix BIGINT NOT NULL DEFAULT 0,
		scheduled_record_id TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		last_attempt BIGINT NOT NULL DEFAULT 0,
		is_processing INTEGER NOT NULL DEFAULT 0,
		processing_started_at BIGINT NOT NULL DEFAULT 0,
		lease_token TEXT NOT NULL DEFAULT '',
		lease_owner TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_publish_record ON pending_publish_items (scheduled_record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_publish_due ON pending_publish_items (scheduled_unix)`,
}

// offline writes always live in a local sqlite file
var offlineSchema = []string{
	`CREATE TABLE IF NOT EXISTS offline_writes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		payload BLOB NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
}
