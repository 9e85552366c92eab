package models

import (
	"fmt"
	"strings"
	"time"
)

type RecordStatus string

const (
	RecordStatusScheduled    RecordStatus = "scheduled"
	RecordStatusPending      RecordStatus = "pending"
	RecordStatusPublished    RecordStatus = "published"
	RecordStatusFailed       RecordStatus = "failed"
	RecordStatusTokenExpired RecordStatus = "token_expired"
	RecordStatusDeleted      RecordStatus = "deleted"
	RecordStatusEdited       RecordStatus = "edited"
)

func ParseRecordStatus(s string) (RecordStatus, error) {
	status := RecordStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case RecordStatusScheduled, RecordStatusPending, RecordStatusPublished, RecordStatusFailed,
		RecordStatusTokenExpired, RecordStatusDeleted, RecordStatusEdited:
		return status, nil
	}
	return "", fmt.Errorf("unknown record status %q", s)
}

// Terminal statuses are set only by the reconciler.
func (s RecordStatus) Terminal() bool {
	switch s {
	case RecordStatusPublished, RecordStatusFailed, RecordStatusTokenExpired:
		return true
	}
	return false
}

// Absorbing statuses are set by user action and never left.
func (s RecordStatus) Absorbing() bool {
	return s == RecordStatusDeleted || s == RecordStatusEdited
}

// PostIntent is a single post the operator wants to go out. RequestedAt
// is advisory; the scheduler clamps it to the provider's lead time.
type PostIntent struct {
	ImageURL    string    `json:"image_url"`
	Caption     string    `json:"caption"`
	RequestedAt time.Time `json:"requested_at"`
}

type ScheduledRecord struct {
	ID                 string       `db:"id" json:"id"`
	AccountID          string       `db:"account_id" json:"account_id"`
	AccountName        string       `db:"account_name" json:"account_name"`
	Platform           PlatformKind `db:"platform" json:"platform"`
	Caption            string       `db:"caption" json:"caption"`
	ImageURL           string       `db:"image_url" json:"image_url"`
	WatermarkURL       string       `db:"watermark_url" json:"watermark_url,omitempty"`
	ScheduledUnix      int64        `db:"scheduled_unix" json:"scheduled_unix"`
	Status             RecordStatus `db:"status" json:"status"`
	ProviderPostID     string       `db:"provider_post_id" json:"provider_post_id,omitempty"`
	ProviderCreationID string       `db:"provider_creation_id" json:"provider_creation_id,omitempty"`
	ProviderResponse   string       `db:"provider_response" json:"provider_response,omitempty"`
	ErrorMessage       string       `db:"error_message" json:"error_message,omitempty"`
	ReplacedBy         string       `db:"replaced_by" json:"replaced_by,omitempty"`
	PublishedAt        time.Time    `db:"published_at" json:"published_at,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}

func (r *ScheduledRecord) ScheduledAt() time.Time {
	return time.Unix(r.ScheduledUnix, 0)
}

// Live reports whether the provider has already put a direct post out.
// Those records stay "scheduled" forever once their time passes.
func (r *ScheduledRecord) Live(now time.Time) bool {
	return r.Platform == PlatformDirectPublish &&
		r.Status == RecordStatusScheduled &&
		r.ScheduledUnix <= now.Unix()
}
