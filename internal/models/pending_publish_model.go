package models

import "time"

// PendingPublishItem is a staged two-phase artifact waiting for the
// reconciler to publish it. AccessToken is stored sealed.
type PendingPublishItem struct {
	ID                  string    `db:"id" json:"id"`
	AccountID           string    `db:"account_id" json:"account_id"`
	ProviderCreationID  string    `db:"provider_creation_id" json:"provider_creation_id"`
	AccessToken         string    `db:"access_token" json:"access_token"`
	ScheduledUnix       int64     `db:"scheduled_unix" json:"scheduled_unix"`
	ScheduledRecordID   string    `db:"scheduled_record_id" json:"scheduled_record_id"`
	RetryCount          int       `db:"retry_count" json:"retry_count"`
	LastError           string    `db:"last_error" json:"last_error,omitempty"`
	LastAttempt         time.Time `db:"last_attempt" json:"last_attempt,omitempty"`
	IsProcessing        bool      `db:"is_processing" json:"is_processing"`
	ProcessingStartedAt time.Time `db:"processing_started_at" json:"processing_started_at,omitempty"`
	LeaseToken          string    `db:"lease_token" json:"-"`
	LeaseOwner          string    `db:"lease_owner" json:"lease_owner,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// MissingFields lists the required fields that are empty. Items with any
// missing field can never be published and are garbage collected.
func (p *PendingPublishItem) MissingFields() []string {
	var missing []string
	if p.AccountID == "" {
		missing = append(missing, "account_id")
	}
	if p.ProviderCreationID == "" {
		missing = append(missing, "provider_creation_id")
	}
	if p.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if p.ScheduledUnix <= 0 {
		missing = append(missing, "scheduled_unix")
	}
	if p.ScheduledRecordID == "" {
		missing = append(missing, "scheduled_record_id")
	}
	return missing
}

func (p *PendingPublishItem) Due(now time.Time) bool {
	return p.ScheduledUnix <= now.Unix()
}

// LeaseHeld reports whether another worker holds a lease that has not yet
// gone stale.
func (p *PendingPublishItem) LeaseHeld(now time.Time, ttl time.Duration) bool {
	if !p.IsProcessing {
		return false
	}
	if p.ProcessingStartedAt.IsZero() {
		return false
	}
	return now.Sub(p.ProcessingStartedAt) < ttl
}
