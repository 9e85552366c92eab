package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/utils"
)

var ErrSweepInProgress = errors.New("a sweep is already running")

type PublishJobOptions struct {
	LeaseTTL   time.Duration
	MaxRetries int
	// Owner identifies this worker in lease rows.
	Owner string
	Now   func() time.Time
}

func PublishJobOptionsFromConfig(s config.Scheduling) PublishJobOptions {
	return PublishJobOptions{
		LeaseTTL:   s.ProcessingLeaseTTL,
		MaxRetries: s.MaxRetries,
	}
}

type SweepReport struct {
	Purged       int `json:"purged"`
	Skipped      int `json:"skipped"`
	Published    int `json:"published"`
	Failed       int `json:"failed"`
	TokenExpired int `json:"token_expired"`
	Retrying     int `json:"retrying"`
	Conflicts    int `json:"conflicts"`
	Orphans      int `json:"orphans"`
	Errors       int `json:"errors"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePublished
	outcomeFailed
	outcomeTokenExpired
	outcomeRetrying
	outcomeConflict
	outcomeOrphan
	outcomeError
)

func (r *SweepReport) add(o outcome) {
	switch o {
	case outcomeSkipped:
		r.Skipped++
	case outcomePublished:
		r.Published++
	case outcomeFailed:
		r.Failed++
	case outcomeTokenExpired:
		r.TokenExpired++
	case outcomeRetrying:
		r.Retrying++
	case outcomeConflict:
		r.Conflicts++
	case outcomeOrphan:
		r.Orphans++
	case outcomeError:
		r.Errors++
	}
}

// PublishJob drives two-phase posts from staged to published. Each sweep
// garbage collects broken pending items, then claims and publishes every
// item that is due.
type PublishJob struct {
	db      *repository.DB
	records repository.ScheduledRecordRepository
	pending repository.PendingPublishRepository
	graph   service.GraphService
	sealer  *utils.TokenSealer
	opts    PublishJobOptions

	running sync.Mutex
}

func NewPublishJob(
	db *repository.DB,
	records repository.ScheduledRecordRepository,
	pending repository.PendingPublishRepository,
	graph service.GraphService,
	sealer *utils.TokenSealer,
	opts PublishJobOptions) *PublishJob {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 300 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PublishJob{
		db:      db,
		records: records,
		pending: pending,
		graph:   graph,
		sealer:  sealer,
		opts:    opts,
	}
}

// Run is the cron entry point.
func (j *PublishJob) Run() {
	report, err := j.Sweep(context.Background())
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			slog.Info("previous sweep still running, skipping tick")
			return
		}
		slog.Error("sweep failed", "error", err)
		return
	}
	slog.Info("sweep finished",
		"purged", report.Purged,
		"published", report.Published,
		"failed", report.Failed,
		"token_expired", report.TokenExpired,
		"retrying", report.Retrying,
		"skipped", report.Skipped,
		"conflicts", report.Conflicts,
		"orphans", report.Orphans,
		"errors", report.Errors,
	)
}

func (j *PublishJob) Sweep(ctx context.Context) (*SweepReport, error) {
	if !j.running.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer j.running.Unlock()

	report := &SweepReport{}

	purged, err := j.CollectInvalid(ctx)
	if err != nil {
		slog.Warn("cleanup of invalid pending items failed", "error", err)
	}
	report.Purged = purged

	items, err := j.pending.List(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("list pending items: %w", err)
	}

	now := j.opts.Now()
	for _, item := range items {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		o, err := j.process(ctx, item, now)
		if err != nil {
			slog.Warn("pending item not processed", "item_id", item.ID, "record_id", item.ScheduledRecordID, "error", err)
		}
		report.add(o)
	}
	return report, nil
}

// CollectInvalid deletes pending items missing a required field. Running
// it on a clean queue changes nothing.
func (j *PublishJob) CollectInvalid(ctx context.Context) (int, error) {
	items, err := j.pending.List(ctx, nil)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, item := range items {
		missing := item.MissingFields()
		if len(missing) == 0 {
			continue
		}
		removed, err := j.pending.Remove(ctx, nil, item.ID, "")
		if err != nil {
			return purged, err
		}
		if removed {
			purged++
			slog.Info("removed invalid pending item", "item_id", item.ID, "missing", missing)
		}
	}
	return purged, nil
}

func (j *PublishJob) process(ctx context.Context, item *models.PendingPublishItem, now time.Time) (outcome, error) {
	if len(item.MissingFields()) > 0 {
		return outcomeSkipped, nil
	}
	if !item.Due(now) {
		return outcomeSkipped, nil
	}
	if item.LeaseHeld(now, j.opts.LeaseTTL) {
		slog.Debug("pending item leased elsewhere", "item_id", item.ID, "owner", item.LeaseOwner)
		return outcomeSkipped, nil
	}

	rec, err := j.records.GetByID(ctx, nil, item.ScheduledRecordID)
	if err != nil {
		return outcomeError, err
	}
	if rec == nil {
		if _, err := j.pending.Remove(ctx, nil, item.ID, ""); err != nil {
			return outcomeError, err
		}
		slog.Warn("removed pending item without record", "item_id", item.ID, "record_id", item.ScheduledRecordID, "error", service.ErrOrphanRecord)
		return outcomeOrphan, nil
	}
	if rec.Status.Absorbing() || rec.Status.Terminal() {
		if _, err := j.pending.Remove(ctx, nil, item.ID, ""); err != nil {
			return outcomeError, err
		}
		slog.Info("dropped pending item for settled record", "item_id", item.ID, "record_id", rec.ID, "status", rec.Status)
		return outcomeSkipped, nil
	}

	if item.RetryCount >= j.opts.MaxRetries {
		msg := fmt.Sprintf("max retries (%d) reached. last error: %s", j.opts.MaxRetries, lastErrorOrUnknown(item.LastError))
		return j.finalize(ctx, item.ID, "", item.ScheduledRecordID, models.RecordStatusFailed, "", msg)
	}

	claimed, err := j.Claim(ctx, item.ID)
	if err != nil {
		if errors.Is(err, service.ErrClaimConflict) {
			return outcomeConflict, nil
		}
		return outcomeError, err
	}

	token, err := j.sealer.Open(claimed.AccessToken)
	if err != nil {
		return j.afterFailure(ctx, claimed, fmt.Errorf("open access token: %w", err))
	}

	slog.Info("publishing media", "item_id", claimed.ID, "account_id", claimed.AccountID,
		"attempt", claimed.RetryCount, "max", j.opts.MaxRetries)

	res, err := j.graph.PublishDeferred(ctx, claimed.AccountID, token, claimed.ProviderCreationID)
	switch {
	case err == nil:
		return j.finalize(ctx, claimed.ID, claimed.LeaseToken, claimed.ScheduledRecordID, models.RecordStatusPublished, res.ID, "")
	case errors.Is(err, service.ErrAuthExpired):
		return j.finalize(ctx, claimed.ID, claimed.LeaseToken, claimed.ScheduledRecordID, models.RecordStatusTokenExpired, "", err.Error())
	default:
		return j.afterFailure(ctx, claimed, err)
	}
}

func lastErrorOrUnknown(s string) string {
	if s == "" {
		return "unknown error"
	}
	return s
}

// Claim takes the processing lease on a pending item and charges one
// retry. It returns ErrClaimConflict when the item is gone or another
// worker holds a fresh lease.
func (j *PublishJob) Claim(ctx context.Context, id string) (*models.PendingPublishItem, error) {
	token, err := utils.GenerateRandomKey(16)
	if err != nil {
		return nil, err
	}
	now := j.opts.Now()
	lease := repository.Lease{
		Token:       token,
		Owner:       j.opts.Owner,
		StartedAt:   now,
		StaleBefore: now.Add(-j.opts.LeaseTTL),
	}

	var claimed *models.PendingPublishItem
	err = j.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := j.pending.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil || current.LeaseHeld(now, j.opts.LeaseTTL) {
			return service.ErrClaimConflict
		}
		ok, err := j.pending.Claim(ctx, tx, id, lease)
		if err != nil {
			return err
		}
		if !ok {
			return service.ErrClaimConflict
		}
		claimed, err = j.pending.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if claimed == nil {
			return service.ErrClaimConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// afterFailure either gives up on the item or releases it for the next
// sweep, depending on how many attempts it has used.
func (j *PublishJob) afterFailure(ctx context.Context, item *models.PendingPublishItem, cause error) (outcome, error) {
	if item.RetryCount >= j.opts.MaxRetries {
		msg := fmt.Sprintf("max retries (%d) reached. last error: %s", j.opts.MaxRetries, cause.Error())
		return j.finalize(ctx, item.ID, item.LeaseToken, item.ScheduledRecordID, models.RecordStatusFailed, "", msg)
	}

	released, err := j.pending.Release(ctx, nil, item.ID, item.LeaseToken, cause.Error())
	if err != nil {
		return outcomeError, err
	}
	if !released {
		return outcomeConflict, fmt.Errorf("lease on %s lost before release", item.ID)
	}
	slog.Warn("publish attempt failed", "item_id", item.ID, "attempt", item.RetryCount, "max", j.opts.MaxRetries, "error", cause)
	return outcomeRetrying, nil
}

// finalize writes the record's end state and removes the pending item in
// one transaction. A non-empty leaseToken makes the write conditional on
// still holding the lease.
func (j *PublishJob) finalize(ctx context.Context, itemID, leaseToken, recordID string, status models.RecordStatus, postID, errMsg string) (outcome, error) {
	result := outcomeFailed
	switch status {
	case models.RecordStatusPublished:
		result = outcomePublished
	case models.RecordStatusTokenExpired:
		result = outcomeTokenExpired
	}

	err := j.db.WithTx(ctx, func(tx *sql.Tx) error {
		rec, err := j.records.GetByID(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if rec == nil {
			result = outcomeOrphan
			_, err := j.pending.Remove(ctx, tx, itemID, "")
			return err
		}

		removed, err := j.pending.Remove(ctx, tx, itemID, leaseToken)
		if err != nil {
			return err
		}
		if !removed {
			return service.ErrClaimConflict
		}

		if rec.Status.Absorbing() {
			// edited or deleted while we were publishing
			result = outcomeSkipped
			return nil
		}

		if status == models.RecordStatusPublished {
			return j.records.MarkPublished(ctx, tx, recordID, postID, j.opts.Now())
		}
		return j.records.MarkFinal(ctx, tx, recordID, status, errMsg)
	})
	if err != nil {
		if errors.Is(err, service.ErrClaimConflict) {
			return outcomeConflict, err
		}
		return outcomeError, err
	}

	switch result {
	case outcomeOrphan:
		slog.Warn("record missing at finalize, dropped pending item", "item_id", itemID, "record_id", recordID, "error", service.ErrOrphanRecord)
	case outcomeSkipped:
		slog.Warn("record settled by user while publishing", "item_id", itemID, "record_id", recordID)
	default:
		slog.Info("pending item finalized", "item_id", itemID, "record_id", recordID, "status", status, "post_id", postID)
	}
	return result, nil
}
