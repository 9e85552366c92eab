package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// OfflineSink takes a store write that could not be made and replays it
// later. A nil error means the write reached the store.
type OfflineSink interface {
	EnqueueOrWrite(ctx context.Context, collection string, doc any) error
}

type BatchResult struct {
	Succeeded []*models.ScheduledRecord
	Failed    []transfer.PairFailure
}

// RecordChanges are the fields an edit may replace. Nil keeps the old value.
type RecordChanges struct {
	Caption     *string
	ImageURL    *string
	RequestedAt *time.Time
}

type SchedulerService interface {
	ScheduleBatch(ctx context.Context, batch *BatchContext) *BatchResult
	ListUpcoming(ctx context.Context, accountIDs []string) ([]*models.ScheduledRecord, error)
	EditScheduledRecord(ctx context.Context, id string, changes RecordChanges, account models.Account) (*models.ScheduledRecord, error)
	DeleteScheduledRecord(ctx context.Context, id, accessToken string) error
}

type SchedulerOptions struct {
	MinLeadTime time.Duration
	BatchSize   int
	BatchDelay  time.Duration
	Now         func() time.Time
}

func SchedulerOptionsFromConfig(s config.Scheduling) SchedulerOptions {
	return SchedulerOptions{
		MinLeadTime: s.MinLeadTime,
		BatchSize:   s.BatchSize,
		BatchDelay:  s.BatchDelay,
	}
}

type schedulerService struct {
	db       *repository.DB
	records  repository.ScheduledRecordRepository
	pending  repository.PendingPublishRepository
	graph    GraphService
	canceler ArtifactCanceler
	sealer   *utils.TokenSealer
	offline  OfflineSink
	opts     SchedulerOptions
}

func NewSchedulerService(
	db *repository.DB,
	records repository.ScheduledRecordRepository,
	pending repository.PendingPublishRepository,
	graph GraphService,
	canceler ArtifactCanceler,
	sealer *utils.TokenSealer,
	offline OfflineSink,
	opts SchedulerOptions) SchedulerService {
	if opts.BatchSize < 1 {
		opts.BatchSize = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if canceler == nil {
		canceler = NewInlineCanceler(graph)
	}
	return &schedulerService{
		db:       db,
		records:  records,
		pending:  pending,
		graph:    graph,
		canceler: canceler,
		sealer:   sealer,
		offline:  offline,
		opts:     opts,
	}
}

// ScheduleBatch stages every pair and records the outcome. Pairs run
// BatchSize at a time with BatchDelay between groups. One pair failing
// never stops the others.
func (s *schedulerService) ScheduleBatch(ctx context.Context, batch *BatchContext) *BatchResult {
	result := &BatchResult{}
	pairs := batch.Pairs()
	chunks := lo.Chunk(pairs, s.opts.BatchSize)

	for i, chunk := range chunks {
		if i > 0 && !sleepCtx(ctx, s.opts.BatchDelay) {
			for _, rest := range chunks[i:] {
				for _, p := range rest {
					result.Failed = append(result.Failed, pairFailure(p, ctx.Err()))
				}
			}
			break
		}

		records := make([]*models.ScheduledRecord, len(chunk))
		errs := make([]error, len(chunk))

		var g errgroup.Group
		for j, p := range chunk {
			g.Go(func() error {
				records[j], errs[j] = s.schedulePair(ctx, p)
				return nil
			})
		}
		_ = g.Wait()

		for j, p := range chunk {
			if errs[j] != nil {
				slog.Warn("pair failed", "account_id", p.Account.ID, "account_name", p.Account.DisplayName, "error", errs[j])
				result.Failed = append(result.Failed, pairFailure(p, errs[j]))
				continue
			}
			result.Succeeded = append(result.Succeeded, records[j])
		}
	}

	slog.Info("batch scheduled", "pairs", len(pairs), "succeeded", len(result.Succeeded), "failed", len(result.Failed))
	return result
}

func pairFailure(p Pair, err error) transfer.PairFailure {
	return transfer.PairFailure{
		AccountID:   p.Account.ID,
		AccountName: p.Account.DisplayName,
		ImageURL:    p.Intent.ImageURL,
		Kind:        ErrorKind(err),
		Error:       err.Error(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *schedulerService) schedulePair(ctx context.Context, p Pair) (*models.ScheduledRecord, error) {
	rec, item, err := s.stage(ctx, p.Account, p.Intent, p.WatermarkURL)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, rec, item)
	})
	if err == nil {
		return rec, nil
	}

	slog.Error("store write failed after provider accepted the post",
		"account_id", rec.AccountID, "record_id", rec.ID, "error", err)
	if s.offline == nil {
		return nil, fmt.Errorf("save scheduled record: %w", err)
	}
	if qerr := s.offline.EnqueueOrWrite(ctx, models.CollectionRecordBundles, models.RecordBundle{Record: rec, Pending: item}); qerr != nil {
		return nil, fmt.Errorf("save scheduled record: %w (%v)", err, qerr)
	}
	return rec, nil
}

// stage validates the pair, runs phase one and builds the rows to write.
// Nothing is written here.
func (s *schedulerService) stage(ctx context.Context, acct models.Account, intent models.PostIntent, watermarkURL string) (*models.ScheduledRecord, *models.PendingPublishItem, error) {
	if !acct.HasValidID() {
		return nil, nil, configError("account %q has no usable id", acct.DisplayName)
	}
	if acct.AccessToken == "" {
		return nil, nil, configError("account %s has no access token", acct.ID)
	}
	dest, err := acct.Destination()
	if err != nil {
		return nil, nil, configError("%v", err)
	}

	scheduledUnix := ClampSchedule(intent.RequestedAt, s.opts.Now(), s.opts.MinLeadTime)

	staged, err := Stage(ctx, s.graph, dest, StagedPost{
		ImageURL:      intent.ImageURL,
		Caption:       intent.Caption,
		ScheduledUnix: scheduledUnix,
	})
	if err != nil {
		return nil, nil, err
	}

	recordID, err := utils.NewRecordID()
	if err != nil {
		return nil, nil, err
	}
	now := s.opts.Now()
	rec := &models.ScheduledRecord{
		ID:               recordID,
		AccountID:        acct.ID,
		AccountName:      acct.DisplayName,
		Platform:         staged.Platform,
		Caption:          intent.Caption,
		ImageURL:         intent.ImageURL,
		WatermarkURL:     watermarkURL,
		ScheduledUnix:    scheduledUnix,
		ProviderResponse: staged.Raw,
		CreatedAt:        now,
	}

	switch staged.Platform {
	case models.PlatformDirectPublish:
		rec.Status = models.RecordStatusScheduled
		rec.ProviderPostID = staged.PostID
		return rec, nil, nil

	case models.PlatformTwoPhasePublish:
		rec.Status = models.RecordStatusPending
		rec.ProviderCreationID = staged.CreationID

		sealed, err := s.sealer.Seal(acct.AccessToken)
		if err != nil {
			return nil, nil, fmt.Errorf("seal access token: %w", err)
		}
		itemID, err := utils.NewRecordID()
		if err != nil {
			return nil, nil, err
		}
		item := &models.PendingPublishItem{
			ID:                 itemID,
			AccountID:          acct.ID,
			ProviderCreationID: staged.CreationID,
			AccessToken:        sealed,
			ScheduledUnix:      scheduledUnix,
			ScheduledRecordID:  recordID,
			CreatedAt:          now,
		}
		return rec, item, nil
	}
	return nil, nil, configError("unsupported platform %q", staged.Platform)
}

func (s *schedulerService) insert(ctx context.Context, tx *sql.Tx, rec *models.ScheduledRecord, item *models.PendingPublishItem) error {
	if err := s.records.Create(ctx, tx, rec); err != nil {
		return err
	}
	if item != nil {
		if err := s.pending.Create(ctx, tx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *schedulerService) ListUpcoming(ctx context.Context, accountIDs []string) ([]*models.ScheduledRecord, error) {
	ids := lo.Uniq(lo.Filter(accountIDs, func(id string, _ int) bool { return id != "" }))
	return s.records.ListUpcoming(ctx, ids, s.opts.Now())
}

// EditScheduledRecord replaces a record with a new one built from the
// changes. The new artifact is staged first; the old record is superseded
// and its provider artifact cancelled only once the new one exists.
func (s *schedulerService) EditScheduledRecord(ctx context.Context, id string, changes RecordChanges, account models.Account) (*models.ScheduledRecord, error) {
	old, err := s.records.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrRecordNotFound
	}
	if old.Status.Terminal() || old.Status.Absorbing() {
		return nil, fmt.Errorf("%w: record %s is %s", ErrNotEditable, id, old.Status)
	}
	if old.Live(s.opts.Now()) {
		return nil, fmt.Errorf("%w: record %s is already live", ErrNotEditable, id)
	}

	if account.ID == "" {
		account.ID = old.AccountID
	}
	if account.ID != old.AccountID {
		return nil, configError("record %s belongs to account %s, not %s", id, old.AccountID, account.ID)
	}
	if account.Platform == "" {
		account.Platform = old.Platform
	}
	if account.DisplayName == "" {
		account.DisplayName = old.AccountName
	}

	intent := models.PostIntent{
		ImageURL:    old.ImageURL,
		Caption:     old.Caption,
		RequestedAt: old.ScheduledAt(),
	}
	if changes.Caption != nil {
		intent.Caption = *changes.Caption
	}
	if changes.ImageURL != nil {
		intent.ImageURL = *changes.ImageURL
	}
	if changes.RequestedAt != nil {
		intent.RequestedAt = *changes.RequestedAt
	}

	rec, item, err := s.stage(ctx, account, intent, old.WatermarkURL)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := s.records.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrRecordNotFound
		}
		if current.Status.Terminal() || current.Status.Absorbing() {
			return fmt.Errorf("%w: record %s is %s", ErrNotEditable, id, current.Status)
		}
		if current.Live(s.opts.Now()) {
			return fmt.Errorf("%w: record %s is already live", ErrNotEditable, id)
		}
		if err := s.records.MarkEdited(ctx, tx, id, rec.ID); err != nil {
			return err
		}
		if _, err := s.pending.RemoveByRecordID(ctx, tx, id); err != nil {
			return err
		}
		return s.insert(ctx, tx, rec, item)
	})
	if err != nil {
		// the replacement never got a record; take it back down
		s.cancel(ctx, CancelRequest{
			RecordID:           rec.ID,
			AccountID:          rec.AccountID,
			Platform:           rec.Platform,
			ProviderPostID:     rec.ProviderPostID,
			ProviderCreationID: rec.ProviderCreationID,
			AccessToken:        account.AccessToken,
		})
		return nil, err
	}

	s.cancel(ctx, CancelRequest{
		RecordID:           old.ID,
		AccountID:          old.AccountID,
		Platform:           old.Platform,
		ProviderPostID:     old.ProviderPostID,
		ProviderCreationID: old.ProviderCreationID,
		AccessToken:        account.AccessToken,
	})

	slog.Info("scheduled record edited", "old_id", old.ID, "new_id", rec.ID, "scheduled_unix", rec.ScheduledUnix)
	return rec, nil
}

// DeleteScheduledRecord marks the record deleted and drops its pending
// items. The provider artifact is cancelled when a token is given.
func (s *schedulerService) DeleteScheduledRecord(ctx context.Context, id, accessToken string) error {
	var old *models.ScheduledRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		rec, err := s.records.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrRecordNotFound
		}
		old = rec
		if rec.Status == models.RecordStatusDeleted {
			return nil
		}
		if rec.Status == models.RecordStatusEdited {
			return fmt.Errorf("%w: record %s was replaced by %s", ErrNotEditable, id, rec.ReplacedBy)
		}
		if err := s.records.MarkDeleted(ctx, tx, id); err != nil {
			return err
		}
		_, err = s.pending.RemoveByRecordID(ctx, tx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRecordNotFound
		}
		return err
	}

	if accessToken != "" && old.Status != models.RecordStatusDeleted {
		s.cancel(ctx, CancelRequest{
			RecordID:           old.ID,
			AccountID:          old.AccountID,
			Platform:           old.Platform,
			ProviderPostID:     old.ProviderPostID,
			ProviderCreationID: old.ProviderCreationID,
			AccessToken:        accessToken,
		})
	}
	slog.Info("scheduled record deleted", "record_id", id)
	return nil
}

func (s *schedulerService) cancel(ctx context.Context, req CancelRequest) {
	if req.AccessToken == "" {
		return
	}
	if err := s.canceler.CancelArtifact(ctx, req); err != nil {
		slog.Warn("could not cancel provider artifact", "record_id", req.RecordID, "error", err)
	}
}
