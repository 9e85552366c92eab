package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/testsupport"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Unix(1_800_000_000, 0)

type schedulerFixture struct {
	store  *testsupport.Store
	api    *testsupport.GraphAPI
	sealer *utils.TokenSealer
	sink   *recordingSink
	svc    SchedulerService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	wrapPending func(repository.PendingPublishRepository) repository.PendingPublishRepository
	canceler    ArtifactCanceler
	opts        SchedulerOptions
}

func withFailingPendingWrites() fixtureOption {
	return func(c *fixtureConfig) {
		c.wrapPending = func(p repository.PendingPublishRepository) repository.PendingPublishRepository {
			return failingPendingRepo{p}
		}
	}
}

func withCanceler(c ArtifactCanceler) fixtureOption {
	return func(cfg *fixtureConfig) { cfg.canceler = c }
}

func newSchedulerFixture(t *testing.T, options ...fixtureOption) *schedulerFixture {
	t.Helper()

	store := testsupport.NewStore(t)
	api := testsupport.NewGraphAPI(t)
	graph := NewGraphService(api.Client(), api.URL(), 2*time.Second)
	sealer := utils.NewTokenSealer(testSecret)
	sink := &recordingSink{err: errors.New("queued for replay")}

	cfg := &fixtureConfig{
		opts: SchedulerOptions{
			MinLeadTime: 20 * time.Minute,
			BatchSize:   5,
			BatchDelay:  time.Millisecond,
			Now:         func() time.Time { return testNow },
		},
	}
	for _, o := range options {
		o(cfg)
	}
	pending := store.Pending
	if cfg.wrapPending != nil {
		pending = cfg.wrapPending(pending)
	}

	return &schedulerFixture{
		store:  store,
		api:    api,
		sealer: sealer,
		sink:   sink,
		svc:    NewSchedulerService(store.DB, store.Records, pending, graph, cfg.canceler, sealer, sink, cfg.opts),
	}
}

type recordingSink struct {
	mu   sync.Mutex
	docs []any
	err  error
}

func (s *recordingSink) EnqueueOrWrite(_ context.Context, _ string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return s.err
}

type failingPendingRepo struct {
	repository.PendingPublishRepository
}

func (failingPendingRepo) Create(context.Context, *sql.Tx, *models.PendingPublishItem) error {
	return errors.New("pending collection unavailable")
}

type recordingCanceler struct {
	mu       sync.Mutex
	requests []CancelRequest
}

func (c *recordingCanceler) CancelArtifact(_ context.Context, req CancelRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return nil
}

func pageAccount(id string) models.Account {
	return models.Account{ID: id, DisplayName: "Page " + id, Platform: models.PlatformDirectPublish, AccessToken: "page-token-" + id}
}

func igAccount(id string) models.Account {
	return models.Account{ID: id, DisplayName: "IG " + id, Platform: models.PlatformTwoPhasePublish, AccessToken: "ig-token-" + id}
}

func intentAt(offset time.Duration) models.PostIntent {
	return models.PostIntent{ImageURL: "https://cdn.example/p.jpg", Caption: "fresh bread", RequestedAt: testNow.Add(offset)}
}

func TestDirectPublishScheduledWithoutPendingItem(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	res := f.svc.ScheduleBatch(ctx, NewBatchContext(
		[]models.Account{pageAccount("9911")},
		[]models.PostIntent{intentAt(time.Hour)},
	))
	require.Empty(t, res.Failed)
	require.Len(t, res.Succeeded, 1)

	rec := res.Succeeded[0]
	assert.Equal(t, models.RecordStatusScheduled, rec.Status)
	assert.NotEmpty(t, rec.ProviderPostID)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), rec.ScheduledUnix)

	items, err := f.store.Pending.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	stored, err := f.store.Records.GetByID(ctx, nil, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusScheduled, stored.Status)
}

func TestTwoPhaseWritesRecordAndSealedPendingItem(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	res := f.svc.ScheduleBatch(ctx, NewBatchContext(
		[]models.Account{igAccount("17841")},
		[]models.PostIntent{intentAt(2 * time.Hour)},
	))
	require.Len(t, res.Succeeded, 1)
	rec := res.Succeeded[0]
	assert.Equal(t, models.RecordStatusPending, rec.Status)
	assert.NotEmpty(t, rec.ProviderCreationID)
	assert.Zero(t, f.api.Count(testsupport.EdgeMediaPublish))

	items, err := f.store.Pending.ListByRecordID(ctx, nil, rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, rec.ProviderCreationID, item.ProviderCreationID)
	assert.Equal(t, rec.ScheduledUnix, item.ScheduledUnix)
	assert.Zero(t, item.RetryCount)
	assert.False(t, item.IsProcessing)
	assert.NotEqual(t, "ig-token-17841", item.AccessToken)

	token, err := f.sealer.Open(item.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ig-token-17841", token)
}

func TestScheduleClampsToLeadTime(t *testing.T) {
	f := newSchedulerFixture(t)
	earliest := testNow.Add(20 * time.Minute).Unix()

	offsets := []time.Duration{-48 * time.Hour, -time.Second, 0, 19 * time.Minute, 20 * time.Minute, 21 * time.Minute, 72 * time.Hour}
	intents := make([]models.PostIntent, 0, len(offsets))
	for _, o := range offsets {
		intents = append(intents, intentAt(o))
	}
	intents = append(intents, models.PostIntent{ImageURL: "u", Caption: "no date"})

	res := f.svc.ScheduleBatch(context.Background(), NewBatchContext([]models.Account{igAccount("17841")}, intents))
	require.Empty(t, res.Failed)
	require.Len(t, res.Succeeded, len(intents))

	for i, rec := range res.Succeeded {
		assert.GreaterOrEqual(t, rec.ScheduledUnix, earliest, "pair %d", i)
		if i < len(offsets) {
			want := testNow.Add(offsets[i]).Unix()
			if want < earliest {
				want = earliest
			}
			assert.Equal(t, want, rec.ScheduledUnix, "pair %d", i)
		}
	}
}

func TestConfigErrorsFailOnlyTheirPair(t *testing.T) {
	f := newSchedulerFixture(t)

	noToken := igAccount("555")
	noToken.AccessToken = ""
	accounts := []models.Account{
		pageAccount("9911"),
		{ID: "0", DisplayName: "Unlinked", Platform: models.PlatformDirectPublish, AccessToken: "t"},
		noToken,
		igAccount("17841"),
	}

	res := f.svc.ScheduleBatch(context.Background(), NewBatchContext(accounts, []models.PostIntent{intentAt(time.Hour)}))
	require.Len(t, res.Succeeded, 2)
	require.Len(t, res.Failed, 2)

	assert.Equal(t, "0", res.Failed[0].AccountID)
	assert.Equal(t, "config", res.Failed[0].Kind)
	assert.Equal(t, "555", res.Failed[1].AccountID)
	assert.Equal(t, "config", res.Failed[1].Kind)

	// nothing reached the provider for the broken pairs
	assert.Equal(t, 1, f.api.Count(testsupport.EdgePhotos))
	assert.Equal(t, 1, f.api.Count(testsupport.EdgeMedia))
}

func TestProviderFailureDoesNotAbortBatch(t *testing.T) {
	f := newSchedulerFixture(t)
	f.api.On(testsupport.EdgeMedia, func(r *http.Request) (int, string) {
		if r.FormValue("access_token") == "ig-token-bad" {
			return http.StatusBadRequest, `{"error":{"message":"Only photo or video can be accepted","code":9004}}`
		}
		return http.StatusOK, `{"id":"creation-ok"}`
	})

	accounts := []models.Account{igAccount("1"), igAccount("bad"), igAccount("3")}
	res := f.svc.ScheduleBatch(context.Background(), NewBatchContext(accounts, []models.PostIntent{intentAt(time.Hour)}))

	require.Len(t, res.Succeeded, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "bad", res.Failed[0].AccountID)
	assert.Equal(t, "provider_rejected", res.Failed[0].Kind)
	assert.Equal(t, "IG bad", res.Failed[0].AccountName)
}

func TestLargeBatchRunsInChunksAndKeepsOrder(t *testing.T) {
	f := newSchedulerFixture(t)

	var accounts []models.Account
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		accounts = append(accounts, igAccount(id))
	}
	res := f.svc.ScheduleBatch(context.Background(), NewBatchContext(accounts, []models.PostIntent{intentAt(time.Hour)}))
	require.Len(t, res.Succeeded, len(accounts))
	for i, rec := range res.Succeeded {
		assert.Equal(t, accounts[i].ID, rec.AccountID)
	}
	assert.Equal(t, len(accounts), f.api.Count(testsupport.EdgeMedia))
}

func TestCancelledBatchReportsRemainingPairs(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	var accounts []models.Account
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		accounts = append(accounts, igAccount(id))
	}
	f.api.On(testsupport.EdgeMedia, func(*http.Request) (int, string) {
		cancel()
		return http.StatusOK, `{"id":"creation-x"}`
	})

	res := f.svc.ScheduleBatch(ctx, NewBatchContext(accounts, []models.PostIntent{intentAt(time.Hour)}))
	assert.Equal(t, len(accounts), len(res.Succeeded)+len(res.Failed))
	assert.GreaterOrEqual(t, len(res.Failed), 2)
	assert.LessOrEqual(t, f.api.Count(testsupport.EdgeMedia), 5, "second chunk never starts")
}

func TestStoreFailureLeavesNoHalfWrittenPair(t *testing.T) {
	f := newSchedulerFixture(t, withFailingPendingWrites())
	ctx := context.Background()

	res := f.svc.ScheduleBatch(ctx, NewBatchContext([]models.Account{igAccount("17841")}, []models.PostIntent{intentAt(time.Hour)}))
	require.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "store", res.Failed[0].Kind)

	pending, err := f.store.Records.ListByStatus(ctx, models.RecordStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending, "record must roll back with its pending item")

	require.Len(t, f.sink.docs, 1)
	bundle, ok := f.sink.docs[0].(models.RecordBundle)
	require.True(t, ok)
	assert.NotNil(t, bundle.Pending)
	assert.Equal(t, bundle.Record.ID, bundle.Pending.ScheduledRecordID)
}

func TestListUpcoming(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	res := f.svc.ScheduleBatch(ctx, NewBatchContext(
		[]models.Account{pageAccount("p1"), igAccount("i1")},
		[]models.PostIntent{intentAt(3 * time.Hour), intentAt(time.Hour)},
	))
	require.Len(t, res.Succeeded, 4)

	list, err := f.svc.ListUpcoming(ctx, []string{"p1", "i1", "", "p1"})
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i := 1; i < len(list); i++ {
		assert.LessOrEqual(t, list[i-1].ScheduledUnix, list[i].ScheduledUnix)
	}

	only, err := f.svc.ListUpcoming(ctx, []string{"i1"})
	require.NoError(t, err)
	assert.Len(t, only, 2)
}

func TestEditPendingRecordReplacesIt(t *testing.T) {
	canceler := &recordingCanceler{}
	f := newSchedulerFixture(t, withCanceler(canceler))
	ctx := context.Background()

	res := f.svc.ScheduleBatch(ctx, NewBatchContext([]models.Account{igAccount("17841")}, []models.PostIntent{intentAt(time.Hour)}))
	require.Len(t, res.Succeeded, 1)
	old := res.Succeeded[0]

	caption := "now with croissants"
	when := testNow.Add(5 * time.Hour)
	updated, err := f.svc.EditScheduledRecord(ctx, old.ID, RecordChanges{Caption: &caption, RequestedAt: &when}, models.Account{AccessToken: "ig-token-17841"})
	require.NoError(t, err)

	assert.NotEqual(t, old.ID, updated.ID)
	assert.Equal(t, models.RecordStatusPending, updated.Status)
	assert.Equal(t, caption, updated.Caption)
	assert.Equal(t, when.Unix(), updated.ScheduledUnix)
	assert.Equal(t, old.ImageURL, updated.ImageURL)

	stale, err := f.store.Records.GetByID(ctx, nil, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusEdited, stale.Status)
	assert.Equal(t, updated.ID, stale.ReplacedBy)
	assert.Empty(t, stale.ProviderCreationID)

	oldItems, err := f.store.Pending.ListByRecordID(ctx, nil, old.ID)
	require.NoError(t, err)
	assert.Empty(t, oldItems)

	newItems, err := f.store.Pending.ListByRecordID(ctx, nil, updated.ID)
	require.NoError(t, err)
	assert.Len(t, newItems, 1)

	require.Len(t, canceler.requests, 1)
	assert.Equal(t, old.ID, canceler.requests[0].RecordID)
	assert.Equal(t, old.ProviderCreationID, canceler.requests[0].ProviderCreationID)
}

func TestEditDirectRecordCancelsOldPost(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	res := f.svc.ScheduleBatch(ctx, NewBatchContext([]models.Account{pageAccount("9911")}, []models.PostIntent{intentAt(time.Hour)}))
	require.Len(t, res.Succeeded, 1)
	old := res.Succeeded[0]

	caption := "edited"
	updated, err := f.svc.EditScheduledRecord(ctx, old.ID, RecordChanges{Caption: &caption}, pageAccount("9911"))
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusScheduled, updated.Status)
	assert.NotEqual(t, old.ProviderPostID, updated.ProviderPostID)
	assert.Equal(t, old.ScheduledUnix, updated.ScheduledUnix)

	assert.Equal(t, 2, f.api.Count(testsupport.EdgePhotos))
	assert.Equal(t, 1, f.api.Count(testsupport.EdgeDelete))
}

func TestEditRejectsFinishedRecords(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	rec := &models.ScheduledRecord{AccountID: "17841", Platform: models.PlatformTwoPhasePublish, ScheduledUnix: 1, Status: models.RecordStatusPublished}
	require.NoError(t, f.store.Records.Create(ctx, nil, rec))

	caption := "late"
	_, err := f.svc.EditScheduledRecord(ctx, rec.ID, RecordChanges{Caption: &caption}, igAccount("17841"))
	assert.ErrorIs(t, err, ErrNotEditable)
	assert.Zero(t, f.api.Count(testsupport.EdgeMedia))

	_, err = f.svc.EditScheduledRecord(ctx, "missing", RecordChanges{}, igAccount("17841"))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestEditRejectsLiveDirectPost(t *testing.T) {
	canceler := &recordingCanceler{}
	f := newSchedulerFixture(t, withCanceler(canceler))
	ctx := context.Background()

	rec := &models.ScheduledRecord{
		AccountID:      "9911",
		Platform:       models.PlatformDirectPublish,
		ScheduledUnix:  testNow.Add(-time.Hour).Unix(),
		Status:         models.RecordStatusScheduled,
		ProviderPostID: "live-post",
	}
	require.NoError(t, f.store.Records.Create(ctx, nil, rec))

	caption := "too late"
	_, err := f.svc.EditScheduledRecord(ctx, rec.ID, RecordChanges{Caption: &caption}, pageAccount("9911"))
	assert.ErrorIs(t, err, ErrNotEditable)
	assert.Zero(t, f.api.Count(testsupport.EdgePhotos))
	assert.Empty(t, canceler.requests)

	got, err := f.store.Records.GetByID(ctx, nil, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusScheduled, got.Status)
}

func TestEditRejectsForeignAccount(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	res := f.svc.ScheduleBatch(ctx, NewBatchContext([]models.Account{igAccount("17841")}, []models.PostIntent{intentAt(time.Hour)}))
	require.Len(t, res.Succeeded, 1)

	_, err := f.svc.EditScheduledRecord(ctx, res.Succeeded[0].ID, RecordChanges{}, igAccount("other"))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestDeleteRemovesPendingItems(t *testing.T) {
	canceler := &recordingCanceler{}
	f := newSchedulerFixture(t, withCanceler(canceler))
	ctx := context.Background()

	res := f.svc.ScheduleBatch(ctx, NewBatchContext([]models.Account{igAccount("17841")}, []models.PostIntent{intentAt(time.Hour)}))
	require.Len(t, res.Succeeded, 1)
	rec := res.Succeeded[0]

	require.NoError(t, f.svc.DeleteScheduledRecord(ctx, rec.ID, "ig-token-17841"))

	got, err := f.store.Records.GetByID(ctx, nil, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusDeleted, got.Status)

	items, err := f.store.Pending.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Len(t, canceler.requests, 1)

	// deleting again is a no-op
	require.NoError(t, f.svc.DeleteScheduledRecord(ctx, rec.ID, "ig-token-17841"))
	assert.Len(t, canceler.requests, 1)

	assert.ErrorIs(t, f.svc.DeleteScheduledRecord(ctx, "missing", ""), ErrRecordNotFound)
}
