package queue

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/testsupport"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func newTestQueue(t *testing.T) (*Queue, *testsupport.GraphAPI, *utils.TokenSealer) {
	api := testsupport.NewGraphAPI(t)
	sealer := utils.NewTokenSealer("0123456789abcdef")
	graph := service.NewGraphService(api.Client(), api.URL(), time.Second)
	return NewQueue(graph, sealer), api, sealer
}

func TestCancelIsQueuedWithSealedToken(t *testing.T) {
	q, api, sealer := newTestQueue(t)
	enq := &fakeEnqueuer{}
	canceler := NewAsynqCanceler(enq, sealer)

	err := canceler.CancelArtifact(context.Background(), service.CancelRequest{
		RecordID:       "rec-1",
		AccountID:      "page-1",
		Platform:       models.PlatformDirectPublish,
		ProviderPostID: "post-9",
		AccessToken:    "page-token",
	})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)

	task := enq.tasks[0]
	assert.Equal(t, TaskTypeCancelArtifact, task.Type())
	assert.NotContains(t, string(task.Payload()), "page-token")
	assert.Zero(t, api.Count(testsupport.EdgeDelete))

	require.NoError(t, q.HandleCancelArtifactTask(context.Background(), task))
	require.Equal(t, 1, api.Count(testsupport.EdgeDelete))
	assert.Equal(t, "page-token", api.Forms(testsupport.EdgeDelete)[0]["access_token"])
}

func TestEnqueueErrorIsReturned(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	err := NewAsynqCanceler(enq, utils.NewTokenSealer("")).CancelArtifact(context.Background(), service.CancelRequest{
		Platform: models.PlatformDirectPublish, ProviderPostID: "p", AccessToken: "t",
	})
	assert.EqualError(t, err, "redis down")
}

func TestHandleCancelRetryPolicy(t *testing.T) {
	q, api, sealer := newTestQueue(t)
	sealed, err := sealer.Seal("page-token")
	require.NoError(t, err)
	payload := `{"record_id":"r","account_id":"a","platform":"direct_publish","provider_post_id":"post-1","access_token":"` + sealed + `"}`
	task := asynq.NewTask(TaskTypeCancelArtifact, []byte(payload))

	api.Fail(testsupport.EdgeDelete, http.StatusInternalServerError, 2, "Service temporarily unavailable")
	err = q.HandleCancelArtifactTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	api.Fail(testsupport.EdgeDelete, http.StatusBadRequest, 190, "Error validating access token")
	err = q.HandleCancelArtifactTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, service.ErrAuthExpired)
}

func TestHandleCancelBadPayload(t *testing.T) {
	q, api, _ := newTestQueue(t)

	err := q.HandleCancelArtifactTask(context.Background(), asynq.NewTask(TaskTypeCancelArtifact, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	// two-phase containers need no provider call
	err = q.HandleCancelArtifactTask(context.Background(), asynq.NewTask(TaskTypeCancelArtifact,
		[]byte(`{"platform":"two_phase_publish","provider_creation_id":"c1"}`)))
	assert.NoError(t, err)
	assert.Zero(t, api.Count(testsupport.EdgeDelete))
}
