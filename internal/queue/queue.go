package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const cancelMaxRetry = 3

// Enqueuer is the part of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func EnqueueCancel(ctx context.Context, client Enqueuer, payload CancelArtifactPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeCancelArtifact, taskPayload)

	info, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(cancelMaxRetry))
	if err != nil {
		return err
	}

	taskID := ""
	if info != nil {
		taskID = info.ID
	}
	slog.Info("cancel task enqueued", "task_id", taskID, "record_id", payload.RecordID, "platform", payload.Platform)
	return nil
}

type asynqCanceler struct {
	client Enqueuer
	sealer *utils.TokenSealer
}

// NewAsynqCanceler hands artifact cancellation to the task queue so edits
// and deletes do not wait on the provider.
func NewAsynqCanceler(client Enqueuer, sealer *utils.TokenSealer) service.ArtifactCanceler {
	return &asynqCanceler{client: client, sealer: sealer}
}

func (c *asynqCanceler) CancelArtifact(ctx context.Context, req service.CancelRequest) error {
	sealed, err := c.sealer.Seal(req.AccessToken)
	if err != nil {
		return err
	}
	req.AccessToken = sealed
	return EnqueueCancel(ctx, c.client, CancelArtifactPayload{CancelRequest: req})
}
