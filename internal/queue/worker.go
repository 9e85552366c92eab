package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
)

func (q *Queue) HandleCancelArtifactTask(ctx context.Context, task *asynq.Task) error {
	var payload CancelArtifactPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode cancel payload: %v: %w", err, asynq.SkipRetry)
	}

	token, err := q.sealer.Open(payload.AccessToken)
	if err != nil {
		return fmt.Errorf("open access token: %v: %w", err, asynq.SkipRetry)
	}
	req := payload.CancelRequest
	req.AccessToken = token

	err = q.canceler.CancelArtifact(ctx, req)
	if err == nil {
		return nil
	}
	slog.Warn("cancel artifact failed", "record_id", req.RecordID, "post_id", req.ProviderPostID, "kind", service.ErrorKind(err), "error", err)

	// only provider rejections are worth another attempt
	if errors.Is(err, service.ErrProviderRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// Mux routes every task type the worker understands.
func (q *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeCancelArtifact, q.HandleCancelArtifactTask)
	return mux
}
