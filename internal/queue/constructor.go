package queue

import (
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/utils"
)

// Queue handles background tasks that clean up provider artifacts after a
// record is edited or deleted.
type Queue struct {
	canceler service.ArtifactCanceler
	sealer   *utils.TokenSealer
}

func NewQueue(graph service.GraphService, sealer *utils.TokenSealer) *Queue {
	return &Queue{
		canceler: service.NewInlineCanceler(graph),
		sealer:   sealer,
	}
}

const TaskTypeCancelArtifact = "artifact:cancel"

// CancelArtifactPayload is a CancelRequest whose access token has been
// sealed before it reaches redis.
type CancelArtifactPayload struct {
	service.CancelRequest
}
