package service

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
)

// CancelRequest identifies a provider artifact left behind by an edit or a
// delete. AccessToken is plaintext.
type CancelRequest struct {
	RecordID           string              `json:"record_id"`
	AccountID          string              `json:"account_id"`
	Platform           models.PlatformKind `json:"platform"`
	ProviderPostID     string              `json:"provider_post_id"`
	ProviderCreationID string              `json:"provider_creation_id"`
	AccessToken        string              `json:"access_token"`
}

type ArtifactCanceler interface {
	CancelArtifact(ctx context.Context, req CancelRequest) error
}

type inlineCanceler struct {
	graph GraphService
}

// NewInlineCanceler cancels artifacts synchronously. It is used by the
// cancel task handler and when no task queue is configured.
func NewInlineCanceler(graph GraphService) ArtifactCanceler {
	return &inlineCanceler{graph: graph}
}

func (c *inlineCanceler) CancelArtifact(ctx context.Context, req CancelRequest) error {
	switch req.Platform {
	case models.PlatformDirectPublish:
		if req.ProviderPostID == "" {
			return nil
		}
		if err := c.graph.DeleteScheduled(ctx, req.ProviderPostID, req.AccessToken); err != nil {
			return err
		}
		slog.Info("cancelled scheduled post", "record_id", req.RecordID, "post_id", req.ProviderPostID)
		return nil
	case models.PlatformTwoPhasePublish:
		// unpublished containers expire on the provider side
		return nil
	}
	return configError("unknown platform kind %q", req.Platform)
}
