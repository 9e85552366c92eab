package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/codeGROOVE-dev/retry"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// PublishResult is the provider's answer to a publish call.
type PublishResult struct {
	ID  string
	Raw string
}

type GraphService interface {
	PublishDirect(ctx context.Context, accountID, accessToken, imageURL, caption string, scheduledUnix int64) (*PublishResult, error)
	CreateDeferred(ctx context.Context, accountID, accessToken, imageURL, caption string) (*PublishResult, error)
	PublishDeferred(ctx context.Context, accountID, accessToken, creationID string) (*PublishResult, error)
	DeleteScheduled(ctx context.Context, postID, accessToken string) error
}

type graphService struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

func NewGraphService(client *http.Client, baseURL string, timeout time.Duration) GraphService {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &graphService{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// StagedPost is phase one input for any destination.
type StagedPost struct {
	ImageURL      string
	Caption       string
	ScheduledUnix int64
}

// StageResult says what phase one produced. Direct destinations come back
// with a post id and need nothing further; two-phase destinations come
// back with a creation id the reconciler publishes later.
type StageResult struct {
	Platform   models.PlatformKind
	PostID     string
	CreationID string
	Raw        string
}

// Stage runs phase one for the destination.
func Stage(ctx context.Context, g GraphService, dest models.Destination, post StagedPost) (*StageResult, error) {
	switch d := dest.(type) {
	case models.DirectPublishAccount:
		res, err := g.PublishDirect(ctx, d.ID, d.AccessToken, post.ImageURL, post.Caption, post.ScheduledUnix)
		if err != nil {
			return nil, err
		}
		return &StageResult{Platform: models.PlatformDirectPublish, PostID: res.ID, Raw: res.Raw}, nil
	case models.TwoPhasePublishAccount:
		res, err := g.CreateDeferred(ctx, d.ID, d.AccessToken, post.ImageURL, post.Caption)
		if err != nil {
			return nil, err
		}
		return &StageResult{Platform: models.PlatformTwoPhasePublish, CreationID: res.ID, Raw: res.Raw}, nil
	default:
		return nil, configError("unsupported destination %T", dest)
	}
}

func validateTarget(accountID, accessToken string) (string, error) {
	id := strings.TrimSpace(accountID)
	if id == "" || id == "0" {
		return "", &PublishError{Kind: ErrInvalidAccount, Message: fmt.Sprintf("invalid account id %q", accountID)}
	}
	if accessToken == "" {
		return "", configError("missing access token for account %s", id)
	}
	return id, nil
}

func (s *graphService) PublishDirect(ctx context.Context, accountID, accessToken, imageURL, caption string, scheduledUnix int64) (*PublishResult, error) {
	pageID, err := validateTarget(accountID, accessToken)
	if err != nil {
		return nil, err
	}

	if err := s.verifyPage(ctx, pageID, accessToken); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"url", imageURL},
		{"caption", caption},
		{"access_token", accessToken},
		{"published", "false"},
		{"scheduled_publish_time", strconv.FormatInt(scheduledUnix, 10)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var resp transfer.GraphIDResponse
	var raw string
	status, err := s.do(ctx, requests.
		URL(s.baseURL+"/"+url.PathEscape(pageID)+"/photos").
		Method(http.MethodPost).
		BodyReader(&body).
		ContentType(mw.FormDataContentType()), &resp, &raw)

	id, err := s.interpret(ctx, "publish direct", status, &resp, err)
	if err != nil {
		return nil, err
	}
	slog.Info("scheduled direct post", "account_id", pageID, "post_id", id, "scheduled_unix", scheduledUnix)
	return &PublishResult{ID: id, Raw: raw}, nil
}

// verifyPage confirms the token can see the page before we upload to it.
// Only transport failures are retried.
func (s *graphService) verifyPage(ctx context.Context, pageID, accessToken string) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = s.fetchPage(ctx, pageID, accessToken)
			return lastErr
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("retrying page verification", "account_id", pageID, "attempt", n+1, "error", err)
		}),
	)
	if err == nil {
		return nil
	}
	var pe *PublishError
	if errors.As(lastErr, &pe) {
		return pe
	}
	if lastErr == nil {
		lastErr = err
	}
	return s.transportError(ctx, "verify page", lastErr)
}

func (s *graphService) fetchPage(ctx context.Context, pageID, accessToken string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var info transfer.GraphPageInfo
	var status int
	err := requests.
		URL(s.baseURL+"/"+url.PathEscape(pageID)).
		Client(s.client).
		Param("fields", "id,name").
		Param("access_token", accessToken).
		AddValidator(func(res *http.Response) error {
			status = res.StatusCode
			return nil
		}).
		ToJSON(&info).
		Fetch(ctx)
	if err != nil {
		if status != 0 {
			return retry.Unrecoverable(rejected("verify page %s: %v", pageID, err))
		}
		return err
	}
	if info.Error != nil {
		return retry.Unrecoverable(ClassifyGraphError(info.Error))
	}
	if status >= 300 || info.ID == "" {
		return retry.Unrecoverable(rejected("invalid page access for %s (status %d)", pageID, status))
	}
	return nil
}

func (s *graphService) CreateDeferred(ctx context.Context, accountID, accessToken, imageURL, caption string) (*PublishResult, error) {
	igUserID, err := validateTarget(accountID, accessToken)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("image_url", imageURL)
	form.Set("caption", caption)
	form.Set("access_token", accessToken)
	form.Set("is_published", "false")

	var resp transfer.GraphIDResponse
	var raw string
	status, err := s.do(ctx, requests.
		URL(s.baseURL+"/"+url.PathEscape(igUserID)+"/media").
		Method(http.MethodPost).
		BodyForm(form), &resp, &raw)

	id, err := s.interpret(ctx, "create media container", status, &resp, err)
	if err != nil {
		return nil, err
	}
	slog.Info("created media container", "account_id", igUserID, "creation_id", id)
	return &PublishResult{ID: id, Raw: raw}, nil
}

func (s *graphService) PublishDeferred(ctx context.Context, accountID, accessToken, creationID string) (*PublishResult, error) {
	igUserID, err := validateTarget(accountID, accessToken)
	if err != nil {
		return nil, err
	}
	if creationID == "" {
		return nil, configError("missing creation id for account %s", igUserID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("creation_id", creationID)
	form.Set("access_token", accessToken)

	var resp transfer.GraphIDResponse
	var raw string
	status, err := s.do(ctx, requests.
		URL(s.baseURL+"/"+url.PathEscape(igUserID)+"/media_publish").
		Method(http.MethodPost).
		BodyForm(form), &resp, &raw)

	id, err := s.interpret(ctx, "publish media", status, &resp, err)
	if err != nil {
		return nil, err
	}
	return &PublishResult{ID: id, Raw: raw}, nil
}

// DeleteScheduled removes a scheduled post from the provider.
func (s *graphService) DeleteScheduled(ctx context.Context, postID, accessToken string) error {
	if postID == "" {
		return configError("missing post id")
	}
	if accessToken == "" {
		return configError("missing access token for post %s", postID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var resp transfer.GraphIDResponse
	var raw string
	status, err := s.do(ctx, requests.
		URL(s.baseURL+"/"+url.PathEscape(postID)).
		Method(http.MethodDelete).
		Param("access_token", accessToken), &resp, &raw)
	if err != nil {
		return s.transportError(ctx, "delete post", err)
	}
	if resp.Error != nil {
		return ClassifyGraphError(resp.Error)
	}
	if status >= 300 {
		return rejected("delete post %s: status %d", postID, status)
	}
	return nil
}

// do sends the request and decodes the JSON body whatever the status, so
// provider error envelopes reach the classifier.
func (s *graphService) do(ctx context.Context, rb *requests.Builder, out *transfer.GraphIDResponse, raw *string) (int, error) {
	var status int
	var body string
	err := rb.
		Client(s.client).
		AddValidator(func(res *http.Response) error {
			status = res.StatusCode
			return nil
		}).
		ToString(&body).
		Fetch(ctx)
	*raw = body
	if err != nil {
		return status, err
	}
	if strings.TrimSpace(body) == "" {
		return status, nil
	}
	if err := decodeJSON(body, out); err != nil {
		return status, fmt.Errorf("decode response (status %d): %w", status, err)
	}
	return status, nil
}

func (s *graphService) interpret(ctx context.Context, op string, status int, resp *transfer.GraphIDResponse, err error) (string, error) {
	if err != nil {
		return "", s.transportError(ctx, op, err)
	}
	if resp.Error != nil {
		return "", ClassifyGraphError(resp.Error)
	}
	if status >= 300 {
		return "", rejected("%s: status %d", op, status)
	}
	id := resp.ID
	if id == "" {
		id = resp.PostID
	}
	if id == "" {
		return "", rejected("%s: no identifier returned", op)
	}
	return id, nil
}

func (s *graphService) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return rejected("%s: timed out after %s", op, s.timeout)
	}
	return rejected("%s: %v", op, err)
}
