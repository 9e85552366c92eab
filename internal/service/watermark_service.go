package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dgraph-io/ristretto"
	"github.com/h2non/filetype"
	config "github.com/maheshrc27/postflow/configs"
)

const watermarkCacheTTL = 10 * time.Minute

var ErrNotAnImage = errors.New("watermark must be a jpeg or png image")

type WatermarkService interface {
	// Resolve returns the public overlay url for the account, or "" if it
	// has none.
	Resolve(ctx context.Context, accountID string) (string, error)
	Upload(ctx context.Context, accountID string, data []byte) (string, error)
}

// ObjectStore is the part of the S3 API the watermark store needs.
type ObjectStore interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type watermarkService struct {
	store     ObjectStore
	bucket    string
	publicURL string
	cache     *ristretto.Cache
}

func NewWatermarkService(store ObjectStore, bucket, publicURL string) (WatermarkService, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &watermarkService{
		store:     store,
		bucket:    bucket,
		publicURL: publicURL,
		cache:     cache,
	}, nil
}

// R2Client builds an S3 client for the configured Cloudflare R2 bucket.
func R2Client(ctx context.Context, r2 config.R2) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID))
	}), nil
}

func watermarkKey(accountID string) string {
	return "watermarks/" + accountID + ".jpg"
}

func (w *watermarkService) objectURL(key string) string {
	return w.publicURL + "/" + key
}

func (w *watermarkService) Resolve(ctx context.Context, accountID string) (string, error) {
	if accountID == "" {
		return "", nil
	}
	if v, ok := w.cache.Get(accountID); ok {
		return v.(string), nil
	}

	key := watermarkKey(accountID)
	_, err := w.store.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
	})

	url := ""
	if err != nil {
		var nf *types.NotFound
		if !errors.As(err, &nf) {
			slog.Info(err.Error())
			return "", err
		}
	} else {
		url = w.objectURL(key)
	}

	w.cache.SetWithTTL(accountID, url, 1, watermarkCacheTTL)
	w.cache.Wait()
	return url, nil
}

func (w *watermarkService) Upload(ctx context.Context, accountID string, data []byte) (string, error) {
	if accountID == "" {
		return "", &PublishError{Kind: ErrInvalidAccount, Message: "missing account id"}
	}

	kind, err := filetype.Match(data)
	if err != nil {
		return "", err
	}
	if kind.MIME.Value != "image/jpeg" && kind.MIME.Value != "image/png" {
		return "", ErrNotAnImage
	}

	key := watermarkKey(accountID)
	_, err = w.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.MIME.Value),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	url := w.objectURL(key)
	w.cache.SetWithTTL(accountID, url, 1, watermarkCacheTTL)
	w.cache.Wait()
	return url, nil
}

type noopWatermarkService struct{}

// NewNoopWatermarkService is used when no bucket is configured.
func NewNoopWatermarkService() WatermarkService {
	return noopWatermarkService{}
}

func (noopWatermarkService) Resolve(context.Context, string) (string, error) {
	return "", nil
}

func (noopWatermarkService) Upload(context.Context, string, []byte) (string, error) {
	return "", configError("watermark storage is not configured")
}
