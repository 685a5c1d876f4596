package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	cfg "github.com/markdave123-py/contexta-etl/internal/config"
	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/logger"
)

const module = "object-client"

// S3Client implements core.ObjectClient on S3 or any S3-compatible store.
// Uploads and downloads go through the transfer manager in parts, so objects
// are never held in memory whole.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	log        logger.ILogger
}

var _ core.ObjectClient = (*S3Client)(nil)

// NewS3Client builds a client from config. Static keys are used when both are
// set; otherwise the default AWS credential chain applies. S3_ENDPOINT points
// the client at a compatible store (MinIO, localstack) with path-style URLs.
func NewS3Client(ctx context.Context, cfg *cfg.Config, log logger.ILogger) (*S3Client, error) {
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info(module, "s3 client ready", map[string]interface{}{"region": cfg.AwsRegion, "endpoint": cfg.S3Endpoint})

	return &S3Client{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		log:        log,
	}, nil
}

// Upload streams body to bucket/key. Without overwrite an existing object is
// left alone and core.ErrObjectExists is returned.
func (c *S3Client) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string, overwrite bool) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	if !overwrite {
		exists, err := c.exists(ctx, bucket, key)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: s3://%s/%s", core.ErrObjectExists, bucket, key)
		}
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		if errorCode(err) == "PreconditionFailed" {
			return fmt.Errorf("%w: s3://%s/%s", core.ErrObjectExists, bucket, key)
		}
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

// Download fetches bucket/key into dst using concurrent ranged GETs.
func (c *S3Client) Download(ctx context.Context, bucket, key string, dst io.WriterAt) (int64, error) {
	n, err := c.downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, wrapGetError(bucket, key, err)
	}
	return n, nil
}

func (c *S3Client) exists(ctx context.Context, bucket, key string) (bool, error) {
	ctxHead, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.HeadObject(ctxHead, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head failed: %w", err)
}

func wrapGetError(bucket, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: s3://%s/%s", core.ErrObjectNotFound, bucket, key)
	}
	return fmt.Errorf("s3 get failed: %w", err)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	switch errorCode(err) {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
