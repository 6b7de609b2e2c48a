package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/backend"
	"github.com/maheshrc27/postflow/internal/models"
)

// R2Service uploads staged media to Cloudflare R2 and hands back the public
// URL as the post's media reference.
type R2Service struct {
	config cfg.R2

	once   sync.Once
	client *s3.Client
	err    error
}

func NewR2Service(r2 cfg.R2) *R2Service {
	return &R2Service{config: r2}
}

func (r *R2Service) R2Client(ctx context.Context) (*s3.Client, error) {
	r.once.Do(func() {
		awsCfg, err := config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.AccessKey, r.config.SecretKey, "")),
			config.WithRegion("auto"),
		)
		if err != nil {
			slog.Info(err.Error())
			r.err = err
			return
		}

		r.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.AccountID))
		})
	})
	return r.client, r.err
}

func (r *R2Service) Upload(ctx context.Context, asset models.MediaAsset, body io.Reader) (string, error) {
	r2Client, err := r.R2Client(ctx)
	if err != nil {
		return "", err
	}

	key := path.Join("media", asset.StagedRef)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(asset.ContentType),
	}
	if asset.SizeBytes > 0 {
		input.ContentLength = aws.Int64(asset.SizeBytes)
	}

	if _, err := r2Client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return "", classifyR2Error(key, err)
	}

	return r.objectURL(key), nil
}

func (r *R2Service) objectURL(key string) string {
	base := strings.TrimRight(r.config.PublicURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", r.config.AccountID, r.config.BucketName)
	}
	return base + "/" + key
}

// classifyR2Error maps storage failures onto the transport taxonomy so the
// publish retry gate treats them like backend failures.
func classifyR2Error(key string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return &backend.RemoteRejectedError{
			StatusCode: respErr.HTTPStatusCode(),
			Message:    "media upload rejected: " + respErr.Err.Error(),
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &backend.UnreachableError{Op: "PUT r2:" + key, Err: err}
}
