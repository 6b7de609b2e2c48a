package service

import (
	"context"
	"io"

	"github.com/maheshrc27/postflow/internal/backend"
	"github.com/maheshrc27/postflow/internal/models"
)

// MediaUploader moves a staged file somewhere the backend can read it and
// returns the stable reference to send with the post.
type MediaUploader interface {
	Upload(ctx context.Context, asset models.MediaAsset, body io.Reader) (string, error)
}

type backendUploader struct {
	client *backend.Client
}

// NewBackendUploader uploads through the backend's own /upload endpoint.
func NewBackendUploader(client *backend.Client) MediaUploader {
	return &backendUploader{client: client}
}

func (u *backendUploader) Upload(ctx context.Context, asset models.MediaAsset, body io.Reader) (string, error) {
	name := asset.FileName
	if name == "" {
		name = asset.StagedRef
	}
	out, err := u.client.Upload(ctx, backend.FilePart{FileName: name, ContentType: asset.ContentType, Body: body})
	if err != nil {
		return "", err
	}
	return out.FilePath, nil
}
