// Package supabase uploads room thumbnails to a Supabase storage bucket.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dkeye/CoStudy/internal/core"
	storage "github.com/supabase-community/storage-go"
)

// objectClient is the part of the storage client the adapter uses.
type objectClient interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storage.FileOptions) (storage.FileUploadResponse, error)
	GetPublicUrl(bucketID, filePath string, urlOptions ...storage.UrlOptions) storage.SignedUrlResponse
}

type Storage struct {
	client objectClient
	bucket string
}

var _ core.BlobStorage = (*Storage)(nil)

// New builds a client for <projectURL>/storage/v1 with the service key.
func New(projectURL, key, bucket string) (*Storage, error) {
	if projectURL == "" || key == "" || bucket == "" {
		return nil, errors.New("supabase: url, key and bucket are required")
	}
	c := storage.NewClient(strings.TrimRight(projectURL, "/")+"/storage/v1", key, nil)
	return &Storage{client: c, bucket: bucket}, nil
}

// Upload overwrites the object at path and returns its public URL.
func (s *Storage) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upsert := true
	opts := storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}
	if _, err := s.client.UploadFile(s.bucket, path, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("supabase: upload %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	url := s.client.GetPublicUrl(s.bucket, path).SignedURL
	if url == "" {
		return "", fmt.Errorf("supabase: no public url for %s", path)
	}
	return url, nil
}
