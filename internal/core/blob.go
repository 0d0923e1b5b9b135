package core

//go:generate mockgen -destination=mocks/blob_mock.go -package=mocks github.com/dkeye/CoStudy/internal/core BlobStorage

import "context"

// BlobStorage uploads bytes under path and returns the public URL.
type BlobStorage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}
