package supabase

import (
	"context"
	"errors"
	"io"
	"testing"

	storage "github.com/supabase-community/storage-go"
)

type fakeClient struct {
	bucket, path, contentType string
	upsert                    bool
	body                      []byte
	err                       error
}

func (f *fakeClient) UploadFile(bucket, path string, data io.Reader, opts ...storage.FileOptions) (storage.FileUploadResponse, error) {
	f.bucket, f.path = bucket, path
	f.body, _ = io.ReadAll(data)
	if len(opts) > 0 {
		f.contentType = *opts[0].ContentType
		f.upsert = *opts[0].Upsert
	}
	return storage.FileUploadResponse{}, f.err
}

func (f *fakeClient) GetPublicUrl(bucket, path string, _ ...storage.UrlOptions) storage.SignedUrlResponse {
	return storage.SignedUrlResponse{SignedURL: "https://x.supabase.co/storage/v1/object/public/" + bucket + "/" + path}
}

func TestUploadUpsertsAndReturnsPublicURL(t *testing.T) {
	fc := &fakeClient{}
	s := &Storage{client: fc, bucket: "thumbs"}

	url, err := s.Upload(context.Background(), "rooms/r1/1.jpg", []byte{0xff, 0xd8}, "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://x.supabase.co/storage/v1/object/public/thumbs/rooms/r1/1.jpg" {
		t.Fatalf("url = %q", url)
	}
	if fc.bucket != "thumbs" || fc.contentType != "image/jpeg" || !fc.upsert || len(fc.body) != 2 {
		t.Fatalf("upload call = %+v", fc)
	}
}

func TestUploadError(t *testing.T) {
	s := &Storage{client: &fakeClient{err: errors.New("403")}, bucket: "thumbs"}
	if _, err := s.Upload(context.Background(), "p", nil, "image/jpeg"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUploadCancelled(t *testing.T) {
	fc := &fakeClient{}
	s := &Storage{client: fc, bucket: "thumbs"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Upload(ctx, "p", nil, "image/jpeg"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if fc.path != "" {
		t.Fatal("uploaded despite cancelled context")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New("", "k", "b"); err == nil {
		t.Fatal("accepted empty url")
	}
}
