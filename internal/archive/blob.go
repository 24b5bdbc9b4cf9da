package archive

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Blob is the remote object store used to back up credential bundles.
// Upload returns an opaque reference that Download resolves later; both are
// fallible and retryable at the caller's discretion.
type Blob interface {
	Upload(ctx context.Context, name string, r io.Reader) (ref string, err error)
	Download(ctx context.Context, ref string) ([]byte, error)
}

// GCSBlob stores credential blobs in a Google Cloud Storage bucket. The
// reference is the object name within the bucket.
type GCSBlob struct {
	client *storage.Client
	bucket string
}

func NewGCSBlob(ctx context.Context, bucket, credentialFile string) (*GCSBlob, error) {
	var opts []option.ClientOption
	if credentialFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSBlob{client: client, bucket: bucket}, nil
}

func (g *GCSBlob) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	obj := g.client.Bucket(g.bucket).Object(name)
	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to copy blob %s to bucket %s: %w", name, g.bucket, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}
	return name, nil
}

func (g *GCSBlob) Download(ctx context.Context, ref string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(ref).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s in bucket %s: %w", ref, g.bucket, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}
	return data, nil
}
