package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS stores blobs in a Google Cloud Storage bucket under an optional prefix.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCS(client *storage.Client, bucket, prefix string) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs storage requires client")
	}
	if bucket == "" {
		return nil, fmt.Errorf("gcs storage requires bucket")
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCS) objectName(path string) (string, string, error) {
	p, err := CleanPath(path)
	if err != nil {
		return "", "", err
	}
	if s.prefix == "" {
		return p, p, nil
	}
	return p, s.prefix + "/" + p, nil
}

func (s *GCS) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	p, name, err := s.objectName(path)
	if err != nil {
		return "", err
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs object: %w", err)
	}
	return p, nil
}

func (s *GCS) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	_, name, err := s.objectName(path)
	if err != nil {
		return "", err
	}
	if _, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("gcs object attrs: %w", err)
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(name, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign gcs url: %w", err)
	}
	return u, nil
}

// Check verifies the bucket is reachable and the prefix is listable.
func (s *GCS) Check(ctx context.Context) error {
	bkt := s.client.Bucket(s.bucket)
	if _, err := bkt.Attrs(ctx); err != nil {
		return fmt.Errorf("bucket attrs: %w", err)
	}
	it := bkt.Objects(ctx, &storage.Query{Prefix: s.prefix})
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("list prefix: %w", err)
	}
	return nil
}
