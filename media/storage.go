// Package media stores uploaded binaries (video files, thumbnails,
// avatars, cover images) in a MinIO bucket and hands back the URL plus
// the object key used for later deletion.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object identifies a stored binary: the browser-facing URL and the
// opaque key a later delete uses.
type Object struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Store is the media-host surface handlers depend on.
type Store interface {
	Upload(ctx context.Context, folder string, r io.Reader, size int64, contentType, filename string) (Object, error)
	Remove(ctx context.Context, key string) error
}

// Storage is the MinIO-backed Store.
type Storage struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and ensures the bucket exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to minio: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Storage{client: client, bucket: bucket}, nil
}

// Upload streams one file into the bucket under folder/<uuid><ext>.
func (s *Storage) Upload(ctx context.Context, folder string, r io.Reader, size int64, contentType, filename string) (Object, error) {
	key := folder + "/" + uuid.New().String() + extensionFor(contentType, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return Object{}, err
	}
	return Object{URL: objectURL(s.bucket, key), Key: key}, nil
}

// Remove deletes a stored object. A blank key is a no-op so callers can
// pass the key column unconditionally.
func (s *Storage) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// objectURL builds the browser-facing URL for an object.
// path = "/storage/{bucket}/{key}" which nginx rewrites to /{bucket}/{key}
// and MinIO resolves as bucket + object-key.
func objectURL(bucket, key string) string {
	return "/storage/" + bucket + "/" + key
}

func extensionFor(contentType, filename string) string {
	if ext := filepath.Ext(filename); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
