// Package assets stores images uploaded for Image and Hero nodes in an
// S3-compatible bucket.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxSize is the largest accepted upload.
const MaxSize = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported asset content type")
	ErrTooLarge        = errors.New("asset exceeds size limit")
	ErrEmpty           = errors.New("asset is empty")
)

var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// Object describes a stored asset.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Store struct {
	client *minio.Client
	bucket string
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload stores the image under a key scoped to the tenant and page. id
// must be unique; the extension follows the content type.
func (s *Store) Upload(ctx context.Context, tenantID, pageID, id string, r io.Reader, size int64, contentType string) (Object, error) {
	if err := Check(contentType, size); err != nil {
		return Object{}, err
	}
	key, err := ObjectKey(tenantID, pageID, id, contentType)
	if err != nil {
		return Object{}, err
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return Object{
		Key:         key,
		URL:         s.URL(key),
		ContentType: contentType,
		Size:        info.Size,
	}, nil
}

// Remove deletes a stored object.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// URL is the public address of key.
func (s *Store) URL(key string) string {
	endpoint := s.client.EndpointURL()
	return strings.TrimRight(endpoint.String(), "/") + "/" + s.bucket + "/" + key
}

// Check validates an upload before anything is written.
func Check(contentType string, size int64) error {
	if _, ok := extensions[contentType]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if size <= 0 {
		return ErrEmpty
	}
	if size > MaxSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	return nil
}

// ObjectKey returns tenant/page/id.ext. Path separators in the parts are
// rejected so a key can never escape its prefix.
func ObjectKey(tenantID, pageID, id, contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	for _, part := range []string{tenantID, pageID, id} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid object key part %q", part)
		}
	}
	return path.Join(tenantID, pageID, id+ext), nil
}

// Sniff returns the content type of an upload from its first bytes. SVG is
// text to the sniffer, so a declared image/svg+xml is trusted when the
// payload looks like XML.
func Sniff(head []byte, declared string) string {
	detected := http.DetectContentType(head)
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	if declared == "image/svg+xml" && (detected == "text/xml" || detected == "text/plain") {
		return declared
	}
	return detected
}
