// Package storage uploads avatar images to a MinIO (S3 compatible) bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
)

// MaxAvatarSize is the largest accepted avatar, 1 MiB.
const MaxAvatarSize = 1 << 20

var allowedSuffixes = map[string]string{
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
}

// ObjectPutter is the part of *minio.Client the store needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL prefixes returned object URLs. Defaults to the endpoint.
	PublicURL string
}

type MinioAvatarStore struct {
	client    ObjectPutter
	bucket    string
	publicURL string
}

// NewMinioAvatarStore connects to MinIO and creates the bucket if it is missing.
func NewMinioAvatarStore(ctx context.Context, opts Options) (*MinioAvatarStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", opts.Bucket, err)
		}
	}

	publicURL := opts.PublicURL
	if publicURL == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + opts.Endpoint
	}
	return NewAvatarStore(client, opts.Bucket, publicURL), nil
}

func NewAvatarStore(client ObjectPutter, bucket, publicURL string) *MinioAvatarStore {
	return &MinioAvatarStore{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

// Upload validates the file, stores it under a fresh object name and returns its URL.
// The stored content type always follows the validated suffix.
func (s *MinioAvatarStore) Upload(ctx context.Context, userID int64, fileName string, size int64, body io.Reader) (string, error) {
	suffix, err := ValidateAvatar(fileName, size)
	if err != nil {
		return "", err
	}

	object := ObjectName(userID, suffix)
	if _, err := s.client.PutObject(ctx, s.bucket, object, body, size, minio.PutObjectOptions{
		ContentType: allowedSuffixes[suffix],
	}); err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", object, err)
	}
	return s.publicURL + "/" + s.bucket + "/" + object, nil
}

// ValidateAvatar checks the size limit and the file suffix, returning the
// lower-cased suffix.
func ValidateAvatar(fileName string, size int64) (string, error) {
	if size > MaxAvatarSize {
		return "", apperr.Params("file size must not exceed 1M")
	}
	suffix := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if _, ok := allowedSuffixes[suffix]; !ok {
		return "", apperr.Params("unsupported file type")
	}
	return suffix, nil
}

func ObjectName(userID int64, suffix string) string {
	return "avatar/" + strconv.FormatInt(userID, 10) + "/" + uuid.NewString() + "." + suffix
}
