package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
)

type fakePutter struct {
	bucket, object, contentType string
	body                        string
	err                         error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, object string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	b, _ := io.ReadAll(r)
	f.bucket, f.object, f.contentType, f.body = bucket, object, opts.ContentType, string(b)
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func TestValidateAvatar(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		size    int64
		want    string
		wantErr bool
	}{
		{"png", "me.png", 10, "png", false},
		{"upper case", "ME.JPEG", 10, "jpeg", false},
		{"webp", "a.b.webp", MaxAvatarSize, "webp", false},
		{"too big", "me.png", MaxAvatarSize + 1, "", true},
		{"bad suffix", "me.gif", 10, "", true},
		{"no suffix", "avatar", 10, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAvatar(tt.file, tt.size)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.CodeParams), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpload(t *testing.T) {
	putter := &fakePutter{}
	store := NewAvatarStore(putter, "avatars", "http://cdn.local/")

	url, err := store.Upload(context.Background(), 7, "me.svg", 3, strings.NewReader("svg"))
	require.NoError(t, err)
	assert.Equal(t, "avatars", putter.bucket)
	assert.True(t, strings.HasPrefix(putter.object, "avatar/7/"))
	assert.True(t, strings.HasSuffix(putter.object, ".svg"))
	assert.Equal(t, "image/svg+xml", putter.contentType)
	assert.Equal(t, "svg", putter.body)
	assert.Equal(t, "http://cdn.local/avatars/"+putter.object, url)
}

func TestUpload_ContentTypeFollowsSuffix(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"me.png", "image/png"},
		{"me.JPG", "image/jpeg"},
		{"me.webp", "image/webp"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			putter := &fakePutter{}
			store := NewAvatarStore(putter, "avatars", "http://cdn.local")
			_, err := store.Upload(context.Background(), 7, tt.file, 5, strings.NewReader("<html"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, putter.contentType)
		})
	}
}

func TestUpload_Failures(t *testing.T) {
	putter := &fakePutter{}
	store := NewAvatarStore(putter, "avatars", "http://cdn.local")

	_, err := store.Upload(context.Background(), 7, "me.exe", 3, strings.NewReader("bin"))
	assert.True(t, apperr.Is(err, apperr.CodeParams))
	assert.Empty(t, putter.object, "invalid files are never uploaded")

	putter.err = errors.New("connection refused")
	_, err = store.Upload(context.Background(), 7, "me.png", 3, strings.NewReader("png"))
	require.Error(t, err)
	assert.False(t, apperr.Is(err, apperr.CodeParams))
}

func TestObjectName_Unique(t *testing.T) {
	assert.NotEqual(t, ObjectName(1, "png"), ObjectName(1, "png"))
}
