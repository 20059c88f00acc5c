package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/eventos/internal/config"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
	"github.com/Togather-Foundation/eventos/internal/storage/files"
)

type fakeBucket struct {
	mu          sync.Mutex
	objects     map[string][]byte
	contentType map[string]string
	putErr      error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (b *fakeBucket) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if b.putErr != nil {
		return nil, b.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := aws.ToString(in.Key)
	b.objects[key] = body
	b.contentType[key] = aws.ToString(in.ContentType)
	return &awss3.PutObjectOutput{}, nil
}

func (b *fakeBucket) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func newTestStore(t *testing.T) (*Store, *fakeBucket) {
	t.Helper()
	layout, err := files.NewLayout("/midias", map[media.Class]string{
		media.ClassCover:    "capa",
		media.ClassVideo:    "video",
		media.ClassCarousel: "carrossel",
	})
	require.NoError(t, err)
	bucket := newFakeBucket()
	return newStore(bucket, "eventos-media", layout, zerolog.Nop()), bucket
}

func stage(t *testing.T, name, body string) media.StagedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return media.StagedFile{Path: path, Filename: name, SizeBytes: int64(len(body))}
}

func TestPromoteUploadsAndRemovesStagedFile(t *testing.T) {
	store, bucket := newTestStore(t)
	file := stage(t, "promo.mp4", "video bytes")

	url, err := store.Promote(context.Background(), file, media.ClassVideo)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/midias/video/"), url)

	key := strings.TrimPrefix(url, "/midias/")
	assert.Equal(t, []byte("video bytes"), bucket.objects[key])
	assert.Equal(t, "video/mp4", bucket.contentType[key])

	_, err = os.Stat(file.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPromoteFailureKeepsStagedFile(t *testing.T) {
	store, bucket := newTestStore(t)
	bucket.putErr = errors.New("access denied")
	file := stage(t, "capa.png", "png")

	_, err := store.Promote(context.Background(), file, media.ClassCover)
	require.ErrorContains(t, err, "access denied")

	_, statErr := os.Stat(file.Path)
	assert.NoError(t, statErr, "caller still owns the staged file")
}

func TestRemoveDeletesObject(t *testing.T) {
	store, bucket := newTestStore(t)
	url, err := store.Promote(context.Background(), stage(t, "a.jpg", "jpg"), media.ClassCarousel)
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), url))
	assert.Empty(t, bucket.objects)

	assert.NoError(t, store.Remove(context.Background(), url))
	assert.ErrorIs(t, store.Remove(context.Background(), "https://elsewhere/a.jpg"), files.ErrOutsideLayout)
}

func TestNewRequiresBucket(t *testing.T) {
	layout, err := files.NewLayout("/midias", map[media.Class]string{
		media.ClassCover: "capa", media.ClassVideo: "video", media.ClassCarousel: "carrossel",
	})
	require.NoError(t, err)

	_, err = New(context.Background(), config.S3Config{Region: "us-east-1"}, layout, zerolog.Nop())
	assert.ErrorContains(t, err, "bucket")
}
