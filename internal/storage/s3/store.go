// Package s3 stores promoted media artifacts in an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/eventos/internal/config"
	"github.com/Togather-Foundation/eventos/internal/domain/events"
	"github.com/Togather-Foundation/eventos/internal/domain/media"
	"github.com/Togather-Foundation/eventos/internal/storage/files"
)

var _ events.ArtifactStore = (*Store)(nil)

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Store uploads artifacts under the layout's class directories as object keys.
type Store struct {
	client objectAPI
	bucket string
	layout files.Layout
	logger zerolog.Logger
}

// New builds a store from the default AWS credential chain. A non-empty endpoint targets an
// S3-compatible service such as MinIO.
func New(ctx context.Context, cfg config.S3Config, layout files.Layout, logger zerolog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var opts []func(*awss3.Options)
	if cfg.Endpoint != "" || cfg.UsePathStyle {
		opts = append(opts, func(o *awss3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.UsePathStyle || cfg.Endpoint != ""
		})
	}
	return newStore(awss3.NewFromConfig(awsCfg, opts...), cfg.Bucket, layout, logger), nil
}

func newStore(client objectAPI, bucket string, layout files.Layout, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		layout: layout,
		logger: logger.With().Str("component", "media_s3").Str("bucket", bucket).Logger(),
	}
}

// Promote uploads the staged file and deletes the local copy once the upload succeeds.
func (s *Store) Promote(ctx context.Context, file media.StagedFile, class media.Class) (string, error) {
	key, url, err := s.layout.Place(file, class)
	if err != nil {
		return "", err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	input := &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(file.SizeBytes),
	}
	if contentType := contentTypeOf(key); contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	if err := files.Discard(file); err != nil {
		s.logger.Warn().Err(err).Str("path", file.Path).Msg("uploaded staged file not removed")
	}
	s.logger.Debug().Str("class", string(class)).Str("key", key).Msg("artifact uploaded")
	return url, nil
}

// Remove deletes the object behind url. S3 deletes are idempotent, so a missing object
// succeeds.
func (s *Store) Remove(ctx context.Context, url string) error {
	key, err := s.layout.Key(url)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

func (s *Store) Discard(file media.StagedFile) error {
	return files.Discard(file)
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".mp4":  "video/mp4",
}

func contentTypeOf(key string) string {
	ext := path.Ext(key)
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}
