package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"moviecatalog/config"
)

const (
	s3StagingPrefix = "staging/"
	s3PosterPrefix  = "posters/"
)

// s3API is the subset of *s3.Client the store calls.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps posters in an S3-compatible bucket. Staged uploads live
// under staging/, published posters under posters/.
type S3Store struct {
	client s3API
	bucket string
	log    *zap.Logger
}

func NewS3Store(ctx context.Context, cfg *config.S3Config, log *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("bucket %s not reachable: %w", cfg.Bucket, err)
	}

	log.Info("S3 poster store ready",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket))

	return newS3Store(client, cfg.Bucket, log), nil
}

func newS3Store(client s3API, bucket string, log *zap.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, log: log}
}

func (s *S3Store) Stage(ctx context.Context, r io.Reader) (Staged, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(r)
		if err != nil {
			return Staged{}, fmt.Errorf("failed to read upload: %w", err)
		}
		rs = bytes.NewReader(buf)
	}

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return Staged{}, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Staged{}, err
	}
	sniffed, err := mimetype.DetectReader(rs)
	if err != nil {
		return Staged{}, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Staged{}, err
	}

	id := uuid.NewString()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s3StagingPrefix + id),
		Body:          rs,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(sniffed.String()),
	})
	if err != nil {
		return Staged{}, fmt.Errorf("failed to upload staged poster: %w", err)
	}

	return Staged{ID: id, Size: size}, nil
}

// Promote checks for an existing object before copying. S3 offers no
// conditional copy, so two promotes racing for the same key can still
// collide; the unique poster column catches that case on insert.
func (s *S3Store) Promote(ctx context.Context, staged Staged, key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}

	for i := 0; i < maxPromoteAttempts; i++ {
		candidate := withSuffix(key, i)
		exists, err := s.exists(ctx, s3PosterPrefix+candidate)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			CopySource: aws.String(s.bucket + "/" + s3StagingPrefix + staged.ID),
			Key:        aws.String(s3PosterPrefix + candidate),
		})
		if err != nil {
			return "", fmt.Errorf("failed to promote poster %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", ErrKeyTaken
}

func (s *S3Store) exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *S3Store) Discard(ctx context.Context, staged Staged) error {
	if staged.ID == "" {
		return nil
	}
	return s.delete(ctx, s3StagingPrefix+staged.ID)
}

func (s *S3Store) Remove(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	return s.delete(ctx, s3PosterPrefix+key)
}

// delete is idempotent: S3 reports success for missing keys.
func (s *S3Store) delete(ctx context.Context, objectKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	return err
}

func (s *S3Store) Open(ctx context.Context, key string) (*Object, error) {
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3PosterPrefix + key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = contentTypeFor(nil, key)
	}

	return &Object{
		Body:        out.Body,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: contentType,
		ModTime:     aws.ToTime(out.LastModified),
	}, nil
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.walk(ctx, s3PosterPrefix, func(obj types.Object) {
		keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s3PosterPrefix))
	})
	return keys, err
}

func (s *S3Store) ListStaged(ctx context.Context) ([]StagedEntry, error) {
	var staged []StagedEntry
	err := s.walk(ctx, s3StagingPrefix, func(obj types.Object) {
		staged = append(staged, StagedEntry{
			ID:      strings.TrimPrefix(aws.ToString(obj.Key), s3StagingPrefix),
			ModTime: aws.ToTime(obj.LastModified),
		})
	})
	return staged, err
}

func (s *S3Store) walk(ctx context.Context, prefix string, fn func(types.Object)) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			fn(obj)
		}
	}
	return nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
