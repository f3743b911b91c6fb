package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"shoplake/internal/config"
)

var _ ObjectStore = (*S3Store)(nil)

// s3MaxRetries bounds the exponential backoff on transient upload failures.
const s3MaxRetries = 3

// S3Store uploads lake files to an S3-compatible bucket. Custom endpoints
// use path-style addressing.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an uploader from static credentials in config.
func NewS3Store(cfg *config.Config) (*S3Store, error) {
	if !cfg.HasS3Config() {
		return nil, fmt.Errorf("S3 config is incomplete")
	}

	opts := s3.Options{
		Region: *cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			*cfg.S3KeyID, *cfg.S3Secret, "",
		),
	}
	if cfg.S3Endpoint != nil {
		opts.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", *cfg.S3Endpoint))
		opts.UsePathStyle = true
	}

	return &S3Store{
		client: s3.New(opts),
		bucket: *cfg.S3Bucket,
	}, nil
}

// Put uploads one object, retrying transient failures with backoff.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader) error {
	var lastErr error
	for attempt := 0; attempt <= s3MaxRetries; attempt++ {
		if attempt > 0 {
			if seeker, ok := body.(io.Seeker); ok {
				if _, err := seeker.Seek(0, io.SeekStart); err != nil {
					return fmt.Errorf("rewind body: %w", err)
				}
			} else {
				return lastErr
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}
		_, lastErr = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   body,
		})
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("put s3://%s/%s after %d attempts: %w", s.bucket, key, s3MaxRetries+1, lastErr)
}

func (s *S3Store) Name() string { return "s3://" + s.bucket }
