package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// S3Options configures an S3RecordSource.
type S3Options struct {
	Region   string
	Endpoint string

	// PathStyle addresses buckets as endpoint/bucket, needed by most
	// S3-compatible stores.
	PathStyle bool

	// AccessKey and SecretKey select static credentials. When empty the
	// default AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// S3RecordSource reads production records from Amazon S3 or a compatible service.
// The bucket is taken from each record location, so one source serves every
// bucket the credentials can reach.
type S3RecordSource struct {
	client *s3.S3
	opts   S3Options
	log    *slog.Logger
}

// NewS3RecordSource creates a new S3 record source.
func NewS3RecordSource(opts S3Options, log *slog.Logger) (*S3RecordSource, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	cfg := aws.NewConfig().WithRegion(opts.Region)
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint)
	}
	if opts.PathStyle {
		cfg = cfg.WithS3ForcePathStyle(true)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""))
	} else {
		log.Debug("No static S3 credentials, using the default credential chain")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3RecordSource{
		client: s3.New(sess),
		opts:   opts,
		log:    log,
	}, nil
}

// Fetch retrieves the record object.
// Returns ErrRecordNotFound if the object doesn't exist.
func (s *S3RecordSource) Fetch(ctx context.Context, loc interfaces.RecordLocation) ([]byte, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Container),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		if isS3NotFound(err) {
			s.log.Debug("Record not found in S3",
				slog.String("bucket", loc.Container),
				slog.String("key", loc.Key),
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, loc)
		}

		s.log.Error("Failed to get object from S3",
			slog.String("bucket", loc.Container),
			slog.String("key", loc.Key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	s.log.Debug("Fetched record from S3",
		slog.String("bucket", loc.Container),
		slog.String("key", loc.Key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Delete removes the record object. Deleting a missing object succeeds.
func (s *S3RecordSource) Delete(ctx context.Context, loc interfaces.RecordLocation) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Container),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	s.log.Debug("Deleted record from S3",
		slog.String("bucket", loc.Container),
		slog.String("key", loc.Key))
	return nil
}

// Name returns a unique identifier for this record source.
func (s *S3RecordSource) Name() string {
	if s.opts.Endpoint != "" {
		return fmt.Sprintf("s3-%s", s.opts.Endpoint)
	}
	return fmt.Sprintf("s3-%s", s.opts.Region)
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
		return true
	}
	return false
}
