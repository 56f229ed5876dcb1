package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// RecordSourceFactory creates record sources from URI strings.
type RecordSourceFactory struct {
	log *slog.Logger
}

// NewRecordSourceFactory creates a new factory instance.
func NewRecordSourceFactory(logger *slog.Logger) *RecordSourceFactory {
	return &RecordSourceFactory{
		log: logger,
	}
}

// RecordSourceFor creates a record source from a source URI.
// The URI format should be [scheme]://[auth@]host[/path][?params]
//
// Supported schemes:
//   - s3:// - Amazon S3 or compatible object storage
//   - file:// - Local filesystem
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *RecordSourceFactory) RecordSourceFor(sourceURI string) (interfaces.RecordSource, error) {
	u, err := url.Parse(sourceURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidSourceURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		return sf.createS3Source(u)
	case "file":
		return sf.createFileSource(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidSourceURI, u.Scheme)
	}
}

// createS3Source creates an S3 record source.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]/?region=us-west-2&endpoint=http://minio:9000&path_style=true
// Buckets come from record locations, not from the URI.
func (sf *RecordSourceFactory) createS3Source(u *url.URL) (interfaces.RecordSource, error) {
	sf.log.Debug("Creating S3 record source", slog.String("uri", u.Redacted()))

	query := u.Query()
	opts := S3Options{
		Region:   query.Get("region"),
		Endpoint: query.Get("endpoint"),
	}

	if raw := query.Get("path_style"); raw != "" {
		pathStyle, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: path_style: %v", interfaces.ErrInvalidSourceURI, err)
		}
		opts.PathStyle = pathStyle
	}

	if u.User != nil {
		opts.AccessKey = u.User.Username()
		opts.SecretKey, _ = u.User.Password()
		sf.log.Debug("Using embedded S3 credentials")
	}

	return NewS3RecordSource(opts, sf.log)
}

// createFileSource creates a file system record source.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *RecordSourceFactory) createFileSource(u *url.URL) (interfaces.RecordSource, error) {
	sf.log.Debug("Creating file record source", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidSourceURI, u.String())
	}

	return NewFileRecordSource(path, sf.log)
}
