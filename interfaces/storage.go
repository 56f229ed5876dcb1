package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// RecordLocation addresses one production record in a record source.
// Container is the bucket (S3) or sub-directory (file source).
type RecordLocation struct {
	Container string `json:"bucket"`
	Key       string `json:"key"`
}

// ParseRecordLocation accepts either "s3://container/key" or "container/key".
func ParseRecordLocation(raw string) (RecordLocation, error) {
	rest := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return RecordLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
		}
		rest = u.Host + u.Path
	}

	container, key, found := strings.Cut(strings.TrimPrefix(rest, "/"), "/")
	if !found {
		return RecordLocation{}, fmt.Errorf("%w: expected container/key, got %q", ErrInvalidLocation, raw)
	}

	loc := RecordLocation{Container: container, Key: key}
	if err := loc.Validate(); err != nil {
		return RecordLocation{}, err
	}
	return loc, nil
}

// Validate checks that both parts of the location are present.
func (loc RecordLocation) Validate() error {
	if loc.Container == "" || loc.Key == "" {
		return fmt.Errorf("%w: container and key are required", ErrInvalidLocation)
	}
	return nil
}

// String returns container/key.
func (loc RecordLocation) String() string {
	return loc.Container + "/" + loc.Key
}

var (
	// ErrRecordNotFound is returned when the requested record does not exist in the source.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidLocation is returned for malformed record locations.
	ErrInvalidLocation = errors.New("invalid record location")

	// ErrInvalidSourceURI is returned when a record source URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[/path][?params]
	ErrInvalidSourceURI = errors.New("invalid record source URI")
)

// RecordSource supplies signed production records.
type RecordSource interface {
	// Fetch retrieves the raw record bytes.
	Fetch(ctx context.Context, loc RecordLocation) ([]byte, error)

	// Delete removes the record. Callers invoke it only after onboarding completed.
	Delete(ctx context.Context, loc RecordLocation) error

	// Name returns identifier for logging.
	Name() string
}
