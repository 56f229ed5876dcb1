package storage

import (
	"context"
	"log/slog"

	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// ReadOnlyRecordSource serves records from another source but never deletes
// them. Dry runs use it so that records onboarded into a throwaway identity
// service stay available for the real onboarding.
type ReadOnlyRecordSource struct {
	source interfaces.RecordSource
	log    *slog.Logger
}

// NewReadOnlyRecordSource wraps source.
func NewReadOnlyRecordSource(source interfaces.RecordSource, log *slog.Logger) *ReadOnlyRecordSource {
	return &ReadOnlyRecordSource{source: source, log: log}
}

func (s *ReadOnlyRecordSource) Fetch(ctx context.Context, loc interfaces.RecordLocation) ([]byte, error) {
	return s.source.Fetch(ctx, loc)
}

// Delete only logs the deletion that would have happened.
func (s *ReadOnlyRecordSource) Delete(ctx context.Context, loc interfaces.RecordLocation) error {
	s.log.Info("Read-only source, keeping record",
		slog.String("source", s.source.Name()),
		slog.String("location", loc.String()))
	return nil
}

func (s *ReadOnlyRecordSource) Name() string {
	return "readonly-" + s.source.Name()
}
