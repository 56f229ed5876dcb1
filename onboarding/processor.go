package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/ruteri/device-onboarding-backend/metrics"
	"golang.org/x/sync/errgroup"
)

// FetchError reports that a record could not be read from its source.
type FetchError struct {
	Location interfaces.RecordLocation
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Location, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RecordHandle is a fetched record. The source object stays in place until
// Release is called.
type RecordHandle struct {
	source interfaces.RecordSource
	loc    interfaces.RecordLocation
	data   []byte

	mu       sync.Mutex
	released bool
}

// Acquire fetches the record at loc.
func Acquire(ctx context.Context, source interfaces.RecordSource, loc interfaces.RecordLocation) (*RecordHandle, error) {
	data, err := source.Fetch(ctx, loc)
	if err != nil {
		return nil, &FetchError{Location: loc, Err: err}
	}
	return &RecordHandle{source: source, loc: loc, data: data}, nil
}

// Bytes returns the raw record.
func (h *RecordHandle) Bytes() []byte {
	return h.data
}

// Location returns where the record was fetched from.
func (h *RecordHandle) Location() interfaces.RecordLocation {
	return h.loc
}

// Release deletes the source record. Only call it for a completed
// onboarding. After one successful call further calls do nothing.
func (h *RecordHandle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	if err := h.source.Delete(ctx, h.loc); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", h.loc, err)
	}
	h.released = true
	return nil
}

// Processor fetches records from a source, onboards them, and deletes the
// ones that completed.
type Processor struct {
	workflow *Workflow
	source   interfaces.RecordSource
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewProcessor creates a processor. m may be nil.
func NewProcessor(workflow *Workflow, source interfaces.RecordSource, log *slog.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		workflow: workflow,
		source:   source,
		log:      log,
		metrics:  m,
	}
}

// Process onboards the record at loc. The result is never nil. The error
// is the fetch failure, or the deletion failure of a completed record;
// workflow failures are reported in the result only.
func (p *Processor) Process(ctx context.Context, loc interfaces.RecordLocation) (*Result, error) {
	log := p.log.With(slog.String("source", p.source.Name()), slog.String("location", loc.String()))

	handle, err := Acquire(ctx, p.source, loc)
	if err != nil {
		log.Error("Failed to fetch record", "err", err)
		res := (&Result{Location: loc, State: StateReceived}).fail(err)
		return res, err
	}

	res := p.workflow.Run(ctx, handle.Bytes())
	res.Location = loc

	if !res.Completed() {
		log.Info("Record preserved",
			slog.String("state", string(res.State)),
			slog.String("failed_at", string(res.FailedAt)),
			slog.Bool("retryable", res.Retryable()))
		return res, nil
	}

	err = handle.Release(ctx)
	p.metrics.RecordDeletion(err)
	if err != nil {
		// The identity is provisioned; a redelivered record converges on
		// the same identity and is deleted then.
		log.Error("Failed to delete completed record", "err", err)
		res.DeleteErr = err
		return res, err
	}

	log.Debug("Deleted completed record")
	return res, nil
}

// ProcessAll onboards independent records concurrently, bounded by the
// configured concurrency. Results are in the order of locs.
func (p *Processor) ProcessAll(ctx context.Context, locs []interfaces.RecordLocation) []*Result {
	batch := uuid.NewString()
	p.log.Info("Processing records", slog.String("batch", batch), slog.Int("count", len(locs)))

	results := make([]*Result, len(locs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workflow.cfg.Concurrency)
	for i, loc := range locs {
		i, loc := i, loc
		g.Go(func() error {
			results[i], _ = p.Process(gctx, loc)
			return nil
		})
	}
	_ = g.Wait()

	completed := 0
	for _, res := range results {
		if res.Completed() {
			completed++
		}
	}
	p.log.Info("Processed records",
		slog.String("batch", batch),
		slog.Int("count", len(locs)),
		slog.Int("completed", completed))

	return results
}
