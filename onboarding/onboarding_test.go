package onboarding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/device-onboarding-backend/identity"
	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/ruteri/device-onboarding-backend/metrics"
	"github.com/ruteri/device-onboarding-backend/provisioning"
	"github.com/ruteri/device-onboarding-backend/record"
	"github.com/ruteri/device-onboarding-backend/record/recordtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memorySource is an in-memory interfaces.RecordSource.
type memorySource struct {
	mu        sync.Mutex
	records   map[interfaces.RecordLocation][]byte
	deleted   []interfaces.RecordLocation
	deleteErr error
}

func newMemorySource() *memorySource {
	return &memorySource{records: make(map[interfaces.RecordLocation][]byte)}
}

func (s *memorySource) Put(loc interfaces.RecordLocation, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[loc] = data
}

func (s *memorySource) Has(loc interfaces.RecordLocation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[loc]
	return ok
}

func (s *memorySource) Fetch(ctx context.Context, loc interfaces.RecordLocation) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.records[loc]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return data, nil
}

func (s *memorySource) Delete(ctx context.Context, loc interfaces.RecordLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.records, loc)
	s.deleted = append(s.deleted, loc)
	return nil
}

func (s *memorySource) Name() string {
	return "memory"
}

type fixture struct {
	producer *recordtest.Producer
	svc      *identity.MemoryService
	source   *memorySource
	workflow *Workflow
	proc     *Processor
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, policy record.IdentityPolicy) *fixture {
	producer := recordtest.NewProducer(t)

	verifier, err := record.NewVerifier(producer.PublicKey())
	require.NoError(t, err)
	extractor, err := record.NewClaimExtractor(policy)
	require.NoError(t, err)

	svc := identity.NewMemoryService()
	m := metrics.NewMetrics("onboarding_test")

	cfg := DefaultConfig()
	cfg.GroupName = "fleet"
	cfg.IdentityPolicy = policy

	workflow, err := NewWorkflow(cfg, verifier, extractor, provisioning.New(svc, testLogger()), testLogger(), m)
	require.NoError(t, err)

	source := newMemorySource()
	return &fixture{
		producer: producer,
		svc:      svc,
		source:   source,
		workflow: workflow,
		proc:     NewProcessor(workflow, source, testLogger(), m),
		metrics:  m,
	}
}

func TestWorkflow_EndToEnd(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)
	raw, _ := f.producer.DeviceRecord(t, "DEV123")

	res := f.workflow.Run(context.Background(), raw)
	require.NoError(t, res.Err)
	assert.Equal(t, StateComplete, res.State)
	assert.Empty(t, res.FailedAt)
	assert.True(t, res.Completed())
	assert.False(t, res.Retryable())

	assert.Equal(t, "DEV123", res.Claim.IdentityName)
	assert.Equal(t, "DEV123", res.Outcome.Identity.Name)
	assert.Equal(t, []string{"DEV123"}, f.svc.Members("fleet"))
	assert.Equal(t, []string{res.Outcome.Principal.ARN}, f.svc.Principals("DEV123"))
}

func TestWorkflow_CommonNamePolicy(t *testing.T) {
	f := newFixture(t, record.PolicyCommonName)
	raw, _ := f.producer.DeviceRecord(t, "CN-42")

	res := f.workflow.Run(context.Background(), raw)
	require.NoError(t, res.Err)
	assert.Equal(t, "CN-42", res.Outcome.Identity.Name)
}

func TestWorkflow_InvalidSignature(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)
	raw, _ := f.producer.DeviceRecord(t, "DEV123")

	res := f.workflow.Run(context.Background(), recordtest.FlipSignatureByte(raw))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateReceived, res.FailedAt)
	assert.False(t, res.Retryable())

	var sigErr *interfaces.SignatureError
	require.ErrorAs(t, res.Err, &sigErr)
	assert.Empty(t, f.svc.Calls())
	assert.Nil(t, res.Outcome)
}

func TestWorkflow_MissingClaims(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)

	res := f.workflow.Run(context.Background(), f.producer.Sign(t, nil))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateVerified, res.FailedAt)
	assert.ErrorIs(t, res.Err, interfaces.ErrMissingClaims)

	var claimErr *interfaces.ClaimError
	require.ErrorAs(t, res.Err, &claimErr)
	assert.Empty(t, f.svc.Calls())
	assert.False(t, res.Retryable())
}

func TestWorkflow_RetryAfterCertificateFailure(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)
	raw, _ := f.producer.DeviceRecord(t, "DEV123")

	f.svc.FailNext("RegisterCertificate", errors.New("internal failure"))
	res := f.workflow.Run(context.Background(), raw)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateClaimExtracted, res.FailedAt)
	assert.True(t, res.Retryable())

	res = f.workflow.Run(context.Background(), raw)
	require.NoError(t, res.Err)
	assert.Equal(t, StateComplete, res.State)
	assert.False(t, res.Outcome.CreatedIdentity)
	assert.Len(t, f.svc.Principals("DEV123"), 1)
}

func TestWorkflow_CanceledContext(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)
	raw, _ := f.producer.DeviceRecord(t, "DEV123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.workflow.Run(ctx, raw)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateClaimExtracted, res.FailedAt)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.True(t, res.Retryable())
}

func TestNewWorkflow_Validation(t *testing.T) {
	producer := recordtest.NewProducer(t)
	verifier, err := record.NewVerifier(producer.PublicKey())
	require.NoError(t, err)
	extractor, err := record.NewClaimExtractor(record.PolicyDeviceID)
	require.NoError(t, err)
	provisioner := provisioning.New(identity.NewMemoryService(), testLogger())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing group", func(c *Config) { c.GroupName = "" }},
		{"group with spaces", func(c *Config) { c.GroupName = "my fleet" }},
		{"unknown policy", func(c *Config) { c.IdentityPolicy = "serial" }},
		{"policy mismatch", func(c *Config) { c.IdentityPolicy = record.PolicyCommonName }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"negative timeout", func(c *Config) { c.ProvisionTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.GroupName = "fleet"
			tt.modify(&cfg)

			_, err := NewWorkflow(cfg, verifier, extractor, provisioner, testLogger(), nil)
			require.Error(t, err)
		})
	}

	cfg := DefaultConfig()
	cfg.GroupName = "fleet"
	_, err = NewWorkflow(cfg, nil, extractor, provisioner, testLogger(), nil)
	require.Error(t, err)

	workflow, err := NewWorkflow(cfg, verifier, extractor, provisioner, testLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, "fleet", workflow.Config().GroupName)
}

func TestProcessor_DeletesOnlyCompleted(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)
	ctx := context.Background()

	good := interfaces.RecordLocation{Container: "records", Key: "good.prd"}
	tampered := interfaces.RecordLocation{Container: "records", Key: "tampered.prd"}
	noClaims := interfaces.RecordLocation{Container: "records", Key: "noclaims.prd"}

	raw, _ := f.producer.DeviceRecord(t, "DEV123")
	f.source.Put(good, raw)
	other, _ := f.producer.DeviceRecord(t, "DEV456")
	f.source.Put(tampered, recordtest.FlipSignatureByte(other))
	f.source.Put(noClaims, f.producer.Sign(t, nil))

	res, err := f.proc.Process(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, res.State)
	assert.Equal(t, good, res.Location)
	assert.False(t, f.source.Has(good))

	res, err = f.proc.Process(ctx, tampered)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, f.source.Has(tampered))

	res, err = f.proc.Process(ctx, noClaims)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, f.source.Has(noClaims))

	f.svc.FailNext("AttachPrincipal", errors.New("throttled"))
	retry := interfaces.RecordLocation{Container: "records", Key: "retry.prd"}
	retryRaw, _ := f.producer.DeviceRecord(t, "DEV789")
	f.source.Put(retry, retryRaw)

	res, err = f.proc.Process(ctx, retry)
	require.NoError(t, err)
	assert.True(t, res.Retryable())
	assert.True(t, f.source.Has(retry))

	assert.Equal(t, []interfaces.RecordLocation{good}, f.source.deleted)
}

func TestProcessor_FetchErrors(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)
	missing := interfaces.RecordLocation{Container: "records", Key: "missing.prd"}

	res, err := f.proc.Process(context.Background(), missing)
	require.ErrorIs(t, err, interfaces.ErrRecordNotFound)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateReceived, res.FailedAt)
	assert.False(t, res.Retryable())

	var fetchErr *FetchError
	require.ErrorAs(t, res.Err, &fetchErr)
	assert.Equal(t, missing, fetchErr.Location)
	assert.Empty(t, f.svc.Calls())
}

func TestProcessor_DeleteFailureKeepsComplete(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)
	loc := interfaces.RecordLocation{Container: "records", Key: "good.prd"}
	raw, _ := f.producer.DeviceRecord(t, "DEV123")
	f.source.Put(loc, raw)
	f.source.deleteErr = errors.New("access denied")

	res, err := f.proc.Process(context.Background(), loc)
	require.Error(t, err)
	assert.Equal(t, StateComplete, res.State)
	assert.ErrorIs(t, res.DeleteErr, f.source.deleteErr)
	assert.True(t, f.source.Has(loc))

	// Redelivery converges on the same identity and deletes the record.
	f.source.deleteErr = nil
	res, err = f.proc.Process(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, res.State)
	assert.False(t, res.Outcome.CreatedIdentity)
	assert.False(t, f.source.Has(loc))
}

func TestProcessor_ProcessAll(t *testing.T) {
	f := newFixture(t, record.PolicyDeviceID)

	var locs []interfaces.RecordLocation
	for i := 0; i < 10; i++ {
		loc := interfaces.RecordLocation{Container: "records", Key: fmt.Sprintf("%02d.prd", i)}
		raw, _ := f.producer.DeviceRecord(t, fmt.Sprintf("DEV%02d", i))
		if i == 3 {
			raw = recordtest.FlipSignatureByte(raw)
		}
		f.source.Put(loc, raw)
		locs = append(locs, loc)
	}
	locs = append(locs, interfaces.RecordLocation{Container: "records", Key: "missing.prd"})

	results := f.proc.ProcessAll(context.Background(), locs)
	require.Len(t, results, len(locs))

	for i, res := range results {
		assert.Equal(t, locs[i], res.Location)
		switch i {
		case 3, 10:
			assert.Equal(t, StateFailed, res.State, locs[i].String())
		default:
			assert.Equal(t, StateComplete, res.State, locs[i].String())
			assert.Equal(t, fmt.Sprintf("DEV%02d", i), res.Outcome.Identity.Name)
		}
	}

	assert.Len(t, f.svc.Members("fleet"), 9)
	assert.True(t, f.source.Has(locs[3]))
	groups, _, _ := f.svc.Counts()
	assert.Equal(t, 1, groups)
}

func TestRecordHandle_ReleaseIdempotent(t *testing.T) {
	source := newMemorySource()
	loc := interfaces.RecordLocation{Container: "records", Key: "a.prd"}
	source.Put(loc, []byte("data"))

	handle, err := Acquire(context.Background(), source, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), handle.Bytes())
	assert.Equal(t, loc, handle.Location())
	assert.True(t, source.Has(loc))

	require.NoError(t, handle.Release(context.Background()))
	require.NoError(t, handle.Release(context.Background()))
	assert.Len(t, source.deleted, 1)
}
