package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/ruteri/device-onboarding-backend/metrics"
	"github.com/ruteri/device-onboarding-backend/provisioning"
	"github.com/ruteri/device-onboarding-backend/record"
)

// State is a workflow state.
type State string

const (
	StateReceived       State = "received"
	StateVerified       State = "verified"
	StateClaimExtracted State = "claim_extracted"
	StateProvisioned    State = "provisioned"
	StateComplete       State = "complete"
	StateFailed         State = "failed"
)

// Result is the outcome of one workflow run.
type Result struct {
	Location interfaces.RecordLocation `json:"location"`
	State    State                     `json:"state"`

	// FailedAt is the last state reached before the failure. Empty unless
	// State is StateFailed.
	FailedAt State `json:"failedAt,omitempty"`

	Claim   *record.Claim          `json:"claim,omitempty"`
	Outcome *provisioning.Outcome `json:"outcome,omitempty"`

	// Err is a *interfaces.SignatureError, *interfaces.ClaimError,
	// *interfaces.ProvisionError or *FetchError when State is StateFailed.
	Err error `json:"-"`

	// DeleteErr reports a failed deletion of a completed record. It does
	// not change State.
	DeleteErr error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Completed reports whether the record may be deleted.
func (r *Result) Completed() bool {
	return r.State == StateComplete
}

// Retryable reports whether running the same record again may succeed.
func (r *Result) Retryable() bool {
	if r.State != StateFailed {
		return false
	}
	var fetchErr *FetchError
	if errors.As(r.Err, &fetchErr) {
		return !errors.Is(fetchErr.Err, interfaces.ErrRecordNotFound)
	}
	return interfaces.IsRetryable(r.Err)
}

func (r *Result) fail(err error) *Result {
	r.FailedAt = r.State
	r.State = StateFailed
	r.Err = err
	return r
}

// Workflow onboards single records. It holds only immutable configuration
// and is safe for concurrent use.
type Workflow struct {
	cfg         Config
	verifier    *record.Verifier
	extractor   *record.ClaimExtractor
	provisioner *provisioning.Provisioner
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// NewWorkflow validates the configuration and creates a workflow. m may be nil.
func NewWorkflow(cfg Config, verifier *record.Verifier, extractor *record.ClaimExtractor, provisioner *provisioning.Provisioner, log *slog.Logger, m *metrics.Metrics) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if verifier == nil || extractor == nil || provisioner == nil {
		return nil, errors.New("verifier, extractor and provisioner are required")
	}
	if extractor.Policy() != cfg.IdentityPolicy {
		return nil, fmt.Errorf("extractor policy %q does not match configured policy %q", extractor.Policy(), cfg.IdentityPolicy)
	}

	return &Workflow{
		cfg:         cfg,
		verifier:    verifier,
		extractor:   extractor,
		provisioner: provisioner,
		log:         log,
		metrics:     m,
	}, nil
}

// Config returns the workflow configuration.
func (w *Workflow) Config() Config {
	return w.cfg
}

// Run takes one raw record through the state machine. It never returns
// nil. Remote calls happen only after the signature and claims are valid.
func (w *Workflow) Run(ctx context.Context, raw []byte) *Result {
	start := time.Now()
	res := w.run(ctx, raw)
	res.Duration = time.Since(start)

	w.metrics.RecordResult(string(res.State), string(res.FailedAt), res.Retryable(), res.Duration)
	return res
}

func (w *Workflow) run(ctx context.Context, raw []byte) *Result {
	res := &Result{State: StateReceived}

	verified, err := record.Open(raw, w.verifier)
	if err != nil {
		w.log.Warn("Rejected record with invalid signature", "err", err)
		return res.fail(err)
	}
	res.State = StateVerified

	claim, err := w.extractor.Extract(verified)
	if err != nil {
		w.log.Error("Rejected record with invalid claims",
			slog.String("kid", verified.Header().KeyID),
			slog.String("sqn", verified.Header().SequenceNumber),
			"err", err)
		return res.fail(err)
	}
	res.Claim = claim
	res.State = StateClaimExtracted

	log := w.log.With(slog.String("identity", claim.IdentityName))

	provisionCtx := ctx
	if w.cfg.ProvisionTimeout > 0 {
		var cancel context.CancelFunc
		provisionCtx, cancel = context.WithTimeout(ctx, w.cfg.ProvisionTimeout)
		defer cancel()
	}

	outcome, err := w.provisioner.Provision(provisionCtx, claim.IdentityName, claim.CertificatePEM, w.cfg.GroupName)
	if err != nil {
		log.Error("Failed to provision device identity", "err", err)
		return res.fail(err)
	}
	res.Outcome = outcome
	res.State = StateProvisioned
	w.metrics.RecordProvisioned(outcome.CreatedIdentity)

	res.State = StateComplete
	log.Info("Onboarded device",
		slog.String("group", outcome.Group.Name),
		slog.String("certificate_id", outcome.Principal.ID))
	return res
}
