package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope is returned when a record is not a compact JWS.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrUnsupportedAlgorithm is returned for any signature algorithm other than ES256.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	// ErrInvalidSignature is returned when the signature does not verify against the signing key.
	ErrInvalidSignature = errors.New("invalid signature")

	ErrUnverifiedEnvelope   = errors.New("envelope has not been verified")
	ErrMissingClaims        = errors.New("missing clear-text claims")
	ErrMissingDeviceID      = errors.New("missing deviceID claim")
	ErrMissingDeviceCert    = errors.New("missing deviceCert claim")
	ErrMalformedCertificate = errors.New("malformed device certificate")
	ErrMissingCommonName    = errors.New("device certificate has no subject common name")
	ErrInvalidIdentityName  = errors.New("invalid identity name")
)

// SignatureError is a fatal, non-retryable verification failure. The
// record must be preserved for investigation.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature error: %v", e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// ClaimError reports a producer-side contract violation in the record claims.
type ClaimError struct {
	Err error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim error: %v", e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}

// ProvisionStep names the identity-service step that failed.
type ProvisionStep string

const (
	StepEnsureGroup         ProvisionStep = "ensure_group"
	StepCreateIdentity      ProvisionStep = "create_identity"
	StepRegisterCertificate ProvisionStep = "register_certificate"
	StepAttachToGroup       ProvisionStep = "attach_to_group"
	StepAttachPrincipal     ProvisionStep = "attach_principal"
)

// ProvisionError is a remote-call failure while provisioning. The whole
// onboarding may be retried with the same record.
type ProvisionError struct {
	Step ProvisionStep
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision error at %s: %v", e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the onboarding failure may succeed on retry.
// A revoked device certificate is a provisioning failure that never clears.
func IsRetryable(err error) bool {
	var provisionErr *ProvisionError
	return errors.As(err, &provisionErr) && !errors.Is(err, ErrCertificateRevoked)
}
