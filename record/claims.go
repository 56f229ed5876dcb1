package record

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ruteri/device-onboarding-backend/cryptoutils"
	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// DeviceClaim is the clear-text claims block written by the production line.
// The JSON keys are a fixed contract with producers.
type DeviceClaim struct {
	DeviceID         string `json:"deviceID"`
	DeviceCert       string `json:"deviceCert"`
	CertPubKey       string `json:"certPubKey,omitempty"`
	ProductionResult string `json:"productionResult,omitempty"`
}

// Claim is the extracted, normalized identity of one device.
type Claim struct {
	// IdentityName is the thing name, chosen by the IdentityPolicy.
	IdentityName string `json:"identityName"`

	// CertificatePEM is DeviceClaim.DeviceCert with PEM framing.
	CertificatePEM string `json:"certificatePem"`

	// CommonName is the certificate subject CN, possibly empty.
	CommonName string `json:"commonName,omitempty"`

	Device DeviceClaim `json:"device"`

	KeyID          string    `json:"kid,omitempty"`
	SequenceNumber string    `json:"sqn,omitempty"`
	IssuedAt       time.Time `json:"iat,omitempty"`
}

var (
	thingNamePattern = regexp.MustCompile(`^[a-zA-Z0-9:_-]+$`)
	claimValidate    = newClaimValidator()
)

func newClaimValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("thingname", func(fl validator.FieldLevel) bool {
		return IsValidThingName(fl.Field().String())
	})
	return v
}

// IsValidThingName reports whether s only uses the characters AWS IoT
// allows in thing and thing group names. Length is checked separately.
func IsValidThingName(s string) bool {
	return thingNamePattern.MatchString(s)
}

// ClaimExtractor derives the device identity from a verified record.
type ClaimExtractor struct {
	policy IdentityPolicy
}

// NewClaimExtractor creates an extractor using the given identity policy.
func NewClaimExtractor(policy IdentityPolicy) (*ClaimExtractor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &ClaimExtractor{policy: policy}, nil
}

// Policy returns the configured identity policy.
func (x *ClaimExtractor) Policy() IdentityPolicy {
	return x.policy
}

// Extract reads the device claims. It performs no I/O and is deterministic
// for a given record. Every failure is a *interfaces.ClaimError.
func (x *ClaimExtractor) Extract(v *Verified) (*Claim, error) {
	if v == nil || v.envelope == nil {
		return nil, claimError(interfaces.ErrUnverifiedEnvelope, "")
	}
	header := v.envelope.header

	device, err := decodeDeviceClaim(header)
	if err != nil {
		return nil, err
	}

	cert, err := cryptoutils.ParseCertificateBody(device.DeviceCert)
	if err != nil {
		return nil, claimError(interfaces.ErrMalformedCertificate, "%v", err)
	}

	claim := &Claim{
		CertificatePEM: cryptoutils.FrameCertificatePEM(device.DeviceCert),
		CommonName:     cert.Subject.CommonName,
		Device:         device,
		KeyID:          header.KeyID,
		SequenceNumber: header.SequenceNumber,
		IssuedAt:       header.IssuedAt,
	}

	switch x.policy {
	case PolicyDeviceID:
		if device.DeviceID == "" {
			return nil, claimError(interfaces.ErrMissingDeviceID, "")
		}
		claim.IdentityName = device.DeviceID
	case PolicyCommonName:
		if claim.CommonName == "" {
			return nil, claimError(interfaces.ErrMissingCommonName, "")
		}
		claim.IdentityName = claim.CommonName
	}

	if err := claimValidate.Var(claim.IdentityName, "required,max=128,thingname"); err != nil {
		return nil, claimError(interfaces.ErrInvalidIdentityName, "%q", claim.IdentityName)
	}

	return claim, nil
}

// DeviceClaim decodes the clear-text device claims without any signature
// check. It is meant for inspecting records; onboarding must go through
// Verifier and ClaimExtractor.
func (e *Envelope) DeviceClaim() (DeviceClaim, error) {
	return decodeDeviceClaim(e.header)
}

func decodeDeviceClaim(header Header) (DeviceClaim, error) {
	raw, ok := header.Extension()
	if !ok {
		return DeviceClaim{}, claimError(interfaces.ErrMissingClaims, "no %q header", extensionHeader)
	}

	var block map[string]json.RawMessage
	if err := json.Unmarshal(raw, &block); err != nil {
		return DeviceClaim{}, claimError(interfaces.ErrMissingClaims, "%q header is not a mapping", extensionHeader)
	}

	var device DeviceClaim
	if err := json.Unmarshal(raw, &device); err != nil {
		return DeviceClaim{}, claimError(interfaces.ErrMissingClaims, "%v", err)
	}

	if device.DeviceCert == "" {
		return DeviceClaim{}, claimError(interfaces.ErrMissingDeviceCert, "")
	}
	return device, nil
}

func claimError(kind error, format string, args ...any) error {
	if format == "" {
		return &interfaces.ClaimError{Err: kind}
	}
	return &interfaces.ClaimError{Err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))}
}
