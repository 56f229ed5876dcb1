package interfaces

import (
	"context"
	"errors"
)

// GroupRef references a thing group on the identity service.
type GroupRef struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

// IdentityRef references a thing on the identity service.
type IdentityRef struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

// PrincipalRef references a registered certificate. ARN is the value
// attached to identities as their principal.
type PrincipalRef struct {
	ID     string `json:"id"`
	ARN    string `json:"arn"`
	Status string `json:"status,omitempty"`
}

// Certificate statuses, as reported by AWS IoT.
const (
	CertificateStatusActive   = "ACTIVE"
	CertificateStatusInactive = "INACTIVE"
	CertificateStatusRevoked  = "REVOKED"
)

var (
	ErrGroupNotFound       = errors.New("thing group not found")
	ErrGroupExists         = errors.New("thing group already exists")
	ErrIdentityNotFound    = errors.New("thing not found")
	ErrIdentityExists      = errors.New("thing already exists")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrCertificateExists   = errors.New("certificate already exists")

	// ErrCertificateRevoked is returned when the device certificate was
	// revoked on the identity service. Retrying cannot succeed.
	ErrCertificateRevoked = errors.New("certificate is revoked")
)

// IdentityService is the remote device-identity registry.
type IdentityService interface {
	// DescribeGroup returns ErrGroupNotFound if the group does not exist.
	DescribeGroup(ctx context.Context, name string) (GroupRef, error)

	// CreateGroup returns ErrGroupExists if the group already exists.
	CreateGroup(ctx context.Context, name string) (GroupRef, error)

	// CreateIdentity returns ErrIdentityExists if a thing with this name exists.
	CreateIdentity(ctx context.Context, name string) (IdentityRef, error)

	// DescribeIdentity returns ErrIdentityNotFound if the thing does not exist.
	DescribeIdentity(ctx context.Context, name string) (IdentityRef, error)

	// RegisterCertificate registers an already issued certificate without
	// a CA and marks it active. Returns ErrCertificateExists on re-registration.
	RegisterCertificate(ctx context.Context, certificatePEM string) (PrincipalRef, error)

	// DescribeCertificate returns ErrCertificateNotFound for unknown ids.
	// The returned ref carries the current status.
	DescribeCertificate(ctx context.Context, certificateID string) (PrincipalRef, error)

	// ActivateCertificate sets the certificate status to ACTIVE. Returns
	// ErrCertificateRevoked for revoked certificates.
	ActivateCertificate(ctx context.Context, certificateID string) error

	// AttachToGroup adds the thing to the group. Idempotent.
	AttachToGroup(ctx context.Context, identity IdentityRef, group GroupRef) error

	// AttachPrincipal attaches the certificate to the thing. Idempotent.
	AttachPrincipal(ctx context.Context, identity IdentityRef, principal PrincipalRef) error
}
