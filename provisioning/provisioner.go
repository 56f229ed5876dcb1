// Package provisioning creates the remote identity for an onboarded device:
// a thing in a thing group, with the device certificate registered and
// attached as its principal.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/device-onboarding-backend/cryptoutils"
	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// Outcome describes what Provision did.
type Outcome struct {
	Group     interfaces.GroupRef     `json:"group"`
	Identity  interfaces.IdentityRef  `json:"identity"`
	Principal interfaces.PrincipalRef `json:"principal"`

	// CreatedIdentity and RegisteredCertificate are false when a previous
	// attempt had already created the thing or the certificate.
	CreatedIdentity       bool `json:"createdIdentity"`
	RegisteredCertificate bool `json:"registeredCertificate"`
}

// Provisioner drives an IdentityService. Every step tolerates resources left
// behind by an earlier partial attempt, so onboarding the same record again
// converges on the same result.
type Provisioner struct {
	svc interfaces.IdentityService
	log *slog.Logger
}

// New creates a provisioner.
func New(svc interfaces.IdentityService, log *slog.Logger) *Provisioner {
	return &Provisioner{svc: svc, log: log}
}

// EnsureGroup returns the named thing group, creating it if necessary.
func (p *Provisioner) EnsureGroup(ctx context.Context, groupName string) (interfaces.GroupRef, error) {
	group, err := p.svc.DescribeGroup(ctx, groupName)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, interfaces.ErrGroupNotFound) {
		return interfaces.GroupRef{}, &interfaces.ProvisionError{Step: interfaces.StepEnsureGroup, Err: err}
	}

	group, err = p.svc.CreateGroup(ctx, groupName)
	if errors.Is(err, interfaces.ErrGroupExists) {
		// Lost a race with a concurrent creator.
		group, err = p.svc.DescribeGroup(ctx, groupName)
	}
	if err != nil {
		return interfaces.GroupRef{}, &interfaces.ProvisionError{Step: interfaces.StepEnsureGroup, Err: err}
	}

	p.log.Info("Created thing group", slog.String("group", groupName))
	return group, nil
}

// Provision creates or reuses the thing, registers or reuses the
// certificate, and binds them to each other and to the group. Failures are
// *interfaces.ProvisionError and may leave partial state behind.
func (p *Provisioner) Provision(ctx context.Context, identityName, certificatePEM, groupName string) (*Outcome, error) {
	group, err := p.EnsureGroup(ctx, groupName)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Group: group}

	outcome.Identity, outcome.CreatedIdentity, err = p.ensureIdentity(ctx, identityName)
	if err != nil {
		return nil, &interfaces.ProvisionError{Step: interfaces.StepCreateIdentity, Err: err}
	}

	outcome.Principal, outcome.RegisteredCertificate, err = p.ensureCertificate(ctx, certificatePEM)
	if err != nil {
		return nil, &interfaces.ProvisionError{Step: interfaces.StepRegisterCertificate, Err: err}
	}

	if err := p.svc.AttachToGroup(ctx, outcome.Identity, group); err != nil {
		return nil, &interfaces.ProvisionError{Step: interfaces.StepAttachToGroup, Err: err}
	}

	if err := p.svc.AttachPrincipal(ctx, outcome.Identity, outcome.Principal); err != nil {
		return nil, &interfaces.ProvisionError{Step: interfaces.StepAttachPrincipal, Err: err}
	}

	p.log.Info("Provisioned device identity",
		slog.String("identity", outcome.Identity.Name),
		slog.String("group", group.Name),
		slog.String("certificate_id", outcome.Principal.ID),
		slog.Bool("created_identity", outcome.CreatedIdentity),
		slog.Bool("registered_certificate", outcome.RegisteredCertificate))

	return outcome, nil
}

func (p *Provisioner) ensureIdentity(ctx context.Context, name string) (interfaces.IdentityRef, bool, error) {
	identity, err := p.svc.CreateIdentity(ctx, name)
	if err == nil {
		return identity, true, nil
	}
	if !errors.Is(err, interfaces.ErrIdentityExists) {
		return interfaces.IdentityRef{}, false, err
	}

	p.log.Debug("Thing already exists, reusing it", slog.String("identity", name))
	identity, err = p.svc.DescribeIdentity(ctx, name)
	if err != nil {
		return interfaces.IdentityRef{}, false, err
	}
	return identity, false, nil
}

func (p *Provisioner) ensureCertificate(ctx context.Context, certificatePEM string) (interfaces.PrincipalRef, bool, error) {
	principal, err := p.svc.RegisterCertificate(ctx, certificatePEM)
	if err == nil {
		return principal, true, nil
	}
	if !errors.Is(err, interfaces.ErrCertificateExists) {
		return interfaces.PrincipalRef{}, false, err
	}

	id, idErr := cryptoutils.CertificateID(certificatePEM)
	if idErr != nil {
		return interfaces.PrincipalRef{}, false, fmt.Errorf("certificate already registered but its id cannot be derived: %w", idErr)
	}

	p.log.Debug("Certificate already registered, reusing it", slog.String("certificate_id", id))
	principal, err = p.svc.DescribeCertificate(ctx, id)
	if err != nil {
		return interfaces.PrincipalRef{}, false, err
	}

	switch principal.Status {
	case interfaces.CertificateStatusActive:
	case interfaces.CertificateStatusRevoked:
		return interfaces.PrincipalRef{}, false, fmt.Errorf("%w: %s", interfaces.ErrCertificateRevoked, id)
	default:
		// Left inactive by an interrupted teardown or by an operator.
		p.log.Warn("Reactivating registered certificate",
			slog.String("certificate_id", id),
			slog.String("status", principal.Status))
		if err := p.svc.ActivateCertificate(ctx, id); err != nil {
			return interfaces.PrincipalRef{}, false, err
		}
		principal.Status = interfaces.CertificateStatusActive
	}
	return principal, false, nil
}
