package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/iot"
	"github.com/aws/aws-sdk-go/service/iot/iotiface"
	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// IoTOptions configures the AWS IoT client.
type IoTOptions struct {
	Region   string
	Endpoint string

	// AccessKey and SecretKey select static credentials. When empty the
	// default AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// IoTService implements interfaces.IdentityService on AWS IoT Core.
type IoTService struct {
	client iotiface.IoTAPI
	log    *slog.Logger
}

// NewIoTService creates an AWS session and IoT client from opts.
func NewIoTService(opts IoTOptions, log *slog.Logger) (*IoTService, error) {
	cfg := aws.NewConfig().WithRegion(opts.Region)
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewIoTServiceWithClient(iot.New(sess), log), nil
}

// NewIoTServiceWithClient wraps an existing IoT client.
func NewIoTServiceWithClient(client iotiface.IoTAPI, log *slog.Logger) *IoTService {
	return &IoTService{client: client, log: log}
}

func (s *IoTService) DescribeGroup(ctx context.Context, name string) (interfaces.GroupRef, error) {
	out, err := s.client.DescribeThingGroupWithContext(ctx, &iot.DescribeThingGroupInput{
		ThingGroupName: aws.String(name),
	})
	if err != nil {
		return interfaces.GroupRef{}, mapError(err, interfaces.ErrGroupNotFound, interfaces.ErrGroupExists)
	}
	return interfaces.GroupRef{
		Name: aws.StringValue(out.ThingGroupName),
		ARN:  aws.StringValue(out.ThingGroupArn),
	}, nil
}

func (s *IoTService) CreateGroup(ctx context.Context, name string) (interfaces.GroupRef, error) {
	out, err := s.client.CreateThingGroupWithContext(ctx, &iot.CreateThingGroupInput{
		ThingGroupName: aws.String(name),
	})
	if err != nil {
		return interfaces.GroupRef{}, mapError(err, interfaces.ErrGroupNotFound, interfaces.ErrGroupExists)
	}

	s.log.Info("Created thing group", slog.String("group", name))
	return interfaces.GroupRef{
		Name: aws.StringValue(out.ThingGroupName),
		ARN:  aws.StringValue(out.ThingGroupArn),
	}, nil
}

func (s *IoTService) CreateIdentity(ctx context.Context, name string) (interfaces.IdentityRef, error) {
	out, err := s.client.CreateThingWithContext(ctx, &iot.CreateThingInput{
		ThingName: aws.String(name),
	})
	if err != nil {
		return interfaces.IdentityRef{}, mapError(err, interfaces.ErrIdentityNotFound, interfaces.ErrIdentityExists)
	}
	return interfaces.IdentityRef{
		Name: aws.StringValue(out.ThingName),
		ARN:  aws.StringValue(out.ThingArn),
	}, nil
}

func (s *IoTService) DescribeIdentity(ctx context.Context, name string) (interfaces.IdentityRef, error) {
	out, err := s.client.DescribeThingWithContext(ctx, &iot.DescribeThingInput{
		ThingName: aws.String(name),
	})
	if err != nil {
		return interfaces.IdentityRef{}, mapError(err, interfaces.ErrIdentityNotFound, interfaces.ErrIdentityExists)
	}
	return interfaces.IdentityRef{
		Name: aws.StringValue(out.ThingName),
		ARN:  aws.StringValue(out.ThingArn),
	}, nil
}

func (s *IoTService) RegisterCertificate(ctx context.Context, certificatePEM string) (interfaces.PrincipalRef, error) {
	out, err := s.client.RegisterCertificateWithoutCAWithContext(ctx, &iot.RegisterCertificateWithoutCAInput{
		CertificatePem: aws.String(certificatePEM),
		Status:         aws.String(iot.CertificateStatusActive),
	})
	if err != nil {
		return interfaces.PrincipalRef{}, mapError(err, interfaces.ErrCertificateNotFound, interfaces.ErrCertificateExists)
	}
	return interfaces.PrincipalRef{
		ID:     aws.StringValue(out.CertificateId),
		ARN:    aws.StringValue(out.CertificateArn),
		Status: interfaces.CertificateStatusActive,
	}, nil
}

func (s *IoTService) DescribeCertificate(ctx context.Context, certificateID string) (interfaces.PrincipalRef, error) {
	out, err := s.client.DescribeCertificateWithContext(ctx, &iot.DescribeCertificateInput{
		CertificateId: aws.String(certificateID),
	})
	if err != nil {
		return interfaces.PrincipalRef{}, mapError(err, interfaces.ErrCertificateNotFound, interfaces.ErrCertificateExists)
	}
	if out.CertificateDescription == nil {
		return interfaces.PrincipalRef{}, fmt.Errorf("%w: empty description for %s", interfaces.ErrCertificateNotFound, certificateID)
	}
	return interfaces.PrincipalRef{
		ID:     aws.StringValue(out.CertificateDescription.CertificateId),
		ARN:    aws.StringValue(out.CertificateDescription.CertificateArn),
		Status: aws.StringValue(out.CertificateDescription.Status),
	}, nil
}

func (s *IoTService) ActivateCertificate(ctx context.Context, certificateID string) error {
	_, err := s.client.UpdateCertificateWithContext(ctx, &iot.UpdateCertificateInput{
		CertificateId: aws.String(certificateID),
		NewStatus:     aws.String(iot.CertificateStatusActive),
	})
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == iot.ErrCodeCertificateStateException {
		return fmt.Errorf("%w: %s", interfaces.ErrCertificateRevoked, aerr.Message())
	}
	if err != nil {
		return mapError(err, interfaces.ErrCertificateNotFound, nil)
	}
	return nil
}

func (s *IoTService) AttachToGroup(ctx context.Context, identity interfaces.IdentityRef, group interfaces.GroupRef) error {
	input := &iot.AddThingToThingGroupInput{
		ThingName:      aws.String(identity.Name),
		ThingGroupName: aws.String(group.Name),
	}
	if identity.ARN != "" {
		input.ThingArn = aws.String(identity.ARN)
	}
	if group.ARN != "" {
		input.ThingGroupArn = aws.String(group.ARN)
	}

	if _, err := s.client.AddThingToThingGroupWithContext(ctx, input); err != nil {
		return mapError(err, interfaces.ErrIdentityNotFound, nil)
	}
	return nil
}

func (s *IoTService) AttachPrincipal(ctx context.Context, identity interfaces.IdentityRef, principal interfaces.PrincipalRef) error {
	_, err := s.client.AttachThingPrincipalWithContext(ctx, &iot.AttachThingPrincipalInput{
		ThingName: aws.String(identity.Name),
		Principal: aws.String(principal.ARN),
	})
	if err != nil {
		return mapError(err, interfaces.ErrIdentityNotFound, nil)
	}
	return nil
}

// DeleteGroup removes every thing in the group together with its
// certificates, then the group itself. Certificate principals are
// deactivated and stripped of policies before deletion; other principal
// kinds are only detached. It returns the names of the deleted things.
func (s *IoTService) DeleteGroup(ctx context.Context, groupName string) ([]string, error) {
	var things []string
	err := s.client.ListThingsInThingGroupPagesWithContext(ctx, &iot.ListThingsInThingGroupInput{
		ThingGroupName: aws.String(groupName),
		MaxResults:     aws.Int64(100),
	}, func(page *iot.ListThingsInThingGroupOutput, lastPage bool) bool {
		things = append(things, aws.StringValueSlice(page.Things)...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list things in group %s: %w", groupName, mapError(err, interfaces.ErrGroupNotFound, nil))
	}

	deleted := make([]string, 0, len(things))
	for _, thing := range things {
		if err := s.deleteThing(ctx, thing); err != nil {
			return deleted, err
		}
		deleted = append(deleted, thing)
	}

	_, err = s.client.DeleteThingGroupWithContext(ctx, &iot.DeleteThingGroupInput{
		ThingGroupName: aws.String(groupName),
	})
	if err != nil {
		return deleted, fmt.Errorf("failed to delete thing group %s: %w", groupName, err)
	}

	s.log.Info("Deleted thing group",
		slog.String("group", groupName),
		slog.Int("things", len(deleted)))
	return deleted, nil
}

func (s *IoTService) deleteThing(ctx context.Context, thing string) error {
	var principals []string
	err := s.client.ListThingPrincipalsPagesWithContext(ctx, &iot.ListThingPrincipalsInput{
		ThingName: aws.String(thing),
	}, func(page *iot.ListThingPrincipalsOutput, lastPage bool) bool {
		principals = append(principals, aws.StringValueSlice(page.Principals)...)
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to list principals of %s: %w", thing, err)
	}

	for _, principal := range principals {
		_, err := s.client.DetachThingPrincipalWithContext(ctx, &iot.DetachThingPrincipalInput{
			ThingName: aws.String(thing),
			Principal: aws.String(principal),
		})
		if err != nil {
			return fmt.Errorf("failed to detach %s from %s: %w", principal, thing, err)
		}

		certificateID, ok := certificateIDFromARN(principal)
		if !ok {
			continue
		}
		if err := s.deleteCertificate(ctx, certificateID, principal); err != nil {
			return err
		}
	}

	if _, err := s.client.DeleteThingWithContext(ctx, &iot.DeleteThingInput{ThingName: aws.String(thing)}); err != nil {
		return fmt.Errorf("failed to delete thing %s: %w", thing, err)
	}

	s.log.Info("Deleted thing", slog.String("thing", thing))
	return nil
}

func (s *IoTService) deleteCertificate(ctx context.Context, certificateID, principal string) error {
	_, err := s.client.UpdateCertificateWithContext(ctx, &iot.UpdateCertificateInput{
		CertificateId: aws.String(certificateID),
		NewStatus:     aws.String(iot.CertificateStatusInactive),
	})
	if err != nil {
		return fmt.Errorf("failed to deactivate certificate %s: %w", certificateID, err)
	}

	var policies []string
	err = s.client.ListAttachedPoliciesPagesWithContext(ctx, &iot.ListAttachedPoliciesInput{
		Target: aws.String(principal),
	}, func(page *iot.ListAttachedPoliciesOutput, lastPage bool) bool {
		for _, policy := range page.Policies {
			policies = append(policies, aws.StringValue(policy.PolicyName))
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to list policies of certificate %s: %w", certificateID, err)
	}

	for _, policy := range policies {
		_, err := s.client.DetachPolicyWithContext(ctx, &iot.DetachPolicyInput{
			PolicyName: aws.String(policy),
			Target:     aws.String(principal),
		})
		if err != nil {
			return fmt.Errorf("failed to detach policy %s from certificate %s: %w", policy, certificateID, err)
		}
	}

	if _, err := s.client.DeleteCertificateWithContext(ctx, &iot.DeleteCertificateInput{
		CertificateId: aws.String(certificateID),
	}); err != nil {
		return fmt.Errorf("failed to delete certificate %s: %w", certificateID, err)
	}

	s.log.Info("Deleted certificate", slog.String("certificate_id", certificateID))
	return nil
}

// certificateIDFromARN extracts the id from arn:aws:iot:region:account:cert/<id>.
func certificateIDFromARN(principal string) (string, bool) {
	_, id, found := strings.Cut(principal, ":cert/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// mapError translates AWS IoT error codes into the identity sentinel errors.
// A nil sentinel leaves that code unmapped.
func mapError(err error, notFound, exists error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch {
		case aerr.Code() == iot.ErrCodeResourceNotFoundException && notFound != nil:
			return fmt.Errorf("%w: %s", notFound, aerr.Message())
		case aerr.Code() == iot.ErrCodeResourceAlreadyExistsException && exists != nil:
			return fmt.Errorf("%w: %s", exists, aerr.Message())
		}
	}
	return err
}
