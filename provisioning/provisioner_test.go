package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/device-onboarding-backend/cryptoutils"
	"github.com/ruteri/device-onboarding-backend/identity"
	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIdentityService struct {
	mock.Mock
}

func (m *mockIdentityService) DescribeGroup(ctx context.Context, name string) (interfaces.GroupRef, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.GroupRef), args.Error(1)
}

func (m *mockIdentityService) CreateGroup(ctx context.Context, name string) (interfaces.GroupRef, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.GroupRef), args.Error(1)
}

func (m *mockIdentityService) CreateIdentity(ctx context.Context, name string) (interfaces.IdentityRef, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.IdentityRef), args.Error(1)
}

func (m *mockIdentityService) DescribeIdentity(ctx context.Context, name string) (interfaces.IdentityRef, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.IdentityRef), args.Error(1)
}

func (m *mockIdentityService) RegisterCertificate(ctx context.Context, certificatePEM string) (interfaces.PrincipalRef, error) {
	args := m.Called(ctx, certificatePEM)
	return args.Get(0).(interfaces.PrincipalRef), args.Error(1)
}

func (m *mockIdentityService) DescribeCertificate(ctx context.Context, certificateID string) (interfaces.PrincipalRef, error) {
	args := m.Called(ctx, certificateID)
	return args.Get(0).(interfaces.PrincipalRef), args.Error(1)
}

func (m *mockIdentityService) ActivateCertificate(ctx context.Context, certificateID string) error {
	return m.Called(ctx, certificateID).Error(0)
}

func (m *mockIdentityService) AttachToGroup(ctx context.Context, identity interfaces.IdentityRef, group interfaces.GroupRef) error {
	return m.Called(ctx, identity, group).Error(0)
}

func (m *mockIdentityService) AttachPrincipal(ctx context.Context, identity interfaces.IdentityRef, principal interfaces.PrincipalRef) error {
	return m.Called(ctx, identity, principal).Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCertificate(t *testing.T, cn string) string {
	body, err := cryptoutils.SelfSignedDeviceCert(cn)
	require.NoError(t, err)
	return cryptoutils.FrameCertificatePEM(body)
}

func TestEnsureGroup(t *testing.T) {
	fleet := interfaces.GroupRef{Name: "fleet", ARN: "arn:group/fleet"}
	unavailable := errors.New("service unavailable")

	tests := []struct {
		name      string
		setup     func(m *mockIdentityService)
		expectErr error
	}{
		{
			name: "existing group",
			setup: func(m *mockIdentityService) {
				m.On("DescribeGroup", mock.Anything, "fleet").Return(fleet, nil).Once()
			},
		},
		{
			name: "missing group is created",
			setup: func(m *mockIdentityService) {
				m.On("DescribeGroup", mock.Anything, "fleet").Return(interfaces.GroupRef{}, interfaces.ErrGroupNotFound).Once()
				m.On("CreateGroup", mock.Anything, "fleet").Return(fleet, nil).Once()
			},
		},
		{
			name: "concurrent creation is tolerated",
			setup: func(m *mockIdentityService) {
				m.On("DescribeGroup", mock.Anything, "fleet").Return(interfaces.GroupRef{}, interfaces.ErrGroupNotFound).Once()
				m.On("CreateGroup", mock.Anything, "fleet").Return(interfaces.GroupRef{}, interfaces.ErrGroupExists).Once()
				m.On("DescribeGroup", mock.Anything, "fleet").Return(fleet, nil).Once()
			},
		},
		{
			name: "describe failure is not masked",
			setup: func(m *mockIdentityService) {
				m.On("DescribeGroup", mock.Anything, "fleet").Return(interfaces.GroupRef{}, unavailable).Once()
			},
			expectErr: unavailable,
		},
		{
			name: "create failure is not masked",
			setup: func(m *mockIdentityService) {
				m.On("DescribeGroup", mock.Anything, "fleet").Return(interfaces.GroupRef{}, interfaces.ErrGroupNotFound).Once()
				m.On("CreateGroup", mock.Anything, "fleet").Return(interfaces.GroupRef{}, unavailable).Once()
			},
			expectErr: unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockIdentityService{}
			tt.setup(svc)

			group, err := New(svc, testLogger()).EnsureGroup(context.Background(), "fleet")
			if tt.expectErr != nil {
				require.ErrorIs(t, err, tt.expectErr)
				var provisionErr *interfaces.ProvisionError
				require.ErrorAs(t, err, &provisionErr)
				assert.Equal(t, interfaces.StepEnsureGroup, provisionErr.Step)
			} else {
				require.NoError(t, err)
				assert.Equal(t, fleet, group)
			}
			svc.AssertExpectations(t)
			svc.AssertNotCalled(t, "CreateIdentity", mock.Anything, mock.Anything)
		})
	}
}

func TestEnsureGroup_Idempotent(t *testing.T) {
	svc := identity.NewMemoryService()
	p := New(svc, testLogger())

	first, err := p.EnsureGroup(context.Background(), "fleet")
	require.NoError(t, err)
	second, err := p.EnsureGroup(context.Background(), "fleet")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	groups, _, _ := svc.Counts()
	assert.Equal(t, 1, groups)
}

func TestProvision(t *testing.T) {
	svc := identity.NewMemoryService()
	certPEM := testCertificate(t, "DEV123")

	outcome, err := New(svc, testLogger()).Provision(context.Background(), "DEV123", certPEM, "fleet")
	require.NoError(t, err)

	assert.Equal(t, "fleet", outcome.Group.Name)
	assert.Equal(t, "DEV123", outcome.Identity.Name)
	assert.True(t, outcome.CreatedIdentity)
	assert.True(t, outcome.RegisteredCertificate)

	expectedID, err := cryptoutils.CertificateID(certPEM)
	require.NoError(t, err)
	assert.Equal(t, expectedID, outcome.Principal.ID)

	assert.Equal(t, []string{"DEV123"}, svc.Members("fleet"))
	assert.Equal(t, []string{outcome.Principal.ARN}, svc.Principals("DEV123"))
}

func TestProvision_RetryAfterPartialFailure(t *testing.T) {
	svc := identity.NewMemoryService()
	p := New(svc, testLogger())
	certPEM := testCertificate(t, "DEV123")

	svc.FailNext("RegisterCertificate", errors.New("throttled"))
	_, err := p.Provision(context.Background(), "DEV123", certPEM, "fleet")
	var provisionErr *interfaces.ProvisionError
	require.ErrorAs(t, err, &provisionErr)
	assert.Equal(t, interfaces.StepRegisterCertificate, provisionErr.Step)
	assert.True(t, interfaces.IsRetryable(err))

	// The thing exists but has no principal.
	_, things, certs := svc.Counts()
	assert.Equal(t, 1, things)
	assert.Equal(t, 0, certs)
	assert.Empty(t, svc.Principals("DEV123"))

	outcome, err := p.Provision(context.Background(), "DEV123", certPEM, "fleet")
	require.NoError(t, err)
	assert.False(t, outcome.CreatedIdentity)
	assert.True(t, outcome.RegisteredCertificate)

	_, things, certs = svc.Counts()
	assert.Equal(t, 1, things)
	assert.Equal(t, 1, certs)
	assert.Len(t, svc.Principals("DEV123"), 1)
}

func TestProvision_ReusesRegisteredCertificate(t *testing.T) {
	svc := identity.NewMemoryService()
	p := New(svc, testLogger())
	certPEM := testCertificate(t, "DEV123")

	svc.FailNext("AttachPrincipal", errors.New("timeout"))
	_, err := p.Provision(context.Background(), "DEV123", certPEM, "fleet")
	var provisionErr *interfaces.ProvisionError
	require.ErrorAs(t, err, &provisionErr)
	assert.Equal(t, interfaces.StepAttachPrincipal, provisionErr.Step)

	outcome, err := p.Provision(context.Background(), "DEV123", certPEM, "fleet")
	require.NoError(t, err)
	assert.False(t, outcome.CreatedIdentity)
	assert.False(t, outcome.RegisteredCertificate)

	var methods []string
	for _, call := range svc.Calls() {
		methods = append(methods, call.Method)
	}
	assert.Contains(t, methods, "DescribeIdentity")
	assert.Contains(t, methods, "DescribeCertificate")
	assert.Len(t, svc.Principals("DEV123"), 1)
}

func TestProvision_StepErrors(t *testing.T) {
	steps := map[string]interfaces.ProvisionStep{
		"DescribeGroup":       interfaces.StepEnsureGroup,
		"CreateIdentity":      interfaces.StepCreateIdentity,
		"RegisterCertificate": interfaces.StepRegisterCertificate,
		"AttachToGroup":       interfaces.StepAttachToGroup,
		"AttachPrincipal":     interfaces.StepAttachPrincipal,
	}

	for method, step := range steps {
		t.Run(method, func(t *testing.T) {
			svc := identity.NewMemoryService()
			injected := fmt.Errorf("%s failed", method)
			svc.FailNext(method, injected)

			_, err := New(svc, testLogger()).Provision(context.Background(), "DEV123", testCertificate(t, "DEV123"), "fleet")
			require.ErrorIs(t, err, injected)

			var provisionErr *interfaces.ProvisionError
			require.ErrorAs(t, err, &provisionErr)
			assert.Equal(t, step, provisionErr.Step)
		})
	}
}

func TestProvision_ReactivatesInactiveCertificate(t *testing.T) {
	svc := identity.NewMemoryService()
	p := New(svc, testLogger())
	certPEM := testCertificate(t, "DEV123")
	id, err := cryptoutils.CertificateID(certPEM)
	require.NoError(t, err)

	// A teardown deactivated the certificate and then failed.
	svc.FailNext("AttachPrincipal", errors.New("timeout"))
	_, err = p.Provision(context.Background(), "DEV123", certPEM, "fleet")
	require.Error(t, err)
	require.NoError(t, svc.SetCertificateStatus(id, interfaces.CertificateStatusInactive))

	outcome, err := p.Provision(context.Background(), "DEV123", certPEM, "fleet")
	require.NoError(t, err)
	assert.False(t, outcome.RegisteredCertificate)
	assert.Equal(t, interfaces.CertificateStatusActive, outcome.Principal.Status)
	assert.Equal(t, interfaces.CertificateStatusActive, svc.CertificateStatus(id))
	assert.Equal(t, []string{outcome.Principal.ARN}, svc.Principals("DEV123"))
}

func TestProvision_InactiveCertificateOrdering(t *testing.T) {
	svc := &mockIdentityService{}
	ctx := context.Background()
	certPEM := testCertificate(t, "DEV123")
	id, err := cryptoutils.CertificateID(certPEM)
	require.NoError(t, err)

	group := interfaces.GroupRef{Name: "fleet", ARN: "arn:group"}
	thing := interfaces.IdentityRef{Name: "DEV123", ARN: "arn:thing"}
	inactive := interfaces.PrincipalRef{ID: id, ARN: "arn:cert", Status: interfaces.CertificateStatusInactive}
	active := interfaces.PrincipalRef{ID: id, ARN: "arn:cert", Status: interfaces.CertificateStatusActive}

	svc.On("DescribeGroup", ctx, "fleet").Return(group, nil)
	svc.On("CreateIdentity", ctx, "DEV123").Return(interfaces.IdentityRef{}, interfaces.ErrIdentityExists)
	svc.On("DescribeIdentity", ctx, "DEV123").Return(thing, nil)
	svc.On("RegisterCertificate", ctx, certPEM).Return(interfaces.PrincipalRef{}, interfaces.ErrCertificateExists)
	svc.On("DescribeCertificate", ctx, id).Return(inactive, nil)
	activate := svc.On("ActivateCertificate", ctx, id).Return(nil)
	svc.On("AttachToGroup", ctx, thing, group).Return(nil)
	svc.On("AttachPrincipal", ctx, thing, active).Return(nil).NotBefore(activate)

	outcome, err := New(svc, testLogger()).Provision(ctx, "DEV123", certPEM, "fleet")
	require.NoError(t, err)
	assert.Equal(t, active, outcome.Principal)
	svc.AssertExpectations(t)
}

func TestProvision_RevokedCertificate(t *testing.T) {
	svc := identity.NewMemoryService()
	p := New(svc, testLogger())
	certPEM := testCertificate(t, "DEV123")
	id, err := cryptoutils.CertificateID(certPEM)
	require.NoError(t, err)

	svc.FailNext("AttachPrincipal", errors.New("timeout"))
	_, err = p.Provision(context.Background(), "DEV123", certPEM, "fleet")
	require.Error(t, err)
	require.NoError(t, svc.SetCertificateStatus(id, interfaces.CertificateStatusRevoked))

	_, err = p.Provision(context.Background(), "DEV123", certPEM, "fleet")
	var provisionErr *interfaces.ProvisionError
	require.ErrorAs(t, err, &provisionErr)
	assert.Equal(t, interfaces.StepRegisterCertificate, provisionErr.Step)
	assert.ErrorIs(t, err, interfaces.ErrCertificateRevoked)
	assert.False(t, interfaces.IsRetryable(err))

	for _, call := range svc.Calls() {
		assert.NotEqual(t, "ActivateCertificate", call.Method)
	}
	assert.Empty(t, svc.Principals("DEV123"))
}
