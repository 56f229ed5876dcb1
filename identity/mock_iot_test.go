package identity

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/iot"
	"github.com/aws/aws-sdk-go/service/iot/iotiface"
	"github.com/stretchr/testify/mock"
)

// mockIoT implements the subset of iotiface.IoTAPI used by IoTService.
// Calling any other method panics through the nil embedded interface.
type mockIoT struct {
	iotiface.IoTAPI
	mock.Mock
}

func (m *mockIoT) DescribeThingGroupWithContext(ctx aws.Context, in *iot.DescribeThingGroupInput, _ ...request.Option) (*iot.DescribeThingGroupOutput, error) {
	args := m.Called(aws.StringValue(in.ThingGroupName))
	out, _ := args.Get(0).(*iot.DescribeThingGroupOutput)
	return out, args.Error(1)
}

func (m *mockIoT) CreateThingGroupWithContext(ctx aws.Context, in *iot.CreateThingGroupInput, _ ...request.Option) (*iot.CreateThingGroupOutput, error) {
	args := m.Called(aws.StringValue(in.ThingGroupName))
	out, _ := args.Get(0).(*iot.CreateThingGroupOutput)
	return out, args.Error(1)
}

func (m *mockIoT) CreateThingWithContext(ctx aws.Context, in *iot.CreateThingInput, _ ...request.Option) (*iot.CreateThingOutput, error) {
	args := m.Called(aws.StringValue(in.ThingName))
	out, _ := args.Get(0).(*iot.CreateThingOutput)
	return out, args.Error(1)
}

func (m *mockIoT) DescribeThingWithContext(ctx aws.Context, in *iot.DescribeThingInput, _ ...request.Option) (*iot.DescribeThingOutput, error) {
	args := m.Called(aws.StringValue(in.ThingName))
	out, _ := args.Get(0).(*iot.DescribeThingOutput)
	return out, args.Error(1)
}

func (m *mockIoT) RegisterCertificateWithoutCAWithContext(ctx aws.Context, in *iot.RegisterCertificateWithoutCAInput, _ ...request.Option) (*iot.RegisterCertificateWithoutCAOutput, error) {
	args := m.Called(aws.StringValue(in.CertificatePem), aws.StringValue(in.Status))
	out, _ := args.Get(0).(*iot.RegisterCertificateWithoutCAOutput)
	return out, args.Error(1)
}

func (m *mockIoT) DescribeCertificateWithContext(ctx aws.Context, in *iot.DescribeCertificateInput, _ ...request.Option) (*iot.DescribeCertificateOutput, error) {
	args := m.Called(aws.StringValue(in.CertificateId))
	out, _ := args.Get(0).(*iot.DescribeCertificateOutput)
	return out, args.Error(1)
}

func (m *mockIoT) AddThingToThingGroupWithContext(ctx aws.Context, in *iot.AddThingToThingGroupInput, _ ...request.Option) (*iot.AddThingToThingGroupOutput, error) {
	args := m.Called(aws.StringValue(in.ThingName), aws.StringValue(in.ThingGroupName))
	return &iot.AddThingToThingGroupOutput{}, args.Error(0)
}

func (m *mockIoT) AttachThingPrincipalWithContext(ctx aws.Context, in *iot.AttachThingPrincipalInput, _ ...request.Option) (*iot.AttachThingPrincipalOutput, error) {
	args := m.Called(aws.StringValue(in.ThingName), aws.StringValue(in.Principal))
	return &iot.AttachThingPrincipalOutput{}, args.Error(0)
}

func (m *mockIoT) ListThingsInThingGroupPagesWithContext(ctx aws.Context, in *iot.ListThingsInThingGroupInput, fn func(*iot.ListThingsInThingGroupOutput, bool) bool, _ ...request.Option) error {
	args := m.Called(aws.StringValue(in.ThingGroupName))
	pages, _ := args.Get(0).([]*iot.ListThingsInThingGroupOutput)
	for i, page := range pages {
		if !fn(page, i == len(pages)-1) {
			break
		}
	}
	return args.Error(1)
}

func (m *mockIoT) ListThingPrincipalsPagesWithContext(ctx aws.Context, in *iot.ListThingPrincipalsInput, fn func(*iot.ListThingPrincipalsOutput, bool) bool, _ ...request.Option) error {
	args := m.Called(aws.StringValue(in.ThingName))
	fn(&iot.ListThingPrincipalsOutput{Principals: aws.StringSlice(args.Get(0).([]string))}, true)
	return args.Error(1)
}

func (m *mockIoT) DetachThingPrincipalWithContext(ctx aws.Context, in *iot.DetachThingPrincipalInput, _ ...request.Option) (*iot.DetachThingPrincipalOutput, error) {
	args := m.Called(aws.StringValue(in.ThingName), aws.StringValue(in.Principal))
	return &iot.DetachThingPrincipalOutput{}, args.Error(0)
}

func (m *mockIoT) UpdateCertificateWithContext(ctx aws.Context, in *iot.UpdateCertificateInput, _ ...request.Option) (*iot.UpdateCertificateOutput, error) {
	args := m.Called(aws.StringValue(in.CertificateId), aws.StringValue(in.NewStatus))
	return &iot.UpdateCertificateOutput{}, args.Error(0)
}

func (m *mockIoT) ListAttachedPoliciesPagesWithContext(ctx aws.Context, in *iot.ListAttachedPoliciesInput, fn func(*iot.ListAttachedPoliciesOutput, bool) bool, _ ...request.Option) error {
	args := m.Called(aws.StringValue(in.Target))
	var policies []*iot.Policy
	for _, name := range args.Get(0).([]string) {
		policies = append(policies, &iot.Policy{PolicyName: aws.String(name)})
	}
	fn(&iot.ListAttachedPoliciesOutput{Policies: policies}, true)
	return args.Error(1)
}

func (m *mockIoT) DetachPolicyWithContext(ctx aws.Context, in *iot.DetachPolicyInput, _ ...request.Option) (*iot.DetachPolicyOutput, error) {
	args := m.Called(aws.StringValue(in.PolicyName), aws.StringValue(in.Target))
	return &iot.DetachPolicyOutput{}, args.Error(0)
}

func (m *mockIoT) DeleteCertificateWithContext(ctx aws.Context, in *iot.DeleteCertificateInput, _ ...request.Option) (*iot.DeleteCertificateOutput, error) {
	args := m.Called(aws.StringValue(in.CertificateId))
	return &iot.DeleteCertificateOutput{}, args.Error(0)
}

func (m *mockIoT) DeleteThingWithContext(ctx aws.Context, in *iot.DeleteThingInput, _ ...request.Option) (*iot.DeleteThingOutput, error) {
	args := m.Called(aws.StringValue(in.ThingName))
	return &iot.DeleteThingOutput{}, args.Error(0)
}

func (m *mockIoT) DeleteThingGroupWithContext(ctx aws.Context, in *iot.DeleteThingGroupInput, _ ...request.Option) (*iot.DeleteThingGroupOutput, error) {
	args := m.Called(aws.StringValue(in.ThingGroupName))
	return &iot.DeleteThingGroupOutput{}, args.Error(0)
}
