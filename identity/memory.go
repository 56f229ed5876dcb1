package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruteri/device-onboarding-backend/cryptoutils"
	"github.com/ruteri/device-onboarding-backend/interfaces"
)

const memoryARNPrefix = "arn:aws:iot:local:000000000000:"

// Call records one invocation of a MemoryService method.
type Call struct {
	Method string
	Arg    string
}

// MemoryService is an in-memory interfaces.IdentityService. It is safe for
// concurrent use.
type MemoryService struct {
	mu sync.RWMutex

	groups       map[string]interfaces.GroupRef
	identities   map[string]interfaces.IdentityRef
	certificates map[string]interfaces.PrincipalRef
	members      map[string]map[string]bool // group -> things
	principals   map[string]map[string]bool // thing -> principal ARNs

	calls    []Call
	failures map[string]error
}

// NewMemoryService creates an empty registry.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		groups:       make(map[string]interfaces.GroupRef),
		identities:   make(map[string]interfaces.IdentityRef),
		certificates: make(map[string]interfaces.PrincipalRef),
		members:      make(map[string]map[string]bool),
		principals:   make(map[string]map[string]bool),
		failures:     make(map[string]error),
	}
}

// FailNext makes the next call of method return err instead of running.
func (m *MemoryService) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

// Calls returns the methods invoked so far, in order.
func (m *MemoryService) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Call(nil), m.calls...)
}

// record logs the call and returns an injected failure, if any.
// The caller must hold the write lock.
func (m *MemoryService) record(ctx context.Context, method, arg string) error {
	m.calls = append(m.calls, Call{Method: method, Arg: arg})
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := m.failures[method]; ok {
		delete(m.failures, method)
		return err
	}
	return nil
}

func (m *MemoryService) DescribeGroup(ctx context.Context, name string) (interfaces.GroupRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "DescribeGroup", name); err != nil {
		return interfaces.GroupRef{}, err
	}

	group, ok := m.groups[name]
	if !ok {
		return interfaces.GroupRef{}, fmt.Errorf("%w: %s", interfaces.ErrGroupNotFound, name)
	}
	return group, nil
}

func (m *MemoryService) CreateGroup(ctx context.Context, name string) (interfaces.GroupRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "CreateGroup", name); err != nil {
		return interfaces.GroupRef{}, err
	}

	if _, ok := m.groups[name]; ok {
		return interfaces.GroupRef{}, fmt.Errorf("%w: %s", interfaces.ErrGroupExists, name)
	}
	group := interfaces.GroupRef{Name: name, ARN: memoryARNPrefix + "thinggroup/" + name}
	m.groups[name] = group
	m.members[name] = make(map[string]bool)
	return group, nil
}

func (m *MemoryService) CreateIdentity(ctx context.Context, name string) (interfaces.IdentityRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "CreateIdentity", name); err != nil {
		return interfaces.IdentityRef{}, err
	}

	if _, ok := m.identities[name]; ok {
		return interfaces.IdentityRef{}, fmt.Errorf("%w: %s", interfaces.ErrIdentityExists, name)
	}
	identity := interfaces.IdentityRef{Name: name, ARN: memoryARNPrefix + "thing/" + name}
	m.identities[name] = identity
	m.principals[name] = make(map[string]bool)
	return identity, nil
}

func (m *MemoryService) DescribeIdentity(ctx context.Context, name string) (interfaces.IdentityRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "DescribeIdentity", name); err != nil {
		return interfaces.IdentityRef{}, err
	}

	identity, ok := m.identities[name]
	if !ok {
		return interfaces.IdentityRef{}, fmt.Errorf("%w: %s", interfaces.ErrIdentityNotFound, name)
	}
	return identity, nil
}

func (m *MemoryService) RegisterCertificate(ctx context.Context, certificatePEM string) (interfaces.PrincipalRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "RegisterCertificate", ""); err != nil {
		return interfaces.PrincipalRef{}, err
	}

	id, err := cryptoutils.CertificateID(certificatePEM)
	if err != nil {
		return interfaces.PrincipalRef{}, fmt.Errorf("invalid certificate: %w", err)
	}
	if _, ok := m.certificates[id]; ok {
		return interfaces.PrincipalRef{}, fmt.Errorf("%w: %s", interfaces.ErrCertificateExists, id)
	}
	principal := interfaces.PrincipalRef{
		ID:     id,
		ARN:    memoryARNPrefix + "cert/" + id,
		Status: interfaces.CertificateStatusActive,
	}
	m.certificates[id] = principal
	return principal, nil
}

func (m *MemoryService) DescribeCertificate(ctx context.Context, certificateID string) (interfaces.PrincipalRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "DescribeCertificate", certificateID); err != nil {
		return interfaces.PrincipalRef{}, err
	}

	principal, ok := m.certificates[certificateID]
	if !ok {
		return interfaces.PrincipalRef{}, fmt.Errorf("%w: %s", interfaces.ErrCertificateNotFound, certificateID)
	}
	return principal, nil
}

func (m *MemoryService) ActivateCertificate(ctx context.Context, certificateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "ActivateCertificate", certificateID); err != nil {
		return err
	}

	principal, ok := m.certificates[certificateID]
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrCertificateNotFound, certificateID)
	}
	if principal.Status == interfaces.CertificateStatusRevoked {
		return fmt.Errorf("%w: %s", interfaces.ErrCertificateRevoked, certificateID)
	}
	principal.Status = interfaces.CertificateStatusActive
	m.certificates[certificateID] = principal
	return nil
}

// SetCertificateStatus changes the status of a registered certificate, the
// way an operator or a teardown would.
func (m *MemoryService) SetCertificateStatus(certificateID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	principal, ok := m.certificates[certificateID]
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrCertificateNotFound, certificateID)
	}
	principal.Status = status
	m.certificates[certificateID] = principal
	return nil
}

// CertificateStatus returns the status of a registered certificate.
func (m *MemoryService) CertificateStatus(certificateID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.certificates[certificateID].Status
}

func (m *MemoryService) AttachToGroup(ctx context.Context, identity interfaces.IdentityRef, group interfaces.GroupRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "AttachToGroup", identity.Name); err != nil {
		return err
	}

	if _, ok := m.identities[identity.Name]; !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrIdentityNotFound, identity.Name)
	}
	members, ok := m.members[group.Name]
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrGroupNotFound, group.Name)
	}
	members[identity.Name] = true
	return nil
}

func (m *MemoryService) AttachPrincipal(ctx context.Context, identity interfaces.IdentityRef, principal interfaces.PrincipalRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx, "AttachPrincipal", identity.Name); err != nil {
		return err
	}

	attached, ok := m.principals[identity.Name]
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrIdentityNotFound, identity.Name)
	}
	if _, ok := m.certificates[principal.ID]; !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrCertificateNotFound, principal.ID)
	}
	attached[principal.ARN] = true
	return nil
}

// Members returns the things attached to a group.
func (m *MemoryService) Members(group string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var things []string
	for thing := range m.members[group] {
		things = append(things, thing)
	}
	return things
}

// Principals returns the principal ARNs attached to a thing.
func (m *MemoryService) Principals(thing string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var arns []string
	for arn := range m.principals[thing] {
		arns = append(arns, arn)
	}
	return arns
}

// Counts returns the number of groups, things and certificates.
func (m *MemoryService) Counts() (groups, identities, certificates int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups), len(m.identities), len(m.certificates)
}
