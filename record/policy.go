package record

import "fmt"

// IdentityPolicy selects which claim names the provisioned thing.
type IdentityPolicy string

const (
	// PolicyDeviceID names the thing after the deviceID claim.
	PolicyDeviceID IdentityPolicy = "device-id"

	// PolicyCommonName names the thing after the certificate subject CN.
	PolicyCommonName IdentityPolicy = "common-name"
)

// ParseIdentityPolicy converts a configuration value into a policy.
func ParseIdentityPolicy(s string) (IdentityPolicy, error) {
	p := IdentityPolicy(s)
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Validate reports whether p is a known policy.
func (p IdentityPolicy) Validate() error {
	switch p {
	case PolicyDeviceID, PolicyCommonName:
		return nil
	default:
		return fmt.Errorf("unknown identity policy %q (expected %q or %q)", string(p), PolicyDeviceID, PolicyCommonName)
	}
}

func (p IdentityPolicy) String() string {
	return string(p)
}
