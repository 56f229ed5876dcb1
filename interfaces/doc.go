// Package interfaces defines core interfaces and types for the onboarding
// backend, separating interface definitions from implementations.
//
// # Record Sources
//
// RecordSource: Supplies raw production-record bytes by location and deletes
// them once onboarding has completed.
//
// # Identity Service
//
// IdentityService: The remote device-identity registry (AWS IoT Core in
// production). Operations are individually idempotent or report the
// ErrGroupExists / ErrIdentityExists / ErrCertificateExists conditions so
// that the provisioner can resume a partially provisioned device.
//
// # Error Kinds
//
// SignatureError, ClaimError and ProvisionError classify every onboarding
// failure. Only ProvisionError is retryable; see IsRetryable.
package interfaces
