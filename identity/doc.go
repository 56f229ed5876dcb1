// Package identity implements interfaces.IdentityService.
//
// IoTService talks to AWS IoT Core through aws-sdk-go. Things are the
// device identities, thing groups the fleets, and X.509 certificates
// registered without a CA are the principals attached to each thing.
//
// MemoryService is an in-process registry with the same semantics, used by
// tests and by the server's dry-run mode.
package identity
