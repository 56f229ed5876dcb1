// Package main (cmd/onboarding-server) runs the device onboarding API.
//
// The server receives S3 event notifications for newly uploaded production
// records, verifies each record against the producer signing key, registers
// the device as an AWS IoT thing with its certificate and adds it to the
// configured thing group. A record is deleted from the bucket only once the
// device is fully onboarded; failed records stay in place, and a 503 reply
// asks the sender to redeliver when the failure may be transient.
//
// The signing key is read once at startup, either from --public-key or from
// a HashiCorp Vault KV v2 secret.
//
// Example usage:
//
//	onboarding-server \
//	  --listen-addr 0.0.0.0:8080 \
//	  --thing-group-name factory-fleet \
//	  --public-key $PUBLIC_KEY \
//	  --region eu-central-1 \
//	  --source 's3://?region=eu-central-1'
//
// Use --dry-run with a file:// source to exercise the pipeline locally without
// AWS IoT.
package main
