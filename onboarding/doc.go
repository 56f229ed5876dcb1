// Package onboarding runs production records through verification, claim
// extraction and identity provisioning.
//
// A Workflow is a linear state machine over one record:
//
//	Received -> Verified -> ClaimExtracted -> Provisioned -> Complete
//
// with Failed reachable from every non-terminal state. The workflow never
// touches the record source. Deleting the source record is the caller's
// job, and the Processor does it only for results in the Complete state;
// records that failed for any reason are preserved for investigation or
// retry.
package onboarding
