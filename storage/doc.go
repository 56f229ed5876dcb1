// Package storage provides record sources: the places signed production
// records are fetched from and, once a device has been onboarded, deleted from.
//
//   - S3RecordSource for Amazon S3 and S3-compatible object stores
//   - FileRecordSource for local development and testing
//
// # Source URI Format
//
// Record sources are specified using URI format:
//
//	[scheme]://[auth@]host[/path][?params]
//
// Supported URI schemes:
//
//   - s3://?region=eu-west-1
//   - s3://ACCESS_KEY:SECRET_KEY@/?endpoint=http://minio:9000&path_style=true
//   - file:///var/lib/onboarding/records/
//
// The S3 URI carries no bucket: buckets come from the record locations in
// the S3 event notifications, so a single source serves every bucket the
// credentials can reach.
//
// # Record Locations
//
// A record is addressed by interfaces.RecordLocation, a container (bucket or
// sub-directory) and a key:
//
//	loc, err := interfaces.ParseRecordLocation("s3://factory-records/line-3/0001.prd")
//	data, err := source.Fetch(ctx, loc)
//
// Sources never delete records on their own. The onboarding processor calls
// Delete only after a device has been fully provisioned.
package storage
