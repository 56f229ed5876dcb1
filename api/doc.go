/*
Package api defines the wire types of the onboarding HTTP API and its
subpackages:

 1. recordhandler - handlers for record notifications and single-record onboarding
 2. clients - a client library for the API

The server side lives in the httpserver package.

# Endpoints

  - POST /api/v1/records/events - S3 event notification listing created records
  - POST /api/v1/records/onboard - onboard one record given as {"bucket": "...", "key": "..."}

Both endpoints reply with the per-record onboarding state. A record that
failed signature or claim validation is reported with status 422; it is
kept in its bucket for investigation and redelivering it will not help. A
record that failed on a remote call is reported with status 503 so that
the sender redelivers the notification; retries are safe because every
provisioning step tolerates the state left by an earlier attempt.
*/
package api
