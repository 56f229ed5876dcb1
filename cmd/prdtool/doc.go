// Package main (cmd/prdtool) is the operator tool for production records.
//
// Commands:
//
//	onboard       Onboard records straight from a record source, without a server
//	submit        Ask a running onboarding server to onboard records
//	verify        Verify a record file against the producer key and print its claims
//	extract-cert  Print the device certificate of a record file as wrapped PEM
//	delete-group  Tear down a thing group: things, their certificates, then the group
//
// onboard accepts the same pipeline flags as onboarding-server, including
// --dry-run:
//
//	prdtool onboard --source file:///var/prd --dry-run \
//	  --thing-group-name fleet --public-key $PUBLIC_KEY --record line3/DEV123.prd
//
// extract-cert does not check the signature and is meant for inspection only.
package main
