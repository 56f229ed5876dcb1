// Package record parses, verifies and extracts claims from signed device
// production records.
//
// A production record is a compact ES256 JWS. The payload is usually empty;
// the device claims live in the "dev" member of the protected header, so they
// are covered by the signature:
//
//	{"alg":"ES256","typ":"JOSE","iat":1715347010,"kid":"OEM_PR_Signing",
//	 "sqn":"1","dev":{"deviceID":"...","deviceCert":"<base64 DER>", ...}}
//
// The only way to obtain a Verified value is through Verifier.Verify (or
// Open, which parses and verifies in one step). ClaimExtractor accepts
// nothing else, so claims can never be read from an unverified record.
package record
