package record

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// extensionHeader is the protected-header member carrying the device claims.
const extensionHeader = "dev"

// Header is the decoded protected header of a record.
type Header struct {
	Algorithm      string
	Type           string
	KeyID          string
	GroupID        string
	SequenceNumber string
	IssuedAt       time.Time

	fields map[string]json.RawMessage
}

// Envelope is a parsed, not yet verified, compact JWS. It keeps the segments
// exactly as transmitted.
type Envelope struct {
	compact   string
	header    Header
	payload   []byte
	signature []byte
}

// Parse splits a compact serialization into its segments and decodes the
// protected header. It does not check the signature.
func Parse(raw []byte) (*Envelope, error) {
	compact := string(bytes.TrimSpace(raw))

	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return nil, malformed("expected 3 segments, got %d", len(parts))
	}
	if parts[0] == "" || parts[2] == "" {
		return nil, malformed("empty header or signature segment")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, malformed("header is not base64url: %v", err)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, malformed("payload is not base64url: %v", err)
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, malformed("signature is not base64url: %v", err)
	}

	header, err := parseHeader(headerJSON)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		compact:   compact,
		header:    header,
		payload:   payload,
		signature: signature,
	}, nil
}

// Header returns the decoded protected header.
func (e *Envelope) Header() Header {
	return e.header
}

// Compact returns the serialization the envelope was parsed from.
func (e *Envelope) Compact() string {
	return e.compact
}

// Extension returns the raw clear-text claims block, if present.
func (h Header) Extension() (json.RawMessage, bool) {
	raw, ok := h.fields[extensionHeader]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func parseHeader(data []byte) (Header, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Header{}, malformed("header is not a JSON object: %v", err)
	}

	h := Header{fields: fields}
	if err := json.Unmarshal(fields["alg"], &h.Algorithm); err != nil || h.Algorithm == "" {
		return Header{}, malformed("header has no alg")
	}

	h.Type = stringField(fields["typ"])
	h.KeyID = stringField(fields["kid"])
	h.GroupID = stringField(fields["gid"])
	h.SequenceNumber = stringField(fields["sqn"])

	var iat int64
	if err := json.Unmarshal(fields["iat"], &iat); err == nil && iat > 0 {
		h.IssuedAt = time.Unix(iat, 0).UTC()
	}

	return h, nil
}

// stringField reads a header member that producers emit either as a JSON
// string or a JSON number. Anything else reads as empty.
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String()
		}
	}
	return ""
}

func malformed(format string, args ...any) error {
	return &interfaces.SignatureError{
		Err: fmt.Errorf("%w: %s", interfaces.ErrMalformedEnvelope, fmt.Sprintf(format, args...)),
	}
}
