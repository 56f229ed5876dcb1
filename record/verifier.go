package record

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/ruteri/device-onboarding-backend/interfaces"
)

// Algorithm is the only signature algorithm producers are allowed to use.
const Algorithm = jose.ES256

// Verified is a record whose signature has been checked against the
// configured signing key. It can only be created by Verifier.Verify.
type Verified struct {
	envelope *Envelope
	payload  []byte
}

// Header returns the verified protected header.
func (v *Verified) Header() Header {
	return v.envelope.header
}

// Payload returns the verified payload, which is empty for most producers.
func (v *Verified) Payload() []byte {
	return v.payload
}

// Verifier checks record signatures. It holds only immutable key material
// and is safe for concurrent use.
type Verifier struct {
	key *ecdsa.PublicKey
}

// NewVerifier creates a verifier for the producer's P-256 signing key.
func NewVerifier(key *ecdsa.PublicKey) (*Verifier, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	if key.Curve == nil || key.Curve.Params().Name != "P-256" {
		return nil, errors.New("signing key must be on curve P-256")
	}
	return &Verifier{key: key}, nil
}

// Verify checks the envelope signature over the header and payload
// segments as transmitted. Every failure is a *interfaces.SignatureError.
func (v *Verifier) Verify(env *Envelope) (*Verified, error) {
	if v == nil || v.key == nil {
		return nil, &interfaces.SignatureError{
			Err: fmt.Errorf("%w: verifier has no signing key", interfaces.ErrInvalidSignature),
		}
	}
	if env == nil {
		return nil, malformed("nil envelope")
	}

	if alg := env.header.Algorithm; alg != string(Algorithm) {
		return nil, &interfaces.SignatureError{
			Err: fmt.Errorf("%w: %q", interfaces.ErrUnsupportedAlgorithm, alg),
		}
	}

	jws, err := jose.ParseSigned(env.compact, []jose.SignatureAlgorithm{Algorithm})
	if err != nil {
		return nil, malformed("%v", err)
	}

	payload, err := jws.Verify(v.key)
	if err != nil {
		return nil, &interfaces.SignatureError{
			Err: fmt.Errorf("%w: %v", interfaces.ErrInvalidSignature, err),
		}
	}

	return &Verified{envelope: env, payload: payload}, nil
}

// Open parses and verifies a raw record.
func Open(raw []byte, verifier *Verifier) (*Verified, error) {
	env, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return verifier.Verify(env)
}
