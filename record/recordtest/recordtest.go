// Package recordtest builds signed production records for tests.
package recordtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/ruteri/device-onboarding-backend/cryptoutils"
	"github.com/stretchr/testify/require"
)

// ProducerKeyHex is the public key of the manufacturer key that signed
// record/testdata/production_record.prd.
const ProducerKeyHex = "814634CCD80A05F0511CCF358415FBB8E55FBBA96D520DD0E7CE37C1AAD671884ECAAFD95879FCAD78974ABDAAB7583270B5BDF1EB3B9A7CE84F29F160E5F983"

// ProducerDeviceID is the deviceID (and certificate CN) in that record.
const ProducerDeviceID = "18003B001051383432323536"

// Producer signs records the way the production line does.
type Producer struct {
	Key *ecdsa.PrivateKey
}

// NewProducer generates a fresh P-256 signing key.
func NewProducer(t testing.TB) *Producer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &Producer{Key: key}
}

// PublicKey returns the verification key.
func (p *Producer) PublicKey() *ecdsa.PublicKey {
	return &p.Key.PublicKey
}

// PublicKeyHex returns the verification key in configuration form.
func (p *Producer) PublicKeyHex() string {
	return cryptoutils.SigningKeyHex(&p.Key.PublicKey)
}

// Sign produces a compact ES256 record with an empty payload. A nil dev
// omits the claims header entirely.
func (p *Producer) Sign(t testing.TB, dev any) []byte {
	t.Helper()

	opts := (&jose.SignerOptions{}).
		WithType("JOSE").
		WithHeader("kid", "OEM_PR_Signing").
		WithHeader("iat", 1715347010).
		WithHeader("sqn", "1")
	if dev != nil {
		opts = opts.WithHeader("dev", dev)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: p.Key}, opts)
	require.NoError(t, err)

	obj, err := signer.Sign([]byte{})
	require.NoError(t, err)

	compact, err := obj.CompactSerialize()
	require.NoError(t, err)
	return []byte(compact)
}

// DeviceRecord signs a record for a freshly generated certificate whose
// CN equals deviceID. It returns the record and the certificate body.
func (p *Producer) DeviceRecord(t testing.TB, deviceID string) ([]byte, string) {
	t.Helper()

	body, err := cryptoutils.SelfSignedDeviceCert(deviceID)
	require.NoError(t, err)

	return p.Sign(t, map[string]string{
		"deviceID":         deviceID,
		"deviceCert":       body,
		"certPubKey":       "90EC8C8A741D04CC",
		"productionResult": "pass",
	}), body
}

// FlipSignatureByte returns a copy of the record with one bit of the
// signature changed.
func FlipSignatureByte(record []byte) []byte {
	tampered := append([]byte(nil), record...)
	i := len(tampered) - 5
	if tampered[i] == 'A' {
		tampered[i] = 'B'
	} else {
		tampered[i] = 'A'
	}
	return tampered
}
