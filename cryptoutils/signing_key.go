package cryptoutils

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// signingKeyLength is the size of the raw x||y coordinates of a P-256 point.
const signingKeyLength = 64

var ErrInvalidSigningKey = errors.New("invalid signing key")

// ParseSigningKeyHex reconstructs the producer's P-256 public key from the
// hex encoding of its two 32-byte big-endian coordinates.
func ParseSigningKeyHex(s string) (*ecdsa.PublicKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex format: %v", ErrInvalidSigningKey, err)
	}

	return SigningKeyFromCoordinates(raw)
}

// SigningKeyFromCoordinates builds a P-256 public key from raw x||y bytes.
// Points that are not on the curve are rejected.
func SigningKeyFromCoordinates(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) != signingKeyLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSigningKey, signingKeyLength, len(raw))
	}

	uncompressed := append([]byte{0x04}, raw...)
	if _, err := ecdh.P256().NewPublicKey(uncompressed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(raw[:32]),
		Y:     new(big.Int).SetBytes(raw[32:]),
	}, nil
}

// SigningKeyHex is the inverse of ParseSigningKeyHex.
func SigningKeyHex(key *ecdsa.PublicKey) string {
	var raw [signingKeyLength]byte
	key.X.FillBytes(raw[:32])
	key.Y.FillBytes(raw[32:])
	return hex.EncodeToString(raw[:])
}
