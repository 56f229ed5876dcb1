package cryptoutils

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const (
	pemCertificateHeader = "-----BEGIN CERTIFICATE-----"
	pemCertificateFooter = "-----END CERTIFICATE-----"

	// pemLineWidth is the column width used by WrapCertificatePEM.
	pemLineWidth = 64
)

// FrameCertificatePEM wraps a base64 DER certificate body in PEM framing
// using the platform line separator. The body is kept on a single line and
// no separator follows the footer. Provisioning consumes this form.
func FrameCertificatePEM(body string) string {
	return strings.Join([]string{pemCertificateHeader, body, pemCertificateFooter}, LineSeparator)
}

// WrapCertificatePEM frames the body like FrameCertificatePEM but wraps it
// at 64 columns and terminates the footer with a line separator, the layout
// produced by most certificate tooling.
func WrapCertificatePEM(body string) string {
	lines := []string{pemCertificateHeader}
	for len(body) > pemLineWidth {
		lines = append(lines, body[:pemLineWidth])
		body = body[pemLineWidth:]
	}
	if body != "" {
		lines = append(lines, body)
	}
	lines = append(lines, pemCertificateFooter+LineSeparator)
	return strings.Join(lines, LineSeparator)
}

// ParseCertificateBody decodes a standard base64 DER certificate body.
func ParseCertificateBody(body string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode certificate body: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// ParseCertificatePEM parses the first CERTIFICATE block of a PEM document.
func ParseCertificatePEM(certPEM string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("failed to decode certificate PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// CertificateID returns the identifier AWS IoT assigns to a registered
// certificate: the lowercase hex SHA-256 of its DER encoding.
func CertificateID(certPEM string) (string, error) {
	cert, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:]), nil
}
