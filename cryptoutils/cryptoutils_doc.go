// Package cryptoutils holds the key and certificate helpers shared by the
// record verifier, the claim extractor and the identity provisioner.
//
// # Signing Key
//
// Production records are signed by the manufacturer with ES256. The public
// key is configured as the hex encoding of the raw P-256 point coordinates
// (x||y, 32 bytes each):
//
//	key, err := cryptoutils.ParseSigningKeyHex(os.Getenv("PUBLIC_KEY"))
//
// # Certificate Normalization
//
// Device certificates arrive as a bare base64 DER body. FrameCertificatePEM
// adds PEM framing using the platform line separator without wrapping the
// body, which is the form registered with the identity service.
// WrapCertificatePEM produces the conventional 64-column layout for humans.
//
// CertificateID computes the id AWS IoT assigns to a certificate, which lets
// the provisioner look up a certificate registered by an earlier attempt.
package cryptoutils
