package network

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"CredTree/internal/types"
)

// certValidity is how long a generated certificate stays valid.
const certValidity = 365 * 24 * time.Hour

// generateCertificate creates a self-signed X.509 certificate for an ed25519 key.
// Both ends present one; the key inside is the party's identity.
func generateCertificate(privateKey ed25519.PrivateKey) (tls.Certificate, error) {
	publicKey := privateKey.Public().(ed25519.PublicKey)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial number:\n%w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   fmt.Sprintf("credtree-%x", publicKey[:8]),
			Organization: []string{"credtree"},
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, publicKey, privateKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate:\n%w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshal private key:\n%w", err)
	}

	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create TLS certificate:\n%w", err)
	}

	return cert, nil
}

// peerIdentity returns the identity carried by the remote certificate:
// the raw ed25519 public key.
func peerIdentity(state tls.ConnectionState) (types.Identity, error) {
	if len(state.PeerCertificates) == 0 {
		return types.Identity{}, ErrNoCertificate
	}

	pub, ok := state.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: certificate key is not ed25519", ErrNoCertificate)
	}

	id, ok := types.IdentityFromBytes(pub)
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: unexpected key size %d", ErrNoCertificate, len(pub))
	}

	return id, nil
}

// IdentityOf returns the identity a private key authenticates as.
func IdentityOf(key ed25519.PrivateKey) types.Identity {
	id, _ := types.IdentityFromBytes(key.Public().(ed25519.PublicKey))
	return id
}

// tlsConfig builds the shared TLS settings. Peers are not verified against a
// CA: the certificate key itself is the identity.
func tlsConfig(key ed25519.PrivateKey) (*tls.Config, error) {
	cert, err := generateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true,
		NextProtos:         []string{alpnProtocol},
		MinVersion:         tls.VersionTLS13,
	}, nil
}
