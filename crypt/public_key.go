package crypt

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
)

// FingerprintPrefix precedes every key fingerprint and payload digest.
const FingerprintPrefix = "sha256:"

// PublicKey is a parsed public key together with its DER-encoded
// SubjectPublicKeyInfo, from which the fingerprint derives.
type PublicKey struct {
	key  crypto.PublicKey
	spki []byte
	path string
}

// LoadPublicKey reads and parses a PEM public key file.
func LoadPublicKey(path string) (*PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file %s: %w", path, err)
	}
	pk, err := ParsePublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key from %s: %w", path, err)
	}
	pk.path = path
	return pk, nil
}

// ParsePublicKey parses a public key from PEM or raw DER
// SubjectPublicKeyInfo bytes, sniffing the format.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	der := data
	if looksLikePEM(data) {
		block, _ := pem.Decode(bytes.TrimLeft(data, " \t\r\n"))
		if block == nil || block.Type != "PUBLIC KEY" {
			return nil, fmt.Errorf("no PUBLIC KEY PEM block found")
		}
		der = block.Bytes
	}

	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SubjectPublicKeyInfo: %w", err)
	}

	// Re-marshal so the fingerprint is computed over a canonical encoding
	// regardless of how the input was framed.
	spki, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode SubjectPublicKeyInfo: %w", err)
	}

	return &PublicKey{key: key, spki: spki}, nil
}

func looksLikePEM(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("-----BEGIN "))
}

// Fingerprint returns "sha256:" followed by the lowercase hex SHA-256 of
// the key's DER SubjectPublicKeyInfo.
func (k *PublicKey) Fingerprint() string {
	sum := sha256.Sum256(k.spki)
	return FingerprintPrefix + hex.EncodeToString(sum[:])
}

// Type reports the key algorithm: "ED25519", "RSA", "ECDSA" or "Unknown".
func (k *PublicKey) Type() string {
	switch k.key.(type) {
	case ed25519.PublicKey:
		return "ED25519"
	case *rsa.PublicKey:
		return "RSA"
	case *ecdsa.PublicKey:
		return "ECDSA"
	default:
		return "Unknown"
	}
}

// Bits reports the key size in bits, 0 when unknown.
func (k *PublicKey) Bits() int {
	switch key := k.key.(type) {
	case ed25519.PublicKey:
		return len(key) * 8
	case *rsa.PublicKey:
		return key.N.BitLen()
	case *ecdsa.PublicKey:
		return key.Curve.Params().BitSize
	default:
		return 0
	}
}

// Path returns the file the key was loaded from, empty when parsed from
// memory.
func (k *PublicKey) Path() string { return k.path }

// Equal reports whether both keys encode the same SubjectPublicKeyInfo.
func (k *PublicKey) Equal(other *PublicKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return bytes.Equal(k.spki, other.spki)
}
