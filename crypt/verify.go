package crypt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// VerifySignature checks a detached signature over payload against key.
// Ed25519 signs the raw payload; RSA (PKCS#1 v1.5) and ECDSA (ASN.1) sign
// its SHA-256 digest. Returns false for a well-formed but wrong
// signature, error only when the key algorithm is unsupported.
func VerifySignature(key *PublicKey, payload, signature []byte) (bool, error) {
	switch pub := key.key.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(pub, payload, signature), nil
	case *rsa.PublicKey:
		digest := sha256.Sum256(payload)
		err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
		return err == nil, nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(payload)
		return ecdsa.VerifyASN1(pub, digest[:], signature), nil
	default:
		return false, fmt.Errorf("unsupported public key algorithm %T", key.key)
	}
}
