package bundle

import (
	"fmt"

	fourdst "fourdst.dev/plugin"
	"fourdst.dev/plugin/crypt"
	"fourdst.dev/plugin/internal/keystore"
	"fourdst.dev/plugin/internal/logging"
	"fourdst.dev/plugin/internal/manifest"
)

// verifySignature reconstructs the canonical payload from the extracted
// files and checks the manifest's detached signature against the trusted
// key store.
//
// Returns signed=false for manifests with no signature block. A declared
// signature that fails verification yields trusted=false with no error;
// errors report infrastructure failures (hashing, key store access) or a
// missing trusted key (fourdst.ErrUntrustedKey).
func verifySignature(dir string, man *manifest.Manifest, keyDir string, log *logging.Logger) (signed, trusted bool, err error) {
	if man.Signature == nil {
		return false, false, nil
	}

	payload, err := manifest.CanonicalPayload(dir, man)
	if err != nil {
		return true, false, fmt.Errorf("failed to reconstruct signed payload: %w", err)
	}

	store, err := keystore.New(keyDir)
	if err != nil {
		return true, false, err
	}
	key, err := store.FindByFingerprint(man.Signature.KeyFingerprint)
	if err != nil {
		return true, false, err
	}
	if key == nil {
		return true, false, fmt.Errorf("%w: fingerprint %s not in %s",
			fourdst.ErrUntrustedKey, man.Signature.KeyFingerprint, store.Dir())
	}

	ok, err := crypt.VerifySignature(key, payload, man.Signature.Bytes)
	if err != nil {
		return true, false, fmt.Errorf("signature verification failed: %w", err)
	}
	if !ok {
		log.Warn().Str("fingerprint", man.Signature.KeyFingerprint).Msg("bundle signature did not verify")
		return true, false, nil
	}

	log.Debug().Str("fingerprint", man.Signature.KeyFingerprint).Str("key", key.Path()).Msg("bundle signature verified")
	return true, true, nil
}
