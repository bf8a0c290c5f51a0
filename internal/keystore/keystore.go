// Package keystore enumerates the host-local trusted public keys used to
// authenticate bundle signers.
package keystore

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"fourdst.dev/plugin/crypt"
)

const (
	// EnvKeysDir overrides the default trusted key directory.
	EnvKeysDir = "FOURDST_KEYS_DIR"

	defaultKeysSubdir = ".config/fourdst/keys"

	pemBeginMarker = "-----BEGIN PUBLIC KEY-----"
	pemEndMarker   = "-----END PUBLIC KEY-----"
)

// Store reads trusted keys from one directory tree.
type Store struct {
	dir string
}

// New returns a Store over dir. An empty dir selects the default
// location: $FOURDST_KEYS_DIR, else <home>/.config/fourdst/keys.
func New(dir string) (*Store, error) {
	if dir == "" {
		resolved, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = resolved
	}
	return &Store{dir: dir}, nil
}

// DefaultDir resolves the default trusted key directory.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvKeysDir); dir != "" {
		return dir, nil
	}
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, defaultKeysSubdir), nil
}

// homeDir discovers the user's home via $HOME, falling back to the passwd
// database.
func homeDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	u, err := user.Current()
	if err != nil || u.HomeDir == "" {
		return "", fmt.Errorf("unable to determine home directory: %w", err)
	}
	return u.HomeDir, nil
}

// Dir returns the directory this store reads from.
func (s *Store) Dir() string { return s.dir }

// Keys walks the store recursively and parses every regular file that
// frames a PEM public key. Files that are not public keys are skipped;
// a missing directory yields an empty set.
func (s *Store) Keys() ([]*crypt.PublicKey, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read trusted key directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("trusted key path %s is not a directory", s.dir)
	}

	var keys []*crypt.PublicKey
	err = filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ok, err := isPublicKeyPEM(path)
		if err != nil || !ok {
			return nil
		}
		key, err := crypt.LoadPublicKey(path)
		if err != nil {
			// Framed like a key but unparsable; not a trust decision,
			// just skip it.
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan trusted key directory: %w", err)
	}
	return keys, nil
}

// FindByFingerprint returns the trusted key whose fingerprint matches, or
// nil when none does.
func (s *Store) FindByFingerprint(fingerprint string) (*crypt.PublicKey, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if key.Fingerprint() == fingerprint {
			return key, nil
		}
	}
	return nil, nil
}

// isPublicKeyPEM reports whether the first and last non-empty lines of
// the file are the PUBLIC KEY PEM markers.
func isPublicKeyPEM(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	var first, last string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		last = line
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}

	return first == pemBeginMarker && last == pemEndMarker, nil
}
