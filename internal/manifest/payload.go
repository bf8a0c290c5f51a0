package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fourdst.dev/plugin/crypt"
)

// CanonicalPayload derives the signed byte string for a manifest whose
// files live under dir. Every declared file contributes one
// "<path>:sha256:<hexdigest>" line; lines are sorted by path and joined
// with "\n" with no trailing newline, so the payload is independent of
// manifest ordering and YAML formatting.
func CanonicalPayload(dir string, m *Manifest) ([]byte, error) {
	entries := m.FileEntries()
	digests := make(map[string]string, len(entries))

	for _, relPath := range entries {
		if _, ok := digests[relPath]; ok {
			continue
		}

		filePath := filepath.Join(dir, relPath)
		if _, err := os.Stat(filePath); err != nil {
			return nil, fmt.Errorf("file listed in manifest is missing: %s: %w", relPath, err)
		}

		digest, err := crypt.HashFile(filePath)
		if err != nil {
			return nil, err
		}
		digests[relPath] = crypt.FingerprintPrefix + digest
	}

	// Sort by path, not by joined line: a path containing "/" must order
	// the same way the producer's path-keyed map does.
	paths := make([]string, 0, len(digests))
	for relPath := range digests {
		paths = append(paths, relPath)
	}
	sort.Strings(paths)

	lines := make([]string, 0, len(paths))
	for _, relPath := range paths {
		lines = append(lines, relPath+":"+digests[relPath])
	}
	return []byte(strings.Join(lines, "\n")), nil
}
