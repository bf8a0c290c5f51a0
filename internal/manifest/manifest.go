// Package manifest parses and validates bundle manifests. The parser is
// strict about shape, permissive about unknown keys, and never touches
// the filesystem.
package manifest

import (
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"

	plugin "fourdst.dev/plugin"
)

// Filename is the manifest's fixed location at the bundle root.
const Filename = "manifest.yaml"

// Manifest is a validated bundle manifest.
type Manifest struct {
	Name      string
	Version   string
	Author    string
	Comment   string
	BundledOn string

	// Signature is nil for unsigned bundles.
	Signature *Signature

	// Plugins maps plugin name to its declared artifacts.
	Plugins map[string]Plugin
}

// Signature is the detached signature block of a signed manifest.
type Signature struct {
	// Bytes is the decoded signature.
	Bytes []byte
	// KeyFingerprint identifies the author key as "sha256:<hex>".
	KeyFingerprint string
}

// Plugin is one plugin's entry: an optional source distribution plus its
// per-platform binaries.
type Plugin struct {
	SDist    *FileRef
	Binaries []Binary
}

// FileRef points at one file inside the bundle.
type FileRef struct {
	Path string
}

// Binary is one candidate artifact for one platform.
type Binary struct {
	Path     string
	Platform Platform
}

// Platform describes the target a binary was built for.
type Platform struct {
	Triplet      string
	ABISignature string
	Arch         string
}

type rawManifest struct {
	BundleName      string               `yaml:"bundleName"`
	BundleVersion   string               `yaml:"bundleVersion"`
	BundleAuthor    string               `yaml:"bundleAuthor"`
	BundleComment   string               `yaml:"bundleComment"`
	BundledOn       string               `yaml:"bundledOn"`
	BundleSignature *rawSignature        `yaml:"bundleSignature"`
	BundlePlugins   map[string]rawPlugin `yaml:"bundlePlugins"`
}

type rawSignature struct {
	Signature      string `yaml:"signature"`
	KeyFingerprint string `yaml:"keyFingerprint"`
}

type rawPlugin struct {
	SDist    *rawFileRef `yaml:"sdist"`
	Binaries []rawBinary `yaml:"binaries"`
}

type rawFileRef struct {
	Path string `yaml:"path"`
}

type rawBinary struct {
	Path     string       `yaml:"path"`
	Platform *rawPlatform `yaml:"platform"`
}

type rawPlatform struct {
	Triplet      string `yaml:"triplet"`
	ABISignature string `yaml:"abi_signature"`
	Arch         string `yaml:"arch"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", plugin.ErrMalformedManifest, fmt.Sprintf(format, args...))
}

// Parse decodes and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", plugin.ErrMalformedManifest, err)
	}

	scalars := map[string]string{
		"bundleName":    raw.BundleName,
		"bundleVersion": raw.BundleVersion,
		"bundleAuthor":  raw.BundleAuthor,
		"bundleComment": raw.BundleComment,
		"bundledOn":     raw.BundledOn,
	}
	for field, value := range scalars {
		if value == "" {
			return nil, malformed("missing required field %q", field)
		}
	}

	m := &Manifest{
		Name:      raw.BundleName,
		Version:   raw.BundleVersion,
		Author:    raw.BundleAuthor,
		Comment:   raw.BundleComment,
		BundledOn: raw.BundledOn,
	}

	if raw.BundleSignature != nil {
		sig, err := parseSignature(raw.BundleSignature)
		if err != nil {
			return nil, err
		}
		m.Signature = sig
	}

	if raw.BundlePlugins == nil {
		return nil, malformed("missing required section %q", "bundlePlugins")
	}

	m.Plugins = make(map[string]Plugin, len(raw.BundlePlugins))
	for name, rawEntry := range raw.BundlePlugins {
		entry, err := parsePlugin(name, rawEntry)
		if err != nil {
			return nil, err
		}
		m.Plugins[name] = entry
	}

	return m, nil
}

func parseSignature(raw *rawSignature) (*Signature, error) {
	if raw.Signature == "" {
		return nil, malformed("signature section present but signature is empty")
	}
	if raw.KeyFingerprint == "" {
		return nil, malformed("signature section present but keyFingerprint is missing")
	}
	sig, err := hex.DecodeString(raw.Signature)
	if err != nil {
		return nil, malformed("signature is not valid hex: %v", err)
	}
	return &Signature{Bytes: sig, KeyFingerprint: raw.KeyFingerprint}, nil
}

func parsePlugin(name string, raw rawPlugin) (Plugin, error) {
	if raw.Binaries == nil {
		return Plugin{}, malformed("plugin %q is missing its binaries list", name)
	}

	entry := Plugin{}
	if raw.SDist != nil {
		if raw.SDist.Path == "" {
			return Plugin{}, malformed("plugin %q sdist is missing path", name)
		}
		entry.SDist = &FileRef{Path: raw.SDist.Path}
	}

	entry.Binaries = make([]Binary, 0, len(raw.Binaries))
	for i, bin := range raw.Binaries {
		if bin.Path == "" {
			return Plugin{}, malformed("plugin %q binary %d is missing path", name, i)
		}
		if bin.Platform == nil {
			return Plugin{}, malformed("plugin %q binary %d is missing platform", name, i)
		}
		if bin.Platform.Triplet == "" {
			return Plugin{}, malformed("plugin %q binary %d platform is missing triplet", name, i)
		}
		if bin.Platform.ABISignature == "" {
			return Plugin{}, malformed("plugin %q binary %d platform is missing abi_signature", name, i)
		}
		if bin.Platform.Arch == "" {
			return Plugin{}, malformed("plugin %q binary %d platform is missing arch", name, i)
		}
		entry.Binaries = append(entry.Binaries, Binary{
			Path: bin.Path,
			Platform: Platform{
				Triplet:      bin.Platform.Triplet,
				ABISignature: bin.Platform.ABISignature,
				Arch:         bin.Platform.Arch,
			},
		})
	}

	return entry, nil
}

// Signed reports whether the manifest declares a signature block.
func (m *Manifest) Signed() bool { return m.Signature != nil }

// FileEntries returns the path of every file the manifest declares: each
// plugin's sdist (when present) plus every binary.
func (m *Manifest) FileEntries() []string {
	var paths []string
	for _, entry := range m.Plugins {
		if entry.SDist != nil {
			paths = append(paths, entry.SDist.Path)
		}
		for _, bin := range entry.Binaries {
			paths = append(paths, bin.Path)
		}
	}
	return paths
}
