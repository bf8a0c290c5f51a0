// Package bundle loads signed plugin bundles: compressed archives
// carrying a manifest, a detached signature, and plugin binaries for one
// or more platforms.
//
// Opening a bundle unpacks it into a scoped staging directory, verifies
// the manifest signature against the host's trusted key store, screens
// each binary against the host triplet and ABI signature, applies the
// load policy, and drives the plugin manager to load the survivors.
package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	fourdst "fourdst.dev/plugin"
	"fourdst.dev/plugin/internal/abi"
	"fourdst.dev/plugin/internal/archive"
	"fourdst.dev/plugin/internal/logging"
	"fourdst.dev/plugin/internal/manifest"
	"fourdst.dev/plugin/internal/tempdir"
	"fourdst.dev/plugin/manager"
)

// Metadata is the bundle-level information declared by the manifest plus
// the two verification verdicts.
type Metadata struct {
	Name      string
	Version   string
	Author    string
	Comment   string
	BundledOn string

	// Signed reports whether the manifest declared a signature block.
	Signed bool
	// Trusted reports whether that signature verified against a trusted
	// key.
	Trusted bool
}

// Bundle is an opened, verified bundle whose surviving plugins are
// loaded. It owns a staging directory for its lifetime; Close releases
// it.
//
// Plugins loaded from the bundle belong to the shared manager, not to
// the Bundle. With the default loader the staged files are no longer
// needed once their modules are mapped, so Close may run while plugins
// are live; hosts using a loader that reads the backing file after open
// must unload the bundle's plugins first.
type Bundle struct {
	path   string
	meta   Metadata
	host   Host
	stage  *tempdir.Dir
	mgr    *manager.Manager
	log    *logging.Logger
	loaded []string
}

// staging is the shared pipeline state between Open and Inspect.
type staging struct {
	stage     *tempdir.Dir
	man       *manifest.Manifest
	host      Host
	signed    bool
	trusted   bool
	verifyErr error
	// survivors maps plugin name to its host-compatible binaries.
	survivors map[string][]manifest.Binary
}

// Open loads the bundle at path under the given policy.
//
// Failure modes: fourdst.ErrPathNotFound, ErrMalformedBundle,
// ErrMalformedManifest, ErrUntrustedBundle, ErrUntrustedKey,
// ErrABIIncompatible, plus manager load errors. On any failure the
// staging directory is removed and plugins already loaded from this
// bundle are unloaded again.
func Open(ctx context.Context, path string, policy Policy, opts ...Option) (*Bundle, error) {
	o := buildOptions(opts)
	log := o.log.Sub("bundle")

	s, err := stageBundle(ctx, path, o, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if s != nil {
			s.stage.Remove()
		}
	}()

	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	if !s.trusted {
		return nil, fmt.Errorf("%w: %s", fourdst.ErrUntrustedBundle, untrustedReason(s))
	}

	if err := checkPolicy(policy, s); err != nil {
		return nil, err
	}

	loaded, err := loadSurvivors(ctx, o.mgr, s)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		path: path,
		meta: Metadata{
			Name:      s.man.Name,
			Version:   s.man.Version,
			Author:    s.man.Author,
			Comment:   s.man.Comment,
			BundledOn: s.man.BundledOn,
			Signed:    s.signed,
			Trusted:   s.trusted,
		},
		host:   s.host,
		stage:  s.stage,
		mgr:    o.mgr,
		log:    log,
		loaded: loaded,
	}
	s = nil // ownership of the staging directory moves to the Bundle

	log.Info().Str("bundle", b.meta.Name).Strs("plugins", b.loaded).Msg("bundle loaded")
	return b, nil
}

// stageBundle runs the pipeline shared by Open and Inspect: extraction,
// manifest parsing, signature verification, and ABI screening. The
// caller owns the returned staging directory.
func stageBundle(ctx context.Context, path string, o options, log *logging.Logger) (*staging, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: bundle %s", fourdst.ErrPathNotFound, path)
	}

	stage, err := tempdir.New("fourdst-bundle-*")
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			stage.Remove()
		}
	}()

	if err := archive.ExtractZip(ctx, path, stage.Path()); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(stage.Path(), manifest.Filename)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no %s at archive root", fourdst.ErrMalformedBundle, manifest.Filename)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	host, err := resolveHost(o)
	if err != nil {
		return nil, err
	}

	man, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}

	signed, trusted, verifyErr := verifySignature(stage.Path(), man, o.keyDir, log)

	survivors, err := screen(man, host)
	if err != nil {
		return nil, err
	}

	ok = true
	return &staging{
		stage:     stage,
		man:       man,
		host:      host,
		signed:    signed,
		trusted:   trusted,
		verifyErr: verifyErr,
		survivors: survivors,
	}, nil
}

func resolveHost(o options) (Host, error) {
	if o.host != nil {
		return *o.host, nil
	}
	return ProbeHost()
}

// screen filters every declared binary by host triplet and ABI
// compatibility, keyed by plugin name.
func screen(man *manifest.Manifest, host Host) (map[string][]manifest.Binary, error) {
	hostSig, err := abi.Parse(host.ABISignature)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host ABI signature: %w", err)
	}

	survivors := make(map[string][]manifest.Binary)
	for name, entry := range man.Plugins {
		for _, bin := range entry.Binaries {
			if bin.Platform.Triplet != host.Triplet {
				continue
			}
			required, err := abi.Parse(bin.Platform.ABISignature)
			if err != nil {
				return nil, fmt.Errorf("%w: plugin %q: %v", fourdst.ErrMalformedManifest, name, err)
			}
			if hostSig.Compatible(required) {
				survivors[name] = append(survivors[name], bin)
			}
		}
	}
	return survivors, nil
}

func untrustedReason(s *staging) string {
	if !s.signed {
		return "bundle is not signed"
	}
	return "signature verification failed"
}

func checkPolicy(policy Policy, s *staging) error {
	required := len(s.man.Plugins)
	survived := len(s.survivors)

	switch policy {
	case AllCompatible:
		if survived != required {
			return fmt.Errorf("%w: %d of %d plugins have a host-compatible binary (policy %s)",
				fourdst.ErrABIIncompatible, survived, required, policy)
		}
	case AnyCompatible:
		if survived == 0 {
			return fmt.Errorf("%w: no plugin has a host-compatible binary (policy %s)",
				fourdst.ErrABIIncompatible, policy)
		}
	default:
		return fmt.Errorf("unknown load policy %d", policy)
	}
	return nil
}

// loadSurvivors loads every surviving binary, rolling back this bundle's
// loads on failure.
func loadSurvivors(ctx context.Context, mgr *manager.Manager, s *staging) ([]string, error) {
	names := make([]string, 0, len(s.survivors))
	for name := range s.survivors {
		names = append(names, name)
	}
	sort.Strings(names)

	var loaded []string
	for _, name := range names {
		for _, bin := range s.survivors[name] {
			registered, err := mgr.Load(ctx, filepath.Join(s.stage.Path(), bin.Path))
			if err != nil {
				for _, undo := range loaded {
					mgr.Unload(undo)
				}
				return nil, fmt.Errorf("failed to load plugin %q from bundle: %w", name, err)
			}
			loaded = append(loaded, registered)
		}
	}
	return loaded, nil
}

// Name returns the manifest's bundle name.
func (b *Bundle) Name() string { return b.meta.Name }

// Version returns the manifest's bundle version.
func (b *Bundle) Version() string { return b.meta.Version }

// Author returns the manifest's bundle author.
func (b *Bundle) Author() string { return b.meta.Author }

// Comment returns the manifest's bundle comment.
func (b *Bundle) Comment() string { return b.meta.Comment }

// BundledOn returns the manifest's bundle timestamp.
func (b *Bundle) BundledOn() string { return b.meta.BundledOn }

// Signed reports whether the manifest declared a signature.
func (b *Bundle) Signed() bool { return b.meta.Signed }

// Trusted reports whether the signature verified against a trusted key.
func (b *Bundle) Trusted() bool { return b.meta.Trusted }

// Metadata returns the bundle metadata in one piece.
func (b *Bundle) Metadata() Metadata { return b.meta }

// Host returns the platform this bundle was screened against.
func (b *Bundle) Host() Host { return b.host }

// Has reports whether the named plugin was loaded from this bundle.
func (b *Bundle) Has(name string) bool {
	for _, loaded := range b.loaded {
		if loaded == name {
			return true
		}
	}
	return false
}

// PluginNames returns the names of the plugins loaded from this bundle,
// sorted.
func (b *Bundle) PluginNames() []string {
	names := make([]string, len(b.loaded))
	copy(names, b.loaded)
	sort.Strings(names)
	return names
}

// Unload removes every plugin this bundle loaded from the manager.
func (b *Bundle) Unload() {
	for _, name := range b.loaded {
		b.mgr.Unload(name)
	}
	b.loaded = nil
}

// Close releases the staging directory. See the Bundle documentation for
// ordering against plugin unloads. Safe to call more than once.
func (b *Bundle) Close() error {
	return b.stage.Remove()
}
