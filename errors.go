package plugin

import "errors"

// Closed error taxonomy surfaced at the framework boundary. Operations
// wrap these sentinels with context via fmt.Errorf("...: %w", ...), so
// callers match kinds with errors.Is.
var (
	// ErrPathNotFound reports a missing input file (library or bundle).
	ErrPathNotFound = errors.New("path not found")

	// ErrLoadFailed reports that the dynamic loader rejected a module.
	ErrLoadFailed = errors.New("module load failed")

	// ErrMissingSymbol reports that CreatePlugin or DestroyPlugin is
	// absent from a module, or present with the wrong signature.
	ErrMissingSymbol = errors.New("plugin entry symbol missing")

	// ErrFactoryReturnedNil reports a nil instance from CreatePlugin.
	ErrFactoryReturnedNil = errors.New("plugin factory returned nil")

	// ErrNameCollision reports a plugin name already registered.
	ErrNameCollision = errors.New("plugin name already loaded")

	// ErrNotLoaded reports a lookup of a name with no registered plugin.
	ErrNotLoaded = errors.New("plugin not loaded")

	// ErrTypeMismatch reports a Get on an instance that does not satisfy
	// the requested capability interface.
	ErrTypeMismatch = errors.New("plugin type mismatch")

	// ErrMalformedBundle reports an unpacked bundle without a manifest.
	ErrMalformedBundle = errors.New("malformed bundle")

	// ErrMalformedManifest reports a manifest with a required field
	// absent or the wrong shape.
	ErrMalformedManifest = errors.New("malformed bundle manifest")

	// ErrUntrustedBundle reports a bundle with no signature or a
	// signature that failed verification.
	ErrUntrustedBundle = errors.New("bundle not trusted")

	// ErrUntrustedKey reports that no trusted key matches the manifest's
	// author fingerprint.
	ErrUntrustedKey = errors.New("no trusted key for bundle author")

	// ErrABIIncompatible reports that the load policy was not satisfied
	// after ABI screening.
	ErrABIIncompatible = errors.New("bundle plugins incompatible with host ABI")
)
