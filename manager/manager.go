// Package manager is the process-wide registry of loaded plugins. It
// drives the dynamic loader, owns every plugin instance it creates, and
// guarantees a plugin's destroyer runs before its module handle closes.
package manager

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	fourdst "fourdst.dev/plugin"
	"fourdst.dev/plugin/internal/loader"
	"fourdst.dev/plugin/internal/logging"
)

// handle owns one plugin instance, the destroyer bound to it, and the
// module it came from. The instance is destroyed strictly before the
// module is closed.
type handle struct {
	instance fourdst.Plugin
	destroy  fourdst.DestroyFunc
	module   loader.Module
	name     string
	version  string
}

// Manager loads plugin modules and registers their instances by name.
// All mutations are serialised behind one lock; lookups see a consistent
// snapshot.
type Manager struct {
	mu      sync.RWMutex
	plugins map[string]*handle
	ld      loader.Loader
	log     *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLoader overrides the module loader. Intended for embedding and
// tests.
func WithLoader(ld loader.Loader) Option {
	return func(m *Manager) { m.ld = ld }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log *logging.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// New builds a standalone Manager. Most hosts want Default instead; New
// exists for embedding several registries in one process and for tests.
func New(opts ...Option) *Manager {
	m := &Manager{
		plugins: make(map[string]*handle),
		ld:      loader.Default(),
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	defaultOnce    sync.Once
	defaultManager *Manager
)

// Default returns the lazily initialised process-wide Manager.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = New()
	})
	return defaultManager
}

// Load opens the module at libraryPath, instantiates its plugin, and
// registers it under the name the plugin reports, which is returned. On
// any failure the registry is unchanged, the instance (if created) is
// destroyed by the module's own destroyer, and the module handle is
// closed.
func (m *Manager) Load(ctx context.Context, libraryPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := os.Stat(libraryPath); err != nil {
		return "", fmt.Errorf("%w: plugin library %s", fourdst.ErrPathNotFound, libraryPath)
	}

	module, err := m.ld.Open(libraryPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", fourdst.ErrLoadFailed, libraryPath, err)
	}

	create, destroy, err := resolveEntrySymbols(module)
	if err != nil {
		module.Close()
		return "", fmt.Errorf("%w: %s: %v", fourdst.ErrMissingSymbol, libraryPath, err)
	}

	instance := create()
	if instance == nil {
		module.Close()
		return "", fmt.Errorf("%w: %s", fourdst.ErrFactoryReturnedNil, libraryPath)
	}

	name := instance.Name()
	version := instance.Version()

	m.mu.Lock()
	if _, exists := m.plugins[name]; exists {
		m.mu.Unlock()
		// Undo the factory call with this module's own destroyer before
		// surfacing the collision.
		destroy(instance)
		module.Close()
		return "", fmt.Errorf("%w: %q", fourdst.ErrNameCollision, name)
	}
	m.plugins[name] = &handle{
		instance: instance,
		destroy:  destroy,
		module:   module,
		name:     name,
		version:  version,
	}
	m.mu.Unlock()

	m.log.Info().Str("plugin", name).Str("version", version).Str("path", libraryPath).Msg("plugin loaded")
	return name, nil
}

// Unload destroys the named plugin and closes its module. Unknown names
// are a no-op.
func (m *Manager) Unload(name string) {
	m.mu.Lock()
	h, ok := m.plugins[name]
	if ok {
		delete(m.plugins, name)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	// Destroyer first, module close second. Any reference obtained from
	// Get is invalid from here on.
	h.destroy(h.instance)
	h.module.Close()
	m.log.Info().Str("plugin", name).Msg("plugin unloaded")
}

// Has reports whether a plugin with the given name is registered.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.plugins[name]
	return ok
}

// Names returns the registered plugin names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Version reports the registered version of a plugin.
func (m *Manager) Version(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.plugins[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", fourdst.ErrNotLoaded, name)
	}
	return h.version, nil
}

// Shutdown unloads every registered plugin. The order across plugins is
// unspecified; each plugin's destroyer runs before its own module
// closes.
func (m *Manager) Shutdown() {
	for _, name := range m.Names() {
		m.Unload(name)
	}
}

// raw returns the registered instance or nil.
func (m *Manager) raw(name string) fourdst.Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.plugins[name]; ok {
		return h.instance
	}
	return nil
}

// Get looks up a plugin by name and type-checks it against the
// capability interface T. The returned value stays valid until the
// plugin is unloaded.
func Get[T fourdst.Plugin](m *Manager, name string) (T, error) {
	var zero T

	instance := m.raw(name)
	if instance == nil {
		return zero, fmt.Errorf("%w: %q (has it been loaded?)", fourdst.ErrNotLoaded, name)
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: plugin %q does not satisfy the requested interface", fourdst.ErrTypeMismatch, name)
	}
	return typed, nil
}

// resolveEntrySymbols looks up and shape-checks both plugin entry points.
func resolveEntrySymbols(module loader.Module) (fourdst.CreateFunc, fourdst.DestroyFunc, error) {
	createSym, err := module.Lookup(fourdst.CreateSymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("could not find %s: %v", fourdst.CreateSymbol, err)
	}
	destroySym, err := module.Lookup(fourdst.DestroySymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("could not find %s: %v", fourdst.DestroySymbol, err)
	}

	create, ok := asCreateFunc(createSym)
	if !ok {
		return nil, nil, fmt.Errorf("%s has the wrong signature", fourdst.CreateSymbol)
	}
	destroy, ok := asDestroyFunc(destroySym)
	if !ok {
		return nil, nil, fmt.Errorf("%s has the wrong signature", fourdst.DestroySymbol)
	}
	return create, destroy, nil
}

// asCreateFunc accepts the named type, the bare function type, and the
// pointer form the runtime loader hands back for exported variables.
func asCreateFunc(sym any) (fourdst.CreateFunc, bool) {
	switch f := sym.(type) {
	case fourdst.CreateFunc:
		return f, true
	case func() fourdst.Plugin:
		return f, true
	case *fourdst.CreateFunc:
		return *f, true
	case *func() fourdst.Plugin:
		return *f, true
	default:
		return nil, false
	}
}

func asDestroyFunc(sym any) (fourdst.DestroyFunc, bool) {
	switch f := sym.(type) {
	case fourdst.DestroyFunc:
		return f, true
	case func(fourdst.Plugin):
		return f, true
	case *fourdst.DestroyFunc:
		return *f, true
	case *func(fourdst.Plugin):
		return *f, true
	default:
		return nil, false
	}
}
