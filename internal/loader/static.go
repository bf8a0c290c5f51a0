package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	fourdst "fourdst.dev/plugin"
)

// ErrNotRegistered reports a static lookup miss; chained loaders fall
// through to the next loader on it.
var ErrNotRegistered = errors.New("no static module registered")

var (
	staticMu      sync.RWMutex
	staticModules = make(map[string]map[string]any)
)

// RegisterStatic registers a statically linked plugin module under a
// module name. The manager resolves a load of any path whose base name
// matches, which lets hosts link plugins into the main binary and lets
// tests exercise the full load path without building shared objects.
// Registering a name twice replaces the earlier entry.
func RegisterStatic(name string, create fourdst.CreateFunc, destroy fourdst.DestroyFunc) {
	RegisterStaticSymbols(name, map[string]any{
		fourdst.CreateSymbol:  create,
		fourdst.DestroySymbol: destroy,
	})
}

// RegisterStaticSymbols registers a static module with an explicit symbol
// table.
func RegisterStaticSymbols(name string, symbols map[string]any) {
	staticMu.Lock()
	defer staticMu.Unlock()
	staticModules[name] = symbols
}

// UnregisterStatic removes a static module registration.
func UnregisterStatic(name string) {
	staticMu.Lock()
	defer staticMu.Unlock()
	delete(staticModules, name)
}

// StaticLoader resolves modules from the static registration table by the
// path's base name.
type StaticLoader struct{}

// Open looks up a registered module for filepath.Base(path).
func (StaticLoader) Open(path string) (Module, error) {
	name := filepath.Base(path)

	staticMu.RLock()
	symbols, ok := staticModules[name]
	staticMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNotRegistered, name)
	}
	return staticModule{name: name, symbols: symbols}, nil
}

type staticModule struct {
	name    string
	symbols map[string]any
}

func (m staticModule) Lookup(name string) (any, error) {
	sym, ok := m.symbols[name]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found in module %s", name, m.name)
	}
	return sym, nil
}

func (staticModule) Close() error { return nil }
