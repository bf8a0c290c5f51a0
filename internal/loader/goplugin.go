package loader

import (
	"fmt"
	goplugin "plugin"
)

// GoPluginLoader opens modules with the standard library's plugin
// package. Available on Linux and macOS for binaries built with cgo
// enabled; Open fails with the runtime's error elsewhere.
type GoPluginLoader struct{}

// Open maps the shared object at path.
func (GoPluginLoader) Open(path string) (Module, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open module %s: %w", path, err)
	}
	return goModule{p: p}, nil
}

type goModule struct {
	p *goplugin.Plugin
}

func (m goModule) Lookup(name string) (any, error) {
	sym, err := m.p.Lookup(name)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

// Close releases only the handle. The Go runtime keeps plugin code mapped
// for the life of the process, so the backing file may be removed after
// Open but the code is never unloaded.
func (goModule) Close() error { return nil }
