// Package plugin defines the contract between the fourdst host runtime and
// dynamically loaded plugin modules.
//
// Interfaces declared here (and any capability interfaces that embed
// Plugin) must be shared between host and plugin: both sides import this
// package so that runtime type identity carries across the module
// boundary and manager.Get can type-check instances with a plain type
// assertion.
package plugin

// Symbol names every plugin module must export.
//
// CreatePlugin is resolved to a func() Plugin, DestroyPlugin to a
// func(Plugin). The pair is bound: an instance returned by one module's
// factory is released only through the same module's destroyer.
const (
	CreateSymbol  = "CreatePlugin"
	DestroySymbol = "DestroyPlugin"
)

// CreateFunc is the factory signature exported as CreateSymbol.
type CreateFunc func() Plugin

// DestroyFunc is the destructor signature exported as DestroySymbol.
type DestroyFunc func(Plugin)

// Plugin is the minimum capability every plugin instance exposes.
//
// Name must be unique within a manager instance and stable for the
// lifetime of the instance; Version is informational.
type Plugin interface {
	Name() string
	Version() string
}

// Base provides Name/Version storage so plugin implementations only embed
// it and supply their domain methods.
type Base struct {
	PluginName    string
	PluginVersion string
}

// Name returns the plugin name.
func (b Base) Name() string { return b.PluginName }

// Version returns the plugin version.
func (b Base) Version() string { return b.PluginVersion }

// NewBase builds a Base from a name/version pair.
func NewBase(name, version string) Base {
	return Base{PluginName: name, PluginVersion: version}
}
