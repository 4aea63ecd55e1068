package registry

import "fmt"

// DiagKind is the closed set of diagnostic kinds the dev registry emits.
type DiagKind int

const (
	// DiagPluginNotRegistered means a plugin referenced by a component is
	// absent from the running registry.
	DiagPluginNotRegistered DiagKind = iota

	// DiagPluginNotDeclared means a plugin was used by a component but never
	// declared in that component's manifest.
	DiagPluginNotDeclared
)

// String returns the kind's metric label.
func (k DiagKind) String() string {
	switch k {
	case DiagPluginNotRegistered:
		return "plugin_not_registered"
	case DiagPluginNotDeclared:
		return "plugin_not_declared"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Diagnostic is one registry diagnostic event.
type Diagnostic struct {
	// Kind is the diagnostic kind.
	Kind DiagKind

	// Plugin is the plugin name the diagnostic concerns.
	Plugin string

	// Component is the component involved, when known.
	Component string
}

// Hint translates the diagnostic into a remediation hint. The switch is the
// single place diagnostic kinds are rendered; adding a kind without a hint
// here is a bug.
func (d Diagnostic) Hint() string {
	switch d.Kind {
	case DiagPluginNotRegistered:
		return fmt.Sprintf(
			"plugin %q is referenced but not registered in the running registry. "+
				"Declare a static mock for it under mocks.plugins.static in %s, "+
				"or install the real plugin before starting the dev server.",
			d.Plugin, MockConfigFileName)
	case DiagPluginNotDeclared:
		return fmt.Sprintf(
			"plugin %q is used by component %q but never declared in its manifest. "+
				"Add it to the plugins list in that component's %s.",
			d.Plugin, d.Component, "component.yaml")
	}
	return fmt.Sprintf("unrecognized diagnostic for plugin %q", d.Plugin)
}
