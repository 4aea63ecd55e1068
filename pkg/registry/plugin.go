package registry

import "context"

// Plugin is the registry's plugin capability contract.
type Plugin interface {
	// Name identifies the plugin within the registry.
	Name() string

	// Register is invoked once when the plugin joins the registry.
	Register(ctx context.Context) error

	// Execute runs the plugin against the given input.
	Execute(ctx context.Context, input any) (any, error)
}

// StaticPlugin is a mock plugin descriptor: a name and a fixed value. It is
// the only shape the mocks configuration can declare, mapped into the Plugin
// interface by a single adapter.
type StaticPlugin struct {
	// PluginName is the registry plugin name.
	PluginName string `json:"name"`

	// Value is returned verbatim from every Execute call.
	Value any `json:"value"`
}

// Plugin adapts the descriptor into the plugin capability contract:
// registration always succeeds, execution always returns the configured
// value regardless of input.
func (s StaticPlugin) Plugin() Plugin {
	return staticPlugin{s}
}

type staticPlugin struct {
	desc StaticPlugin
}

func (p staticPlugin) Name() string { return p.desc.PluginName }

func (p staticPlugin) Register(context.Context) error { return nil }

func (p staticPlugin) Execute(context.Context, any) (any, error) {
	return p.desc.Value, nil
}
