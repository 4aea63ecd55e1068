package devserver

import (
	"context"
	"path/filepath"
	"time"

	"github.com/loomdev/loom/pkg/component"
	"github.com/loomdev/loom/pkg/registry"
)

const shutdownTimeout = 5 * time.Second

// bootstrap assembles the registry configuration, registers mock plugins,
// subscribes to diagnostics, and starts the listener. Every failure in here
// is tolerated: the process proceeds to attach the change watcher regardless,
// so the developer can fix the issue and restart the server out of band.
func (o *Orchestrator) bootstrap(ctx context.Context, components []component.Component) {
	mocks, err := registry.LoadMocks(o.opts.MockConfigPath)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to load mock plugin configuration")
		return
	}

	rootPath, err := filepath.Abs(o.opts.RootDir)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to resolve component root")
		return
	}

	cfg := registry.NewConfig(rootPath, o.opts.Port, component.DependencySet(components))

	declared := make(map[string][]string, len(components))
	for _, comp := range components {
		declared[comp.Name()] = comp.Manifest.Plugins
	}

	reg, err := registry.NewRegistry(o.logger, cfg, declared, o.metrics)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to construct dev registry")
		return
	}

	reg.Subscribe(func(d registry.Diagnostic) {
		o.logger.Warn().
			Str("plugin", d.Plugin).
			Str("component", d.Component).
			Msg(d.Hint())
	})

	if err := o.registerMocks(ctx, reg, mocks); err != nil {
		// Mock registration failure skips the server start, but the change
		// watcher is still attached so edits keep rebuilding.
		o.logger.Error().Err(err).Msg("Mock plugin registration failed, skipping server start")
		return
	}

	reg.CheckComponents()

	if err := o.startRegistry(ctx, reg); err != nil {
		return
	}
	o.reg = reg
}

// registerMocks registers every mock plugin, logging each with its resolved
// value. The first failure aborts the block.
func (o *Orchestrator) registerMocks(ctx context.Context, reg *registry.Registry, mocks []registry.StaticPlugin) error {
	for _, mock := range mocks {
		if err := reg.Register(ctx, mock.Plugin()); err != nil {
			return err
		}
		o.logger.Info().
			Str("plugin", mock.PluginName).
			Interface("value", mock.Value).
			Msg("Registered mock plugin")
	}
	return nil
}

// startRegistry starts the listener, turning a port conflict into an
// actionable message. Any start failure is non-fatal.
func (o *Orchestrator) startRegistry(ctx context.Context, reg *registry.Registry) error {
	o.logger.Info().
		Int("port", reg.Config().Port).
		Msg("Starting dev registry")

	err := reg.Start(ctx)
	if err == nil {
		return nil
	}

	if registry.IsAddrInUse(err) {
		o.logger.Error().
			Int("port", reg.Config().Port).
			Msgf("Port %d is already in use. Stop the process using it or pass --port to pick another.", reg.Config().Port)
		return err
	}

	o.logger.Error().Err(err).Msg("Dev registry failed to start")
	return err
}
