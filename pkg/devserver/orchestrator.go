package devserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomdev/loom/pkg/component"
	"github.com/loomdev/loom/pkg/packaging"
	"github.com/loomdev/loom/pkg/registry"
	"github.com/loomdev/loom/pkg/telemetry"
	"github.com/loomdev/loom/pkg/watch"
)

// ErrNoComponents is returned when discovery yields an empty component set.
var ErrNoComponents = errors.New("no components found")

// DependencyEnsurer resolves and installs the dependency set of the
// discovered components.
type DependencyEnsurer interface {
	Ensure(ctx context.Context, components []component.Component) ([]string, error)
}

// Watcher delivers file-change events for the component tree.
type Watcher interface {
	Watch(ctx context.Context, components []component.Component, rootDir string, onEvent func(watch.Event)) error
}

// Options configure one orchestrator run.
type Options struct {
	// RootDir is the component root directory.
	RootDir string

	// Port is the dev registry listen port; 0 means the default.
	Port int

	// MockConfigPath is the optional mocks configuration file. Empty means
	// loom.config.json in the working directory.
	MockConfigPath string
}

// Orchestrator drives the dev loop over its collaborators.
type Orchestrator struct {
	logger      zerolog.Logger
	opts        Options
	discoverer  component.Discoverer
	resolver    DependencyEnsurer
	coordinator *packaging.Coordinator
	watcher     Watcher
	metrics     *telemetry.Metrics
	tracer      *telemetry.Tracer

	// reg is the running dev registry, nil when bootstrap was skipped or
	// the server failed to start.
	reg *registry.Registry
}

// New creates an orchestrator.
func New(
	logger zerolog.Logger,
	opts Options,
	discoverer component.Discoverer,
	resolver DependencyEnsurer,
	coordinator *packaging.Coordinator,
	watcher Watcher,
	metrics *telemetry.Metrics,
	tracer *telemetry.Tracer,
) *Orchestrator {
	if opts.MockConfigPath == "" {
		opts.MockConfigPath = registry.MockConfigFileName
	}
	return &Orchestrator{
		logger:      logger.With().Str("component", "devserver").Logger(),
		opts:        opts,
		discoverer:  discoverer,
		resolver:    resolver,
		coordinator: coordinator,
		watcher:     watcher,
		metrics:     metrics,
		tracer:      tracer,
	}
}

// Run executes the dev loop until ctx is cancelled. Discovery failure, an
// empty component set, and install failure are the only fatal outcomes;
// packaging failures retry forever and server start failures are tolerated
// so the watcher still attaches.
func (o *Orchestrator) Run(ctx context.Context) error {
	components, err := o.discover(ctx)
	if err != nil {
		return err
	}

	if err := o.loadDependencies(ctx, components); err != nil {
		return err
	}

	if err := o.packageInitial(ctx, components); err != nil {
		return err
	}

	o.bootstrap(ctx, components)

	if err := o.attachWatcher(ctx, components); err != nil {
		return err
	}

	<-ctx.Done()
	o.shutdown()
	return nil
}

// discover enumerates components and logs each one.
func (o *Orchestrator) discover(ctx context.Context) ([]component.Component, error) {
	ctx, span := o.phaseSpan(ctx, "discover")
	defer span.End()

	components, err := o.discoverer.Discover(ctx, o.opts.RootDir)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("component discovery failed: %w", err)
	}
	if len(components) == 0 {
		telemetry.RecordError(span, ErrNoComponents)
		o.logger.Error().Str("root", o.opts.RootDir).Msg("No components found")
		return nil, ErrNoComponents
	}

	for _, comp := range components {
		o.logger.Info().
			Str("component", comp.Path).
			Str("name", comp.Name()).
			Msg("Found component")
	}
	return components, nil
}

// loadDependencies runs the resolver's install loop to completion.
func (o *Orchestrator) loadDependencies(ctx context.Context, components []component.Component) error {
	ctx, span := o.phaseSpan(ctx, "dependencies")
	defer span.End()

	o.logger.Info().Msg("Loading dependencies")
	set, err := o.resolver.Ensure(ctx, components)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	o.logger.Info().
		Int("modules", len(set)).
		Msg("Dependencies OK")
	return nil
}

// packageInitial runs the startup packaging batch and waits for it. The
// batch retries internally on failure; the only error surfaced here is
// context cancellation.
func (o *Orchestrator) packageInitial(ctx context.Context, components []component.Component) error {
	ctx, span := o.phaseSpan(ctx, "package")
	defer span.End()

	batch, started := o.coordinator.PackageAll(ctx, components, packaging.TriggerStartup)
	if !started {
		return errors.New("packaging coordinator is not idle at startup")
	}

	if err := batch.Wait(ctx); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

// attachWatcher subscribes to file changes; every change triggers a
// fire-and-forget packaging pass over the full, unchanged component list.
func (o *Orchestrator) attachWatcher(ctx context.Context, components []component.Component) error {
	err := o.watcher.Watch(ctx, components, o.opts.RootDir, func(e watch.Event) {
		if e.Err != nil {
			o.logger.Error().Err(e.Err).Msg("Watcher error")
			return
		}

		o.logger.Info().
			Str("file", e.Path).
			Msg("File changed, repackaging")
		o.coordinator.PackageAll(ctx, components, packaging.TriggerWatch)
	})
	if err != nil {
		return fmt.Errorf("failed to attach watcher: %w", err)
	}
	return nil
}

// phaseSpan starts an orchestrator phase span, degrading to a no-op span
// when no tracer is attached.
func (o *Orchestrator) phaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	if o.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.StartPhaseSpan(ctx, phase)
}

// shutdown stops the registry if it is running.
func (o *Orchestrator) shutdown() {
	if o.reg == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := o.reg.Close(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("Registry shutdown failed")
	}
}
