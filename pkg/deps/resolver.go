package deps

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loomdev/loom/pkg/component"
	"github.com/loomdev/loom/pkg/telemetry"
)

// Loader probes a single runtime module against the local environment.
type Loader interface {
	// Load reports whether the named module is loadable right now.
	Load(ctx context.Context, module string) error

	// Invalidate drops any cached load of the named module so a freshly
	// installed copy is picked up without a process restart. Environments
	// without a mutable load cache implement this as a no-op.
	Invalidate(module string)
}

// Installer fetches missing modules into the target directory. An install
// error is fatal to the startup sequence; the surrounding resolver loop never
// retries a failed install on its own.
type Installer interface {
	Install(ctx context.Context, modules []string, targetDir string) error
}

// Resolver drives the load→install→reload cycle until the full dependency
// set of the discovered components is satisfied.
type Resolver struct {
	logger    zerolog.Logger
	loader    Loader
	installer Installer
	targetDir string
	metrics   *telemetry.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMetrics attaches a metrics collector recording install passes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver. targetDir is where the installer places
// fetched modules.
func NewResolver(logger zerolog.Logger, loader Loader, installer Installer, targetDir string, opts ...Option) *Resolver {
	r := &Resolver{
		logger:    logger.With().Str("component", "deps").Logger(),
		loader:    loader,
		installer: installer,
		targetDir: targetDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure resolves the dependency set of components, installing whatever is
// missing, and returns the satisfied set. The dependency set is recomputed on
// every pass rather than cached across installs.
func (r *Resolver) Ensure(ctx context.Context, components []component.Component) ([]string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		set := component.DependencySet(components)
		missing := r.resolveOnce(ctx, set)
		if len(missing) == 0 {
			if r.metrics != nil {
				r.metrics.RecordDependenciesResolved()
			}
			r.logger.Info().
				Int("modules", len(set)).
				Msg("All dependencies loaded")
			return set, nil
		}

		r.logger.Info().
			Strs("missing", missing).
			Msg("Installing missing dependencies")

		if r.metrics != nil {
			r.metrics.RecordInstall(len(missing))
		}

		if err := r.installer.Install(ctx, missing, r.targetDir); err != nil {
			return nil, fmt.Errorf("failed to install dependencies %v: %w", missing, err)
		}
	}
}

// resolveOnce probes every module in the set independently. A load failure on
// one module does not stop evaluation of the others; failures accumulate into
// the returned missing list.
func (r *Resolver) resolveOnce(ctx context.Context, set []string) []string {
	var missing []string
	for _, module := range set {
		r.loader.Invalidate(module)
		if err := r.loader.Load(ctx, module); err != nil {
			r.logger.Debug().
				Err(err).
				Str("module", module).
				Msg("Module not loadable")
			missing = append(missing, module)
		}
	}
	return missing
}
