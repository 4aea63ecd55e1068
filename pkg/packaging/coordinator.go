package packaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loomdev/loom/pkg/component"
	"github.com/loomdev/loom/pkg/telemetry"
)

// Packager builds one component directory into a servable artifact.
type Packager interface {
	Package(ctx context.Context, componentDir string, production bool) error
}

// Trigger identifies what started a packaging batch.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerWatch   Trigger = "watch"
	TriggerRetry   Trigger = "retry"
)

// RetryPolicy controls the unconditional whole-batch retry after a failure.
// The delay is a named knob so tests can inject zero.
type RetryPolicy struct {
	Delay time.Duration
}

// DefaultRetryPolicy retries a failed batch after 10 seconds, matching the
// cadence a developer needs to fix transiently invalid source.
var DefaultRetryPolicy = RetryPolicy{Delay: 10 * time.Second}

// Coordinator state values.
const (
	stateIdle int32 = iota
	stateRunning
)

// Recorder persists batch outcomes. Implementations must be safe for
// concurrent use; a nil Recorder disables recording.
type Recorder interface {
	BatchStarted(ctx context.Context, batchID string, trigger string, components int) error
	BatchFinished(ctx context.Context, batchID string, status string, failedComponent string, failure error) error
}

// Batch is the completion handle for one packaging batch. A batch that fails
// stays pending across its scheduled retries and completes when a retry
// finally succeeds, so waiting on Done observes the first overall success.
type Batch struct {
	// ID is the unique identifier of this batch chain.
	ID string

	once sync.Once
	done chan struct{}
	err  error
}

// Done returns a channel closed when the batch chain reaches a terminal
// outcome.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Err returns the terminal error. Only valid after Done is closed; it is nil
// on success and non-nil only when the surrounding context was cancelled.
func (b *Batch) Err() error {
	return b.err
}

// Wait blocks until the batch completes or ctx is cancelled.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Batch) complete(err error) {
	b.once.Do(func() {
		b.err = err
		close(b.done)
	})
}

// Coordinator serializes packaging across components. Each Coordinator owns
// its own Idle/Running state, so independent instances can coexist in tests.
type Coordinator struct {
	logger   zerolog.Logger
	packager Packager
	rootDir  string
	retry    RetryPolicy
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	recorder Recorder

	state atomic.Int32
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Coordinator) { c.retry = p }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTracer attaches a tracer for per-component packaging spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

// WithRecorder attaches a batch outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// NewCoordinator creates a coordinator packaging components beneath rootDir.
func NewCoordinator(logger zerolog.Logger, packager Packager, rootDir string, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:   logger.With().Str("component", "packaging").Logger(),
		packager: packager,
		rootDir:  rootDir,
		retry:    DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PackageAll starts a packaging batch over components in their given order.
// It returns the batch handle and true when a batch was started, or nil and
// false when another batch is already active; the overlapping call performs
// no packaging of its own and defers to the in-flight run.
func (c *Coordinator) PackageAll(ctx context.Context, components []component.Component, trigger Trigger) (*Batch, bool) {
	if !c.state.CompareAndSwap(stateIdle, stateRunning) {
		c.logger.Debug().
			Str("trigger", string(trigger)).
			Msg("Packaging already in progress, skipping")
		return nil, false
	}

	batch := &Batch{
		ID:   uuid.New().String(),
		done: make(chan struct{}),
	}

	c.startBatch(ctx, batch, components, trigger)
	go c.run(ctx, batch, components, trigger)

	return batch, true
}

// startBatch records and logs the start of a batch attempt. The Running
// state must already be held.
func (c *Coordinator) startBatch(ctx context.Context, batch *Batch, components []component.Component, trigger Trigger) {
	if c.metrics != nil {
		c.metrics.RecordBatchStarted(string(trigger))
	}
	if c.recorder != nil {
		if err := c.recorder.BatchStarted(ctx, batch.ID, string(trigger), len(components)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record batch start")
		}
	}

	c.logger.Info().
		Str("batch", batch.ID).
		Str("trigger", string(trigger)).
		Int("components", len(components)).
		Msg("Packaging components")
}

// run executes one batch attempt and handles its terminal outcome. On
// failure the Running state is cleared before the retry is scheduled so the
// deferred retry can re-acquire it.
func (c *Coordinator) run(ctx context.Context, batch *Batch, components []component.Component, trigger Trigger) {
	err := c.packageSequence(ctx, batch, components)

	if err == nil {
		c.finishBatch(ctx, batch, "succeeded", "", nil)
		c.state.Store(stateIdle)
		batch.complete(nil)
		c.logger.Info().
			Str("batch", batch.ID).
			Msg("All components packaged")
		return
	}

	if ctx.Err() != nil {
		c.finishBatch(ctx, batch, "cancelled", "", ctx.Err())
		c.state.Store(stateIdle)
		batch.complete(ctx.Err())
		return
	}

	c.logFailure(err)
	c.finishBatch(ctx, batch, "failed", failedComponent(err), err)
	c.state.Store(stateIdle)

	c.logger.Info().
		Str("batch", batch.ID).
		Dur("delay", c.retry.Delay).
		Msg("Retrying packaging batch after delay")

	time.AfterFunc(c.retry.Delay, func() {
		c.retryBatch(ctx, batch, components)
	})
}

// retryBatch re-runs the whole batch with the same component list and
// ordering. If another batch acquired the coordinator in the meantime, the
// retry is pushed back by another delay rather than dropped, so the handle
// still completes on the first overall success.
func (c *Coordinator) retryBatch(ctx context.Context, batch *Batch, components []component.Component) {
	if ctx.Err() != nil {
		batch.complete(ctx.Err())
		return
	}

	if !c.state.CompareAndSwap(stateIdle, stateRunning) {
		time.AfterFunc(c.retry.Delay, func() {
			c.retryBatch(ctx, batch, components)
		})
		return
	}

	c.startBatch(ctx, batch, components, TriggerRetry)
	c.run(ctx, batch, components, TriggerRetry)
}

// packageSequence packages components one at a time in order, stopping at
// the first failure. Packaging is never parallel: the shared build cache and
// output directory are not concurrency-safe.
func (c *Coordinator) packageSequence(ctx context.Context, batch *Batch, components []component.Component) error {
	for i, comp := range components {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.logger.Info().
			Str("component", comp.Path).
			Msg("Packaging")

		start := time.Now()
		err := c.packageOne(ctx, batch, comp)

		if c.metrics != nil {
			c.metrics.RecordPackageDuration(comp.Path, time.Since(start))
		}

		if err != nil {
			var be *BuildError
			if !errors.As(err, &be) {
				be = NewTransientError("packaging failed", err)
			}
			return be.WithComponent(comp.Path)
		}

		c.logger.Debug().
			Str("component", comp.Path).
			Int("index", i).
			Msg("Packaged")
	}
	return nil
}

// packageOne invokes the packager for a single component, wrapping the call
// in a span when tracing is attached.
func (c *Coordinator) packageOne(ctx context.Context, batch *Batch, comp component.Component) error {
	if c.tracer == nil {
		return c.packager.Package(ctx, comp.AbsPath(c.rootDir), false)
	}

	ctx, span := c.tracer.StartPackageSpan(ctx, batch.ID, comp.Path)
	defer span.End()

	err := c.packager.Package(ctx, comp.AbsPath(c.rootDir), false)
	telemetry.RecordError(span, err)
	return err
}

// logFailure reports a batch failure, distinguishing syntax-class errors
// from everything else.
func (c *Coordinator) logFailure(err error) {
	comp := failedComponent(err)
	if IsSyntax(err) {
		c.logger.Error().
			Str("component", comp).
			Str("error", err.Error()).
			Msg("Component failed to package: syntax error")
		return
	}
	c.logger.Error().
		Str("component", comp).
		Str("error", err.Error()).
		Msg("Component failed to package")
}

// finishBatch records a batch attempt's terminal outcome.
func (c *Coordinator) finishBatch(ctx context.Context, batch *Batch, status, failedComp string, failure error) {
	if c.metrics != nil {
		c.metrics.RecordBatchCompleted(status)
	}
	if c.recorder != nil {
		if err := c.recorder.BatchFinished(ctx, batch.ID, status, failedComp, failure); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record batch outcome")
		}
	}
}

func failedComponent(err error) string {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Component
	}
	return ""
}
