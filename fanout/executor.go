// Package fanout provides a bounded-parallelism for-each primitive with
// cooperative early stop. AI-heavy workflows (recipe ranking, credit-
// gated synthesis) fan work out across a capped worker pool and stop as
// soon as enough results have been collected, rather than after a fixed
// iteration count.
package fanout

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/session"
)

// Decision is returned by an operation to steer the fan-out.
type Decision int

const (
	// Continue lets the fan-out keep launching items.
	Continue Decision = iota
	// StopEarly stops launching new items and signals in-flight items
	// to abandon. It is the intended termination path, not an error.
	StopEarly
)

// Operation processes one item under its own child scope. It must
// observe ctx during its own AI/network calls, not only between items.
// Returning StopEarly ends the fan-out without error; returning a
// non-nil error aborts the remaining fan-out and propagates.
type Operation[T any] func(ctx context.Context, scope *session.Scope, item T) (Decision, error)

// Options configures a fan-out run.
type Options struct {
	// Parallelism caps concurrent in-flight operations. Zero means the
	// available parallelism of the host.
	Parallelism int
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Option mutates Options.
type Option func(*Options)

// WithParallelism sets the maximum degree of parallelism.
func WithParallelism(n int) Option {
	return func(o *Options) {
		o.Parallelism = n
	}
}

// WithLogger sets the logger for fan-out diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// ForEach runs op once per item under a fresh child scope of parent,
// with at most Parallelism operations in flight. Early stop, whether
// requested by an operation returning StopEarly or by cancellation of
// ctx, is the designed exit path and returns nil. The first real
// operation error cancels the remaining work, is logged, and is
// returned. ForEach does not collect results; callers accumulate into
// their own thread-safe collection.
func ForEach[T any](ctx context.Context, factory session.Factory, parent *session.Scope, items []T, op Operation[T], opts ...Option) error {
	options := Options{}
	for _, apply := range opts {
		apply(&options)
	}
	if options.Parallelism <= 0 {
		options.Parallelism = runtime.GOMAXPROCS(0)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Metrics == nil {
		options.Metrics = observability.NewMetrics()
	}

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stopped atomic.Bool
	stop := func() {
		if stopped.CompareAndSwap(false, true) {
			options.Metrics.RecordFanoutStopped()
			cancel()
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(options.Parallelism)

	for _, item := range items {
		if stopped.Load() || fanCtx.Err() != nil {
			break // remaining unstarted items are skipped
		}
		item := item
		g.Go(func() error {
			if stopped.Load() || fanCtx.Err() != nil {
				return nil
			}
			child := factory.NewChildScope(parent)
			options.Metrics.RecordFanoutStarted()

			decision, err := op(fanCtx, child, item)
			if err != nil {
				if isCancellation(err) || fanCtx.Err() != nil {
					// Cooperative cancellation is the intended exit,
					// never surfaced as a failure.
					return nil
				}
				options.Logger.Error("fan-out operation failed",
					slog.String(observability.LogFieldScopeID, child.ID),
					slog.String("error", err.Error()))
				stop()
				return err
			}

			options.Metrics.RecordFanoutCompleted()
			if decision == StopEarly {
				stop()
			}
			return nil
		})
	}

	return g.Wait()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
