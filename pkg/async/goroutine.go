package async

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nik-6348/sss-projects-payments/pkg/observability"
)

// SafeGo runs fn in its own goroutine under a timeout derived from parentCtx.
// A returned error is logged as a warning and a panic is recovered and logged;
// neither reaches the caller. Pass context.WithoutCancel(ctx) when the work
// must outlive the request that started it.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	logger = logger.WithField("task", taskName)

	go func() {
		defer observability.RecoverPanic(logger, taskName)

		ctx, cancel := withTimeout(parentCtx, timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// ForEach calls fn for every item with at most workers calls in flight and
// waits for all of them. errs[i] holds the outcome for items[i]; a panicking
// call is logged and reported in its slot. One failure does not cancel the
// others.
func ForEach[T any](ctx context.Context, logger *observability.Logger, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if len(items) == 0 {
		return nil
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if workers < 1 || workers > len(items) {
		workers = len(items)
	}

	errs := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			errs[i] = call(ctx, logger.WithField("task", taskName), timeout, func(ctx context.Context) error {
				return fn(ctx, item)
			})
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Failed counts the non-nil entries of a ForEach result
func Failed(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}

func call(ctx context.Context, logger *observability.Logger, timeout time.Duration, fn func(context.Context) error) (err error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = observability.MustRecover(r)
			logger.WithError(err).Error("PANIC recovered in task")
		}
	}()
	return fn(ctx)
}

// withTimeout leaves ctx unbounded when timeout is not positive
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
