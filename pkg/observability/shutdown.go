package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type shutdownHook struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains HTTP servers and then runs registered hooks in
// reverse registration order, so resources opened first are closed last.
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration
	signals []os.Signal

	mu      sync.Mutex
	servers []shutdownHook
	hooks   []shutdownHook
	once    sync.Once
	err     error
}

// NewShutdownManager creates a shutdown manager. A zero timeout means 30s.
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		timeout: timeout,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// AddServer registers an HTTP server to drain before the hooks run
func (sm *ShutdownManager) AddServer(name string, server *http.Server) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.servers = append(sm.servers, shutdownHook{name: name, fn: server.Shutdown})
}

// Register adds a named hook
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, shutdownHook{name: name, fn: fn})
}

// Wait blocks until SIGINT, SIGTERM or ctx cancellation, then shuts down
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sm.signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)
	case <-ctx.Done():
		sm.logger.Info("Context cancelled, starting graceful shutdown")
	}
	return sm.Shutdown()
}

// Shutdown runs the shutdown sequence once; later calls return the first result
func (sm *ShutdownManager) Shutdown() error {
	sm.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		defer cancel()
		sm.err = sm.shutdown(ctx)
	})
	return sm.err
}

func (sm *ShutdownManager) shutdown(ctx context.Context) error {
	sm.mu.Lock()
	servers := append([]shutdownHook(nil), sm.servers...)
	hooks := append([]shutdownHook(nil), sm.hooks...)
	sm.mu.Unlock()

	var errs []error

	// servers drain in parallel so one slow listener does not starve another
	var wg sync.WaitGroup
	var errMu sync.Mutex
	for _, s := range servers {
		wg.Add(1)
		go func(s shutdownHook) {
			defer wg.Done()
			if err := sm.run(ctx, s); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	for i := len(hooks) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			sm.logger.Warnf("Shutdown timeout reached, skipping %s", hooks[i].name)
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, ctx.Err()))
			continue
		}
		if err := sm.run(ctx, hooks[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}

func (sm *ShutdownManager) run(ctx context.Context, h shutdownHook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = MustRecover(r)
		}
		if err != nil {
			sm.logger.WithComponent(h.name).WithError(err).Error("Shutdown step failed")
			err = fmt.Errorf("%s: %w", h.name, err)
		}
	}()

	sm.logger.WithComponent(h.name).Info("Shutting down")
	return h.fn(ctx)
}
