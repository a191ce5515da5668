package observability

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShutdownManager(timeout time.Duration) *ShutdownManager {
	return NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), timeout)
}

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, newTestShutdownManager(0).timeout)
	assert.Equal(t, time.Second, newTestShutdownManager(time.Second).timeout)
}

func TestShutdown_HooksRunInReverseOrder(t *testing.T) {
	sm := newTestShutdownManager(time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"storage", "notifications", "otel"} {
		name := name
		sm.Register(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"otel", "notifications", "storage"}, order)
}

func TestShutdown_RunsOnce(t *testing.T) {
	sm := newTestShutdownManager(time.Second)
	calls := 0
	sm.Register("storage", func(context.Context) error {
		calls++
		return errors.New("close failed")
	})

	first := sm.Shutdown()
	second := sm.Shutdown()
	require.Error(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Contains(t, first.Error(), "storage: close failed")
}

func TestShutdown_ErrorsAndPanicsDoNotStopOtherHooks(t *testing.T) {
	sm := newTestShutdownManager(time.Second)
	ran := false
	sm.Register("last", func(context.Context) error {
		ran = true
		return nil
	})
	sm.Register("panics", func(context.Context) error { panic("nil archive") })
	sm.Register("fails", func(context.Context) error { return errors.New("flush failed") })

	err := sm.Shutdown()
	require.Error(t, err)
	assert.True(t, ran)
	assert.Contains(t, err.Error(), "2 errors")
	assert.Contains(t, err.Error(), "nil archive")
}

func TestShutdown_TimeoutSkipsRemainingHooks(t *testing.T) {
	sm := newTestShutdownManager(50 * time.Millisecond)
	skipped := true
	sm.Register("skipped", func(context.Context) error {
		skipped = false
		return nil
	})
	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.True(t, skipped)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdown_DrainsServers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- server.Serve(ln) }()

	sm := newTestShutdownManager(time.Second)
	sm.AddServer("api", server)

	var hookSawClosedServer bool
	sm.Register("storage", func(context.Context) error {
		_, dialErr := net.DialTimeout("tcp", ln.Addr().String(), 100*time.Millisecond)
		hookSawClosedServer = dialErr != nil
		return nil
	})

	require.NoError(t, sm.Shutdown())
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
	assert.True(t, hookSawClosedServer)
}

func TestWait_ContextCancellation(t *testing.T) {
	sm := newTestShutdownManager(time.Second)
	closed := false
	sm.Register("storage", func(context.Context) error {
		closed = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.True(t, closed)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after context cancellation")
	}
}
