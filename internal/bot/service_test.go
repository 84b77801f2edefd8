package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	coreconfig "merchbot/core/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (f *fakeClient) Start() { f.started.Add(1) }
func (f *fakeClient) Stop()  { f.stopped.Add(1) }

func testConfig() *coreconfig.Config {
	cfg := &coreconfig.Config{}
	cfg.Telegram.Token = "12345:ABC-secret_token"
	cfg.Telegram.DisplayName = "Merch Bot"
	cfg.Launch.MaxAttempts = 3
	cfg.Launch.BackoffSec = 0
	cfg.Launch.MaxDelaySec = 0
	return cfg
}

// countingFactory fails the first failures calls, then hands out clients.
type countingFactory struct {
	calls    atomic.Int32
	failures int32
	last     *fakeClient
}

func (f *countingFactory) factory(ctx context.Context) (transportClient, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, errors.New("getMe: connection refused")
	}
	f.last = &fakeClient{}
	return f.last, nil
}

func TestInitializeRejectsBadToken(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram.Token = "not a token"
	svc := NewService(cfg, nil, nil, (&countingFactory{}).factory)

	svc.Initialize(context.Background())

	assert.False(t, svc.Ready())
	assert.False(t, svc.Launch(context.Background()))
	assert.Equal(t, "uninitialized", svc.Status().State)
}

func TestInitializeRequiresDisplayName(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram.DisplayName = "  "
	svc := NewService(cfg, nil, nil, (&countingFactory{}).factory)

	svc.Initialize(context.Background())

	assert.False(t, svc.Ready())
}

func TestLaunchIsIdempotentWhileRunning(t *testing.T) {
	f := &countingFactory{}
	svc := NewService(testConfig(), nil, nil, f.factory)

	require.True(t, svc.Launch(context.Background()))
	retriesAfterFirst := svc.Status().RetryCount

	require.True(t, svc.Launch(context.Background()))

	assert.Equal(t, int32(1), f.calls.Load(), "second launch must not rebuild the client")
	assert.Equal(t, retriesAfterFirst, svc.Status().RetryCount)
	assert.True(t, svc.Status().Running)
}

func TestLaunchRetriesUpToBoundThenFails(t *testing.T) {
	f := &countingFactory{failures: 99}
	svc := NewService(testConfig(), nil, nil, f.factory)

	ok := svc.Launch(context.Background())

	assert.False(t, ok)
	assert.Equal(t, int32(3), f.calls.Load())
	st := svc.Status()
	assert.Equal(t, "failed", st.State)
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.RetryCount)
}

func TestLaunchRecoversWithinAttemptBudget(t *testing.T) {
	f := &countingFactory{failures: 2}
	svc := NewService(testConfig(), nil, nil, f.factory)

	ok := svc.Launch(context.Background())

	assert.True(t, ok)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.True(t, svc.Status().Running)
}

func TestLaunchFromFailedReinitializes(t *testing.T) {
	f := &countingFactory{failures: 3}
	svc := NewService(testConfig(), nil, nil, f.factory)

	require.False(t, svc.Launch(context.Background()))
	require.Equal(t, "failed", svc.Status().State)

	// The transient fault clears; the next launch recovers.
	assert.True(t, svc.Launch(context.Background()))
	assert.True(t, svc.Status().Running)
}

func TestLaunchAbortsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Launch.BackoffSec = 30
	cfg.Launch.MaxDelaySec = 30
	f := &countingFactory{failures: 99}
	svc := NewService(cfg, nil, nil, f.factory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := svc.Launch(ctx)

	assert.False(t, ok)
	assert.Equal(t, int32(1), f.calls.Load(), "cancellation must skip the backoff wait")
}

func TestStopIsNoOpUnlessRunning(t *testing.T) {
	f := &countingFactory{}
	svc := NewService(testConfig(), nil, nil, f.factory)

	svc.Stop(context.Background())
	assert.Equal(t, "uninitialized", svc.Status().State)

	require.True(t, svc.Launch(context.Background()))
	svc.Stop(context.Background())

	assert.Equal(t, int32(1), f.last.stopped.Load())
	assert.Equal(t, "stopped", svc.Status().State)

	svc.Stop(context.Background())
	assert.Equal(t, int32(1), f.last.stopped.Load())
}

func TestRestartColdRebuildsClient(t *testing.T) {
	f := &countingFactory{}
	svc := NewService(testConfig(), nil, nil, f.factory)
	require.True(t, svc.Launch(context.Background()))
	first := f.last

	ok := svc.Restart(context.Background())

	assert.True(t, ok)
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, int32(1), first.stopped.Load())
	assert.NotSame(t, first, f.last)
	st := svc.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 0, st.RetryCount)
}
