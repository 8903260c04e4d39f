package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/model-router/internal/types"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type countingChecker struct {
	calls atomic.Int32
	err   error
}

func (c *countingChecker) HealthCheck(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func createTestMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewMonitor(cfg, logger)
}

func TestGetHealthUnknownProvider(t *testing.T) {
	m := createTestMonitor(t, Config{})

	_, err := m.GetHealth(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestGetHealthWithoutData(t *testing.T) {
	m := createTestMonitor(t, Config{})
	m.Register("passive", nil)

	snap, err := m.GetHealth(context.Background(), "passive")
	require.NoError(t, err)
	assert.Equal(t, types.HealthUnknown, snap.Status)
	assert.Nil(t, snap.LatencyMs)
	assert.Equal(t, "passive", snap.ProviderID)
}

func TestGetHealthHealthyProbe(t *testing.T) {
	m := createTestMonitor(t, Config{})
	m.Register("openai", checkerFunc(func(ctx context.Context) error { return nil }))

	snap, err := m.GetHealth(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, types.HealthHealthy, snap.Status)
	assert.Equal(t, 1.0, snap.SuccessRate)
	require.NotNil(t, snap.LatencyMs)
	assert.Empty(t, snap.Error)
}

func TestGetHealthFailingProbe(t *testing.T) {
	m := createTestMonitor(t, Config{})
	m.Register("anthropic", checkerFunc(func(ctx context.Context) error { return errors.New("401 unauthorized") }))

	snap, err := m.GetHealth(context.Background(), "anthropic")
	require.NoError(t, err)
	assert.Equal(t, types.HealthUnhealthy, snap.Status)
	assert.Equal(t, 0.0, snap.SuccessRate)
	assert.Nil(t, snap.LatencyMs)
	assert.Equal(t, "401 unauthorized", snap.Error)
}

func TestGetHealthProbeTimeout(t *testing.T) {
	m := createTestMonitor(t, Config{Timeout: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)
	m.Register("stuck", checkerFunc(func(ctx context.Context) error {
		<-release
		return nil
	}))

	start := time.Now()
	snap, err := m.GetHealth(context.Background(), "stuck")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, types.HealthUnhealthy, snap.Status)
	assert.Contains(t, snap.Error, "timed out")
}

func TestGetHealthCanceledContext(t *testing.T) {
	m := createTestMonitor(t, Config{})
	m.Register("openai", checkerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.GetHealth(ctx, "openai")
	assert.ErrorIs(t, err, context.Canceled)

	// the canceled probe is not held against the provider
	m.Register("openai", nil)
	snap, err := m.GetHealth(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, types.HealthUnknown, snap.Status)
}

func TestRegisterDuringAbandonedProbe(t *testing.T) {
	m := createTestMonitor(t, Config{Timeout: time.Second})
	c := &countingChecker{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 2000; i++ {
		m.Register("openai", c)
		_, err := m.GetHealth(ctx, "openai")
		assert.ErrorIs(t, err, context.Canceled)
		m.Register("openai", nil)
	}

	snap, err := m.GetHealth(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, types.HealthUnknown, snap.Status)
}

func TestGetHealthRespectsSnapshotTTL(t *testing.T) {
	m := createTestMonitor(t, Config{SnapshotTTL: time.Hour})
	c := &countingChecker{}
	m.Register("openai", c)

	for i := 0; i < 3; i++ {
		_, err := m.GetHealth(context.Background(), "openai")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), c.calls.Load())

	m.CheckAll(context.Background())
	assert.Equal(t, int32(2), c.calls.Load())
}

func TestTrackQueueLength(t *testing.T) {
	m := createTestMonitor(t, Config{})
	m.Register("openai", nil)

	done1 := m.Track("openai")
	done2 := m.Track("openai")

	snap, _ := m.GetHealth(context.Background(), "openai")
	assert.Equal(t, 2, snap.QueueLength)
	assert.Equal(t, types.HealthUnknown, snap.Status)

	done1(nil)
	done1(nil)
	done2(errors.New("boom"))

	snap, _ = m.GetHealth(context.Background(), "openai")
	assert.Equal(t, 0, snap.QueueLength)
	assert.Equal(t, 0.5, snap.SuccessRate)
	assert.Equal(t, types.HealthUnhealthy, snap.Status)
}

func TestTrackRegistersUnknownProvider(t *testing.T) {
	m := createTestMonitor(t, Config{})

	m.Track("late")(nil)

	snap, err := m.GetHealth(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, types.HealthHealthy, snap.Status)
}

func TestTrackIgnoresCanceledRequests(t *testing.T) {
	m := createTestMonitor(t, Config{})
	m.Register("openai", nil)

	done := m.Track("openai")
	done(context.Canceled)
	m.Track("openai")(nil)

	snap, _ := m.GetHealth(context.Background(), "openai")
	assert.Equal(t, 0, snap.QueueLength)
	assert.Equal(t, 1.0, snap.SuccessRate)
	assert.Equal(t, types.HealthHealthy, snap.Status)
}

func TestStatusThresholds(t *testing.T) {
	tests := []struct {
		name     string
		ok, fail int
		latency  time.Duration
		expected types.HealthState
	}{
		{"all ok", 10, 0, 100 * time.Millisecond, types.HealthHealthy},
		{"all ok but slow", 10, 0, 4 * time.Second, types.HealthDegraded},
		{"eighty percent", 8, 2, 100 * time.Millisecond, types.HealthDegraded},
		{"half", 5, 5, 100 * time.Millisecond, types.HealthUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := createTestMonitor(t, Config{})
			for i := 0; i < tt.ok; i++ {
				m.Record("p", tt.latency, nil)
			}
			for i := 0; i < tt.fail; i++ {
				m.Record("p", tt.latency, errors.New("fail"))
			}
			snap, err := m.GetHealth(context.Background(), "p")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, snap.Status)
		})
	}
}

func TestRollingWindow(t *testing.T) {
	m := createTestMonitor(t, Config{WindowSize: 5})
	for i := 0; i < 5; i++ {
		m.Record("p", time.Millisecond, errors.New("fail"))
	}
	for i := 0; i < 5; i++ {
		m.Record("p", 10*time.Millisecond, nil)
	}

	snap, err := m.GetHealth(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.SuccessRate)
	require.NotNil(t, snap.LatencyMs)
	assert.Equal(t, int64(10), *snap.LatencyMs)
}

func TestGetAllHealth(t *testing.T) {
	m := createTestMonitor(t, Config{})
	m.Register("good", checkerFunc(func(ctx context.Context) error { return nil }))
	m.Register("bad", checkerFunc(func(ctx context.Context) error { return errors.New("down") }))
	m.Register("passive", nil)

	all, err := m.GetAllHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, types.HealthHealthy, all["good"].Status)
	assert.Equal(t, types.HealthUnhealthy, all["bad"].Status)
	assert.Equal(t, types.HealthUnknown, all["passive"].Status)
}

func TestStartStop(t *testing.T) {
	m := createTestMonitor(t, Config{CheckInterval: 10 * time.Millisecond})
	c := &countingChecker{}
	m.Register("openai", c)

	m.Start(context.Background())
	assert.Eventually(t, func() bool { return c.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	m.Stop()

	calls := c.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, c.calls.Load())
}
