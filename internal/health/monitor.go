package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tributary-ai/model-router/internal/types"
)

var (
	// ErrUnknownProvider is returned for providers that were never registered
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrCheckTimeout is recorded when a probe exceeds the per-provider timeout
	ErrCheckTimeout = errors.New("health check timed out")
)

// Checker is anything that can probe a provider
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Status thresholds
const (
	healthySuccessRate  = 0.95
	degradedSuccessRate = 0.70
	healthyLatencyMs    = 3000
)

// Config controls probing
type Config struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	SnapshotTTL   time.Duration `yaml:"snapshot_ttl"`
	Timeout       time.Duration `yaml:"timeout"`
	WindowSize    int           `yaml:"window_size"`
}

// DefaultConfig returns the default probe settings
func DefaultConfig() Config {
	return Config{
		CheckInterval: 30 * time.Second,
		SnapshotTTL:   15 * time.Second,
		Timeout:       2 * time.Second,
		WindowSize:    20,
	}
}

type outcome struct {
	ok      bool
	latency time.Duration
}

type providerState struct {
	checker   Checker
	outcomes  []outcome
	next      int
	inflight  int
	lastProbe time.Time
	lastErr   string
}

func (s *providerState) record(o outcome, size int) {
	if len(s.outcomes) < size {
		s.outcomes = append(s.outcomes, o)
		return
	}
	s.outcomes[s.next] = o
	s.next = (s.next + 1) % size
}

// Monitor tracks provider health from active probes and observed traffic
type Monitor struct {
	mu        sync.Mutex
	providers map[string]*providerState
	cfg       Config
	probes    singleflight.Group
	logger    *logrus.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor; zero config fields take defaults
func NewMonitor(cfg Config, logger *logrus.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = def.SnapshotTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		providers: make(map[string]*providerState),
		cfg:       cfg,
		logger:    logger,
	}
}

// Register adds a provider. checker may be nil for passively tracked providers.
func (m *Monitor) Register(providerID string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.providers[providerID]; ok {
		s.checker = checker
		return
	}
	m.providers[providerID] = &providerState{checker: checker}
}

// Providers returns the registered provider ids
func (m *Monitor) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetHealth returns the current snapshot, probing first when the last probe
// is older than the snapshot TTL
func (m *Monitor) GetHealth(ctx context.Context, providerID string) (*types.HealthSnapshot, error) {
	m.mu.Lock()
	s, ok := m.providers[providerID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	stale := s.checker != nil && time.Since(s.lastProbe) > m.cfg.SnapshotTTL
	m.mu.Unlock()

	if stale {
		if err := m.probe(ctx, providerID); err != nil && ctx.Err() != nil {
			return nil, err
		}
	}
	return m.snapshot(providerID), nil
}

// GetAllHealth snapshots every provider concurrently. A provider that cannot
// be checked is reported as unknown.
func (m *Monitor) GetAllHealth(ctx context.Context) (map[string]*types.HealthSnapshot, error) {
	ids := m.Providers()
	out := make(map[string]*types.HealthSnapshot, len(ids))
	var mu sync.Mutex

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			snap, err := m.GetHealth(ctx, id)
			if err != nil {
				snap = types.UnknownHealth(id, err)
			}
			mu.Lock()
			out[id] = snap
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// Track marks a request in flight against a provider. The returned func
// records the outcome and must be called exactly once. Outcomes of
// requests canceled by the caller are not recorded.
func (m *Monitor) Track(providerID string) func(err error) {
	start := time.Now()

	m.mu.Lock()
	s := m.stateLocked(providerID)
	s.inflight++
	m.mu.Unlock()

	var once sync.Once
	return func(err error) {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			s.inflight--
			if errors.Is(err, context.Canceled) {
				return
			}
			m.recordLocked(s, providerID, time.Since(start), err)
		})
	}
}

// Record adds an observed outcome for a provider
func (m *Monitor) Record(providerID string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordLocked(m.stateLocked(providerID), providerID, latency, err)
}

// CheckAll probes every provider with a checker, ignoring the snapshot TTL
func (m *Monitor) CheckAll(ctx context.Context) {
	var g errgroup.Group
	for _, id := range m.Providers() {
		g.Go(func() error {
			_ = m.probe(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// Start runs periodic probes until Stop is called or ctx is done
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()

		m.CheckAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckAll(ctx)
			}
		}
	}()
	m.logger.WithField("interval", m.cfg.CheckInterval).Info("Health monitor started")
}

// Stop halts periodic probes
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// probe runs one health check bounded by the per-provider timeout.
// Concurrent probes of the same provider share one call.
func (m *Monitor) probe(ctx context.Context, providerID string) error {
	_, err, _ := m.probes.Do(providerID, func() (interface{}, error) {
		m.mu.Lock()
		s, ok := m.providers[providerID]
		var checker Checker
		if ok {
			checker = s.checker
		}
		m.mu.Unlock()
		if checker == nil {
			return nil, nil
		}

		checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()

		start := time.Now()
		done := make(chan error, 1)
		go func() { done <- checker.HealthCheck(checkCtx) }()

		var err error
		select {
		case err = <-done:
		case <-checkCtx.Done():
			err = ErrCheckTimeout
		}
		if ctx.Err() != nil {
			// caller gave up; not the provider's fault
			return nil, ctx.Err()
		}

		m.mu.Lock()
		s.lastProbe = time.Now()
		m.recordLocked(s, providerID, time.Since(start), err)
		m.mu.Unlock()
		return nil, err
	})
	return err
}

func (m *Monitor) stateLocked(providerID string) *providerState {
	s, ok := m.providers[providerID]
	if !ok {
		s = &providerState{}
		m.providers[providerID] = s
	}
	return s
}

func (m *Monitor) recordLocked(s *providerState, providerID string, latency time.Duration, err error) {
	s.record(outcome{ok: err == nil, latency: latency}, m.cfg.WindowSize)
	if err != nil {
		s.lastErr = err.Error()
		m.logger.WithError(err).WithField("provider", providerID).Warn("Provider check failed")
		return
	}
	s.lastErr = ""
	m.logger.WithFields(logrus.Fields{
		"provider":   providerID,
		"latency_ms": latency.Milliseconds(),
	}).Debug("Provider check passed")
}

// snapshot derives the health view from the rolling window
func (m *Monitor) snapshot(providerID string) *types.HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.providers[providerID]
	if !ok {
		return types.UnknownHealth(providerID, ErrUnknownProvider)
	}

	snap := &types.HealthSnapshot{
		ProviderID:  providerID,
		Status:      types.HealthUnknown,
		QueueLength: s.inflight,
		Error:       s.lastErr,
		CheckedAt:   time.Now(),
	}
	if len(s.outcomes) == 0 {
		return snap
	}

	var okCount int
	var total time.Duration
	for _, o := range s.outcomes {
		if o.ok {
			okCount++
			total += o.latency
		}
	}
	snap.SuccessRate = float64(okCount) / float64(len(s.outcomes))
	if okCount > 0 {
		avg := (total / time.Duration(okCount)).Milliseconds()
		snap.LatencyMs = &avg
	}

	switch {
	case snap.SuccessRate >= healthySuccessRate && (snap.LatencyMs == nil || *snap.LatencyMs < healthyLatencyMs):
		snap.Status = types.HealthHealthy
	case snap.SuccessRate >= degradedSuccessRate:
		snap.Status = types.HealthDegraded
	default:
		snap.Status = types.HealthUnhealthy
	}
	return snap
}
