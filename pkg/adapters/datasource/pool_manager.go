package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

const (
	DefaultPoolIdleTTL       = 30 * time.Minute
	DefaultPoolSweepInterval = 5 * time.Minute
)

// PoolManagerConfig holds pool lifecycle settings.
type PoolManagerConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	AdapterOpts   Options
}

// PoolManager owns one adapter per connection identity, keyed by the
// deterministic hash of host:port:database:user. Adapters are borrowed with
// Acquire and must be returned with Release on every exit path.
type PoolManager struct {
	mu      sync.Mutex
	pools   map[string]*managedPool
	idleTTL time.Duration
	opts    Options
	logger  *zap.Logger

	stopped  bool
	stopChan chan struct{}
}

// managedPool tracks one adapter's borrow count and idle time.
type managedPool struct {
	adapter    Adapter
	lastUsed   time.Time
	checkedOut int
}

// NewPoolManager builds the manager and starts the background sweeper.
func NewPoolManager(cfg PoolManagerConfig, logger *zap.Logger) *PoolManager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultPoolIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultPoolSweepInterval
	}

	m := &PoolManager{
		pools:    make(map[string]*managedPool),
		idleTTL:  cfg.IdleTTL,
		opts:     cfg.AdapterOpts,
		logger:   logger.Named("pool-manager"),
		stopChan: make(chan struct{}),
	}

	go m.sweepLoop(cfg.SweepInterval)
	return m
}

// Acquire returns a checked-out adapter for the given parameters, creating
// the pool lazily on first use.
func (m *PoolManager) Acquire(ctx context.Context, params models.ConnectionParams) (Adapter, error) {
	key := params.PoolKey()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, apperrors.ErrPoolClosed
	}
	if pool, ok := m.pools[key]; ok {
		pool.checkedOut++
		pool.lastUsed = time.Now()
		m.mu.Unlock()
		return pool.adapter, nil
	}
	m.mu.Unlock()

	// Connect outside the lock; adapter construction dials the database.
	adapter, err := New(ctx, params, m.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool for %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		_ = adapter.Close()
		return nil, apperrors.ErrPoolClosed
	}
	// Another caller may have connected while we dialed.
	if pool, ok := m.pools[key]; ok {
		_ = adapter.Close()
		pool.checkedOut++
		pool.lastUsed = time.Now()
		return pool.adapter, nil
	}

	m.pools[key] = &managedPool{
		adapter:    adapter,
		lastUsed:   time.Now(),
		checkedOut: 1,
	}
	m.logger.Info("created connection pool",
		zap.String("key", key),
		zap.String("dialect", adapter.Dialect().String()))
	return adapter, nil
}

// Release returns a borrowed adapter. If the pool was closed while the
// handle was out, the handle is closed instead of returned.
func (m *PoolManager) Release(params models.ConnectionParams, handle Adapter) {
	key := params.PoolKey()

	m.mu.Lock()
	pool, ok := m.pools[key]
	if ok && pool.adapter == handle {
		if pool.checkedOut > 0 {
			pool.checkedOut--
		}
		pool.lastUsed = time.Now()
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	// A connection must never outlive its owning pool.
	if handle != nil {
		_ = handle.Close()
	}
}

// Close drops the pool for one connection identity.
func (m *PoolManager) Close(params models.ConnectionParams) {
	key := params.PoolKey()

	m.mu.Lock()
	pool, ok := m.pools[key]
	if ok {
		delete(m.pools, key)
	}
	m.mu.Unlock()

	if ok {
		_ = pool.adapter.Close()
		m.logger.Debug("closed connection pool", zap.String("key", key))
	}
}

// CloseAll closes every pool and stops the sweeper. Idempotent.
func (m *PoolManager) CloseAll() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopChan)
	pools := m.pools
	m.pools = make(map[string]*managedPool)
	m.mu.Unlock()

	for _, pool := range pools {
		_ = pool.adapter.Close()
	}
	m.logger.Info("pool manager closed", zap.Int("pools", len(pools)))
}

// Sweep closes pools idle longer than the TTL and returns the reclaimed
// count. Pools with checked-out handles are never swept.
func (m *PoolManager) Sweep() int {
	now := time.Now()

	m.mu.Lock()
	var expired []*managedPool
	for key, pool := range m.pools {
		if pool.checkedOut == 0 && now.Sub(pool.lastUsed) > m.idleTTL {
			expired = append(expired, pool)
			delete(m.pools, key)
		}
	}
	remaining := len(m.pools)
	m.mu.Unlock()

	for _, pool := range expired {
		_ = pool.adapter.Close()
	}

	if len(expired) > 0 {
		m.logger.Info("swept idle pools",
			zap.Int("reclaimed", len(expired)),
			zap.Int("remaining", remaining))
	}
	return len(expired)
}

// Stats reports the current pool count and total checked-out handles.
func (m *PoolManager) Stats() (pools, checkedOut int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pool := range m.pools {
		checkedOut += pool.checkedOut
	}
	return len(m.pools), checkedOut
}

func (m *PoolManager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopChan:
			return
		}
	}
}
