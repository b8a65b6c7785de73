package datasource

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// fakeAdapter satisfies Adapter with no real database behind it.
type fakeAdapter struct {
	dialect Dialect
	closed  atomic.Bool
}

func (f *fakeAdapter) Dialect() Dialect { return f.dialect }
func (f *fakeAdapter) TestConnection(context.Context) (*models.ServerInfo, error) {
	return &models.ServerInfo{DatabaseType: f.dialect.String()}, nil
}
func (f *fakeAdapter) ListSchemas(context.Context) ([]models.SchemaSummary, error) {
	return nil, nil
}
func (f *fakeAdapter) SchemaSnapshot(context.Context, string) (*models.SchemaSnapshot, error) {
	return &models.SchemaSnapshot{}, nil
}
func (f *fakeAdapter) DatabaseSnapshot(context.Context) (*models.SchemaSnapshot, error) {
	return &models.SchemaSnapshot{}, nil
}
func (f *fakeAdapter) TableInfo(context.Context, string, string) (*models.TableDescriptor, error) {
	return &models.TableDescriptor{}, nil
}
func (f *fakeAdapter) Execute(context.Context, string) (*QueryResult, error) {
	return &QueryResult{}, nil
}
func (f *fakeAdapter) Close() error {
	f.closed.Store(true)
	return nil
}

// registerFakeFactory swaps in a counting factory for the sqlite dialect and
// restores nothing: each test registers its own.
func registerFakeFactory(t *testing.T) *atomic.Int32 {
	t.Helper()
	var dials atomic.Int32
	Register(DialectSQLite, func(ctx context.Context, params models.ConnectionParams, opts Options) (Adapter, error) {
		dials.Add(1)
		return &fakeAdapter{dialect: DialectSQLite}, nil
	})
	return &dials
}

func fakeParams() models.ConnectionParams {
	return models.ConnectionParams{DatabaseType: "sqlite", FilePath: ":memory:"}
}

func newTestManager(t *testing.T) *PoolManager {
	t.Helper()
	m := NewPoolManager(PoolManagerConfig{
		IdleTTL:       time.Minute,
		SweepInterval: time.Hour,
	}, zap.NewNop())
	t.Cleanup(m.CloseAll)
	return m
}

func TestPoolManager_AcquireReusesPool(t *testing.T) {
	dials := registerFakeFactory(t)
	m := newTestManager(t)
	params := fakeParams()

	first, err := m.Acquire(context.Background(), params)
	require.NoError(t, err)
	second, err := m.Acquire(context.Background(), params)
	require.NoError(t, err)

	assert.Same(t, first, second, "same identity must share one pool")
	assert.Equal(t, int32(1), dials.Load())

	pools, checkedOut := m.Stats()
	assert.Equal(t, 1, pools)
	assert.Equal(t, 2, checkedOut)

	m.Release(params, first)
	m.Release(params, second)
	_, checkedOut = m.Stats()
	assert.Equal(t, 0, checkedOut)
}

func TestPoolManager_SweepSkipsCheckedOut(t *testing.T) {
	registerFakeFactory(t)
	m := newTestManager(t)
	params := fakeParams()

	handle, err := m.Acquire(context.Background(), params)
	require.NoError(t, err)

	// Age the pool past the idle TTL while a handle is still out.
	m.mu.Lock()
	for _, pool := range m.pools {
		pool.lastUsed = time.Now().Add(-2 * time.Minute)
	}
	m.mu.Unlock()

	assert.Equal(t, 0, m.Sweep(), "checked-out pools must never be swept")

	m.Release(params, handle)
	m.mu.Lock()
	for _, pool := range m.pools {
		pool.lastUsed = time.Now().Add(-2 * time.Minute)
	}
	m.mu.Unlock()

	assert.Equal(t, 1, m.Sweep())
	assert.True(t, handle.(*fakeAdapter).closed.Load())

	pools, _ := m.Stats()
	assert.Equal(t, 0, pools)
}

func TestPoolManager_SweepKeepsFreshPools(t *testing.T) {
	registerFakeFactory(t)
	m := newTestManager(t)
	params := fakeParams()

	handle, err := m.Acquire(context.Background(), params)
	require.NoError(t, err)
	m.Release(params, handle)

	assert.Equal(t, 0, m.Sweep())
	pools, _ := m.Stats()
	assert.Equal(t, 1, pools)
}

func TestPoolManager_Close(t *testing.T) {
	registerFakeFactory(t)
	m := newTestManager(t)
	params := fakeParams()

	handle, err := m.Acquire(context.Background(), params)
	require.NoError(t, err)
	m.Release(params, handle)

	m.Close(params)
	assert.True(t, handle.(*fakeAdapter).closed.Load())
	pools, _ := m.Stats()
	assert.Equal(t, 0, pools)
}

func TestPoolManager_CloseAll(t *testing.T) {
	registerFakeFactory(t)
	m := newTestManager(t)
	params := fakeParams()

	handle, err := m.Acquire(context.Background(), params)
	require.NoError(t, err)
	m.Release(params, handle)

	m.CloseAll()
	m.CloseAll() // idempotent

	assert.True(t, handle.(*fakeAdapter).closed.Load())
	_, err = m.Acquire(context.Background(), params)
	assert.ErrorIs(t, err, apperrors.ErrPoolClosed)
}

func TestPoolManager_ReleaseAfterClose(t *testing.T) {
	registerFakeFactory(t)
	m := newTestManager(t)
	params := fakeParams()

	handle, err := m.Acquire(context.Background(), params)
	require.NoError(t, err)

	// Closing while a handle is out orphans it; Release must close it.
	m.Close(params)
	m.Release(params, handle)
	assert.True(t, handle.(*fakeAdapter).closed.Load())
}

func TestPoolManager_UnknownDialect(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Acquire(context.Background(), models.ConnectionParams{DatabaseType: "mongodb"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownDialect)
}
