package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// Options carries adapter construction settings shared by every dialect.
type Options struct {
	// SnapshotTTL bounds how long cached schema snapshots stay fresh.
	SnapshotTTL time.Duration
	// MaxConns / MinConns size the driver-level pool where the driver
	// supports it.
	MaxConns int32
	MinConns int32
	Logger   *zap.Logger
}

// Factory builds a connected adapter for one dialect.
type Factory func(ctx context.Context, params models.ConnectionParams, opts Options) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Dialect]Factory)
)

// Register is called by each adapter package's init(). Safe for concurrent
// init() calls.
func Register(d Dialect, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d] = f
}

// Registered reports whether a factory exists for the dialect.
func Registered(d Dialect) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[d]
	return ok
}

// New parses the dialect from params, normalizes addressing, and builds an
// adapter through the registered factory.
func New(ctx context.Context, params models.ConnectionParams, opts Options) (Adapter, error) {
	dialect, err := ParseDialect(params.DatabaseType)
	if err != nil {
		return nil, err
	}

	params, err = NormalizeParams(dialect, params)
	if err != nil {
		return nil, err
	}

	registryMu.RLock()
	factory, ok := registry[dialect]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for dialect %s", dialect)
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return factory(ctx, params, opts)
}
