package builder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/dictionary"
	"github.com/kcb-text2sql/backend/internal/kg/neo4j"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

type Graph interface {
	SyncSchema(ctx context.Context, tables []neo4j.Table) error
	SyncTerms(ctx context.Context, snap *dictionary.Snapshot) error
}

// Builder keeps the schema graph in step with the dictionary. Snapshots are
// handed over without blocking; when several arrive during one sync only
// the newest is applied.
type Builder struct {
	graph   Graph
	tables  []neo4j.Table
	timeout time.Duration

	mu      sync.Mutex
	pending *dictionary.Snapshot
	wake    chan struct{}
	synced  uint64
}

func NewBuilder(graph Graph, tables []neo4j.Table) *Builder {
	return &Builder{
		graph:   graph,
		tables:  tables,
		timeout: 30 * time.Second,
		wake:    make(chan struct{}, 1),
	}
}

// Initialize writes the table metadata and the current terms.
func (b *Builder) Initialize(ctx context.Context, snap *dictionary.Snapshot) error {
	if err := b.graph.SyncSchema(ctx, b.tables); err != nil {
		return err
	}
	if err := b.graph.SyncTerms(ctx, snap); err != nil {
		return err
	}
	b.mu.Lock()
	b.synced = snap.Version()
	b.mu.Unlock()
	return nil
}

// Enqueue schedules snap for syncing. Safe to call from a dictionary
// subscriber.
func (b *Builder) Enqueue(snap *dictionary.Snapshot) {
	b.mu.Lock()
	if b.pending == nil || snap.Version() >= b.pending.Version() {
		b.pending = snap
	}
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run applies queued snapshots until ctx is cancelled.
func (b *Builder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
			b.flush(ctx)
		}
	}
}

func (b *Builder) flush(ctx context.Context) {
	b.mu.Lock()
	snap := b.pending
	b.pending = nil
	synced := b.synced
	b.mu.Unlock()

	if snap == nil || (synced != 0 && snap.Version() <= synced) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.graph.SyncTerms(ctx, snap); err != nil {
		logger.Error("Failed to sync dictionary into schema graph",
			zap.Uint64("version", snap.Version()),
			zap.Error(err),
		)
		return
	}

	b.mu.Lock()
	if snap.Version() > b.synced {
		b.synced = snap.Version()
	}
	b.mu.Unlock()
}

// SyncedVersion is the newest dictionary version written to the graph.
func (b *Builder) SyncedVersion() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.synced
}
