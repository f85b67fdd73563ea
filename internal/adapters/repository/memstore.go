package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/metrics"
)

// defaultShardCount spreads sessions over independent locks so unrelated
// sessions never contend.
const defaultShardCount = 16

type shard struct {
	mu       sync.RWMutex
	runtimes map[uuid.UUID]*Runtime
}

// MemStore implements Store with a sharded in-memory map.
type MemStore struct {
	shards     []*shard
	shardCount int
}

// NewMemStore creates an in-memory session state store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		shardCount: defaultShardCount,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{runtimes: make(map[uuid.UUID]*Runtime)}
	}

	return s
}

func (s *MemStore) shardFor(id uuid.UUID) *shard {
	// First byte of the UUID is random enough for shard spread.
	return s.shards[int(id[0])%s.shardCount]
}

// Put registers runtime state for a session.
func (s *MemStore) Put(ctx context.Context, rt *Runtime) {
	sh := s.shardFor(rt.ID())
	sh.mu.Lock()
	sh.runtimes[rt.ID()] = rt
	sh.mu.Unlock()

	metrics.UpdateLiveSessions(s.Count(ctx))
}

// Get returns the runtime for a session.
func (s *MemStore) Get(ctx context.Context, id uuid.UUID) (*Runtime, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	rt, ok := sh.runtimes[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	return rt, nil
}

// Delete removes a session's runtime state.
func (s *MemStore) Delete(ctx context.Context, id uuid.UUID) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	delete(sh.runtimes, id)
	sh.mu.Unlock()

	metrics.UpdateLiveSessions(s.Count(ctx))
}

// ByStatus returns the runtimes currently in the given status. The status is
// re-checked by callers under the session lock before acting on it.
func (s *MemStore) ByStatus(ctx context.Context, status model.Status) []*Runtime {
	var out []*Runtime
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, rt := range sh.runtimes {
			if rt.Status() == status {
				out = append(out, rt)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Count returns the number of live sessions.
func (s *MemStore) Count(ctx context.Context) int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.runtimes)
		sh.mu.RUnlock()
	}
	return total
}
