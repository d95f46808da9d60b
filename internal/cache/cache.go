// Package cache provides the content-addressed result cache: a blake3 key
// over the request's identity fields, an in-memory LRU store with optional
// TTL, an optional Redis backend, and a single-flight layer that guarantees
// at most one computation per key.
package cache

import (
	"container/list"
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// KeyFor digests the request fields that determine the result. Fields are
// normalized (trimmed, whitespace collapsed) and separated by NUL so that
// ("ab","c") and ("a","bc") never collide.
func KeyFor(req types.ImproveRequest) string {
	n := req.Normalized()
	h := blake3.New()
	for _, part := range []string{n.Idea, n.Context, string(n.Mode), string(n.Preset), n.Model} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store is the backend port: a plain key→result map with no single-flight
// semantics of its own.
type Store interface {
	Get(ctx context.Context, key string) (types.ImprovementResult, bool, error)
	Put(ctx context.Context, key string, result types.ImprovementResult) error
}

// =============================================================================
// IN-MEMORY LRU STORE
// =============================================================================

type memoryEntry struct {
	key        string
	result     types.ImprovementResult
	insertedAt time.Time
}

// Memory is an in-process Store with an LRU size cap and an optional TTL.
// Expired entries are dropped opportunistically when touched; eviction never
// blocks a Get beyond the map mutex.
type Memory struct {
	mu         sync.Mutex
	ll         *list.List
	entries    map[string]*list.Element
	maxEntries int
	ttl        time.Duration

	now func() time.Time
}

// NewMemory creates an in-memory store. maxEntries <= 0 means unbounded;
// ttl <= 0 means entries live for the process lifetime.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		ll:         list.New(),
		entries:    make(map[string]*list.Element),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached result for key, if present and fresh.
func (m *Memory) Get(_ context.Context, key string) (types.ImprovementResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return types.ImprovementResult{}, false, nil
	}
	entry := elem.Value.(*memoryEntry)
	if m.ttl > 0 && m.now().Sub(entry.insertedAt) > m.ttl {
		m.ll.Remove(elem)
		delete(m.entries, key)
		logging.CacheDebug("Expired entry %.12s", key)
		return types.ImprovementResult{}, false, nil
	}
	m.ll.MoveToFront(elem)
	return entry.result, true, nil
}

// Put inserts or overwrites, evicting the least-recently-used entry when the
// cap is exceeded.
func (m *Memory) Put(_ context.Context, key string, result types.ImprovementResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.result = result
		entry.insertedAt = m.now()
		m.ll.MoveToFront(elem)
		return nil
	}

	elem := m.ll.PushFront(&memoryEntry{key: key, result: result, insertedAt: m.now()})
	m.entries[key] = elem

	if m.maxEntries > 0 && m.ll.Len() > m.maxEntries {
		oldest := m.ll.Back()
		if oldest != nil {
			m.ll.Remove(oldest)
			delete(m.entries, oldest.Value.(*memoryEntry).key)
		}
	}
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

// =============================================================================
// SINGLE-FLIGHT LAYER
// =============================================================================

// flight is one in-progress computation. Waiters block on done and then read
// result/err; both are write-once before close(done).
type flight struct {
	done   chan struct{}
	result types.ImprovementResult
	err    error
}

// SingleFlight wraps a Store and collapses concurrent computations for the
// same key into one. The second and later callers wait for the first and
// share its outcome; they never launch a second computation.
type SingleFlight struct {
	store Store

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewSingleFlight wraps a store.
func NewSingleFlight(store Store) *SingleFlight {
	return &SingleFlight{store: store, inflight: make(map[string]*flight)}
}

// Do returns the cached result for key, or computes it exactly once across
// concurrent callers. The hit flag reports whether the result came from the
// store. A waiter whose own context is cancelled gets its context error; if
// the leader's compute is cancelled, every waiter sees that same error.
func (s *SingleFlight) Do(ctx context.Context, key string, compute func(context.Context) (types.ImprovementResult, error)) (types.ImprovementResult, bool, error) {
	if result, ok, err := s.store.Get(ctx, key); err != nil {
		logging.Cache("Store get failed for %.12s: %v", key, err)
	} else if ok {
		logging.CacheDebug("Hit %.12s", key)
		return result, true, nil
	}

	s.mu.Lock()
	if f, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-f.done:
			if f.err != nil {
				return types.ImprovementResult{}, false, f.err
			}
			return f.result, true, nil
		case <-ctx.Done():
			return types.ImprovementResult{}, false, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	s.inflight[key] = f
	s.mu.Unlock()

	// The store may have been filled between the miss above and our
	// registration: a finishing leader publishes its Put before it
	// unregisters, so a re-check here observes it. Without this, a caller
	// racing that hand-off would start a duplicate computation.
	if result, ok, err := s.store.Get(ctx, key); err == nil && ok {
		logging.CacheDebug("Late hit %.12s", key)
		f.result = result
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
		close(f.done)
		return result, true, nil
	}

	result, err := compute(ctx)
	f.result, f.err = result, err
	if err == nil {
		if putErr := s.store.Put(ctx, key, result); putErr != nil {
			logging.Cache("Store put failed for %.12s: %v", key, putErr)
		}
	}

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	close(f.done)

	return result, false, err
}
