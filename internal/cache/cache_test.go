package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"promptforge/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func result(prompt string) types.ImprovementResult {
	return types.ImprovementResult{ImprovedPrompt: prompt, Confidence: 0.9}
}

// =============================================================================
// KEY
// =============================================================================

func TestKeyForNormalizes(t *testing.T) {
	a := KeyFor(types.ImproveRequest{Idea: "  write   a parser ", Context: "in  go", Mode: types.ModeLocal, Preset: types.PresetDefault, Model: "m"})
	b := KeyFor(types.ImproveRequest{Idea: "write a parser", Context: "in go", Mode: types.ModeLocal, Preset: types.PresetDefault, Model: "m"})
	assert.Equal(t, a, b)
}

func TestKeyForDistinguishesFields(t *testing.T) {
	base := types.ImproveRequest{Idea: "write a parser", Mode: types.ModeLocal, Preset: types.PresetDefault, Model: "m"}

	other := base
	other.Model = "n"
	assert.NotEqual(t, KeyFor(base), KeyFor(other))

	other = base
	other.Preset = types.PresetCoding
	assert.NotEqual(t, KeyFor(base), KeyFor(other))

	// Field boundaries must not smear into each other.
	ab := types.ImproveRequest{Idea: "ab", Context: "c"}
	aBC := types.ImproveRequest{Idea: "a", Context: "bc"}
	assert.NotEqual(t, KeyFor(ab), KeyFor(aBC))
}

// =============================================================================
// MEMORY STORE
// =============================================================================

func TestMemoryGetPut(t *testing.T) {
	m := NewMemory(10, 0)
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, "k", result("p")))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p", got.ImprovedPrompt)
}

func TestMemoryLRUEviction(t *testing.T) {
	m := NewMemory(2, 0)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "a", result("a")))
	require.NoError(t, m.Put(ctx, "b", result("b")))

	// Touch "a" so "b" is the eviction victim.
	_, ok, _ := m.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, m.Put(ctx, "c", result("c")))
	assert.Equal(t, 2, m.Len())

	_, ok, _ = m.Get(ctx, "b")
	assert.False(t, ok, "least-recently-used entry should be evicted")
	_, ok, _ = m.Get(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory(10, time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", result("p")))

	now = now.Add(30 * time.Second)
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(45 * time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok, "entry past TTL must expire")
	assert.Equal(t, 0, m.Len())
}

// =============================================================================
// SINGLE-FLIGHT
// =============================================================================

func TestSingleFlightComputesOnceAcrossConcurrentCallers(t *testing.T) {
	sf := NewSingleFlight(NewMemory(10, 0))

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(context.Context) (types.ImprovementResult, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return result("computed"), nil
	}
	waiterCompute := func(context.Context) (types.ImprovementResult, error) {
		atomic.AddInt32(&calls, 1)
		return result("should not run"), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, hit, err := sf.Do(context.Background(), "k", compute)
		assert.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "computed", got.ImprovedPrompt)
	}()

	<-started
	const waiters = 8
	results := make([]types.ImprovementResult, waiters)
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			defer wg.Done()
			got, _, err := sf.Do(context.Background(), "k", waiterCompute)
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}

	// Give the waiters time to park on the in-flight entry, then finish.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent duplicates must not trigger a second compute")
	for _, got := range results {
		assert.Equal(t, "computed", got.ImprovedPrompt)
	}
}

func TestSingleFlightCachedResultSkipsCompute(t *testing.T) {
	store := NewMemory(10, 0)
	sf := NewSingleFlight(store)
	require.NoError(t, store.Put(context.Background(), "k", result("stored")))

	got, hit, err := sf.Do(context.Background(), "k", func(context.Context) (types.ImprovementResult, error) {
		t.Fatal("compute must not run on a cache hit")
		return types.ImprovementResult{}, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "stored", got.ImprovedPrompt)
}

func TestSingleFlightLeaderErrorSharedWithWaiters(t *testing.T) {
	sf := NewSingleFlight(NewMemory(10, 0))

	started := make(chan struct{})
	release := make(chan struct{})
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, err := sf.Do(leaderCtx, "k", func(ctx context.Context) (types.ImprovementResult, error) {
			close(started)
			<-release
			return types.ImprovementResult{}, ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	<-started
	wg.Add(1)
	var waiterErr error
	go func() {
		defer wg.Done()
		_, _, waiterErr = sf.Do(context.Background(), "k", func(context.Context) (types.ImprovementResult, error) {
			t.Error("waiter must not compute")
			return types.ImprovementResult{}, nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancelLeader()
	close(release)
	wg.Wait()

	assert.ErrorIs(t, waiterErr, context.Canceled, "waiters share the leader's cancellation error")
}

func TestSingleFlightWaiterHonorsOwnContext(t *testing.T) {
	sf := NewSingleFlight(NewMemory(10, 0))

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, _ = sf.Do(context.Background(), "k", func(context.Context) (types.ImprovementResult, error) {
			close(started)
			<-release
			return result("late"), nil
		})
	}()

	<-started
	waiterCtx, cancelWaiter := context.WithCancel(context.Background())
	cancelWaiter()
	_, _, err := sf.Do(waiterCtx, "k", nil)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	wg.Wait()
}

// handoffStore misses on the first lookup and hits afterwards, modelling a
// leader that published its result between a caller's initial miss and that
// caller registering as the new leader.
type handoffStore struct {
	mu    sync.Mutex
	gets  int
	value types.ImprovementResult
}

func (s *handoffStore) Get(_ context.Context, _ string) (types.ImprovementResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.gets == 1 {
		return types.ImprovementResult{}, false, nil
	}
	return s.value, true, nil
}

func (s *handoffStore) Put(_ context.Context, _ string, _ types.ImprovementResult) error {
	return nil
}

func TestSingleFlightRechecksStoreBeforeComputing(t *testing.T) {
	sf := NewSingleFlight(&handoffStore{value: result("published")})

	got, hit, err := sf.Do(context.Background(), "k", func(context.Context) (types.ImprovementResult, error) {
		t.Fatal("compute must not run when the store filled during the hand-off")
		return types.ImprovementResult{}, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "published", got.ImprovedPrompt)
}

func TestSingleFlightFailureNotCached(t *testing.T) {
	sf := NewSingleFlight(NewMemory(10, 0))
	ctx := context.Background()

	_, _, err := sf.Do(ctx, "k", func(context.Context) (types.ImprovementResult, error) {
		return types.ImprovementResult{}, assert.AnError
	})
	require.Error(t, err)

	got, hit, err := sf.Do(ctx, "k", func(context.Context) (types.ImprovementResult, error) {
		return result("second try"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "second try", got.ImprovedPrompt)
}
