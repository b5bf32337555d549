package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/deskroute/internal/domain"
)

type fakePersister struct {
	mu      sync.Mutex
	data    map[string]*domain.Session
	failAll bool
	deleted []string
}

func newFakePersister() *fakePersister {
	return &fakePersister{data: make(map[string]*domain.Session)}
}

func (f *fakePersister) GetSession(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("backend down")
	}
	s, ok := f.data[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (f *fakePersister) UpsertSession(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("backend down")
	}
	f.data[s.ID] = s
	return nil
}

func (f *fakePersister) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	delete(f.data, id)
	return nil
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	s, err := NewStore(10)
	require.NoError(t, err)
	ctx := context.Background()

	first := s.GetOrCreate(ctx, "abc")
	first.AppendTurn(domain.RoleUser, "hello", domain.ChannelChat)
	first.SetIssueType(domain.IssueSoftware, "")

	second := s.GetOrCreate(ctx, "abc")
	assert.Same(t, first, second)
	assert.Equal(t, domain.IssueSoftware, second.IssueType)
	assert.Len(t, second.History, 1)
	assert.NotEmpty(t, second.ConversationID)
}

func TestNewSessionDefaults(t *testing.T) {
	t.Parallel()

	s, err := NewStore(10)
	require.NoError(t, err)

	sess := s.GetOrCreate(context.Background(), "fresh")
	assert.Equal(t, domain.IssueUnclassified, sess.IssueType)
	assert.False(t, sess.Greeted)
	assert.NotNil(t, sess.History)
	assert.NotNil(t, sess.Devices)
	assert.Contains(t, sess.ChannelFlags, domain.ChannelTelephony)
	assert.Contains(t, sess.ChannelFlags, domain.ChannelChat)
}

func TestEndThenGetOrCreateBuildsFreshSession(t *testing.T) {
	t.Parallel()

	var evicted []string
	s, err := NewStore(10, WithEvictCallback(func(id string) { evicted = append(evicted, id) }))
	require.NoError(t, err)
	ctx := context.Background()

	old := s.GetOrCreate(ctx, "abc")
	old.MarkGreeted()

	assert.True(t, s.End(ctx, "abc"))
	assert.False(t, s.End(ctx, "abc"))
	assert.Equal(t, []string{"abc"}, evicted)

	fresh := s.GetOrCreate(ctx, "abc")
	assert.NotSame(t, old, fresh)
	assert.False(t, fresh.Greeted)
}

func TestLRUCapEvictsOldest(t *testing.T) {
	t.Parallel()

	var evicted []string
	s, err := NewStore(2, WithEvictCallback(func(id string) { evicted = append(evicted, id) }))
	require.NoError(t, err)
	ctx := context.Background()

	s.GetOrCreate(ctx, "a")
	s.GetOrCreate(ctx, "b")
	s.GetOrCreate(ctx, "a")
	s.GetOrCreate(ctx, "c")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"b"}, evicted)
	_, ok := s.Get("a")
	assert.True(t, ok)
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	t.Parallel()

	s, err := NewStore(10)
	require.NoError(t, err)
	ctx := context.Background()

	s.GetOrCreate(ctx, "idle")
	time.Sleep(20 * time.Millisecond)
	s.GetOrCreate(ctx, "busy")

	expired := s.Sweep(10 * time.Millisecond)
	assert.Equal(t, []string{"idle"}, expired)
	assert.Equal(t, 1, s.Len())
}

func TestSaveWritesThroughAndRestores(t *testing.T) {
	t.Parallel()

	p := newFakePersister()
	ctx := context.Background()

	s1, err := NewStore(10, WithPersister(p))
	require.NoError(t, err)
	sess := s1.GetOrCreate(ctx, "persisted")
	sess.SetIssueType(domain.IssuePassword, "")
	sess.AppendTurn(domain.RoleUser, "forgot my password", domain.ChannelChat)
	s1.Save(ctx, sess)

	s2, err := NewStore(10, WithPersister(p))
	require.NoError(t, err)
	restored := s2.GetOrCreate(ctx, "persisted")
	assert.Equal(t, domain.IssuePassword, restored.IssueType)
	assert.Len(t, restored.History, 1)

	s2.End(ctx, "persisted")
	assert.Equal(t, []string{"persisted"}, p.deleted)
}

func TestPersisterFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	p := newFakePersister()
	p.failAll = true
	s, err := NewStore(10, WithPersister(p))
	require.NoError(t, err)
	ctx := context.Background()

	sess := s.GetOrCreate(ctx, "x")
	require.NotNil(t, sess)
	s.Save(ctx, sess)

	got, ok := s.Get("x")
	assert.True(t, ok)
	assert.Same(t, sess, got)
}

func TestLockSerializesSameSession(t *testing.T) {
	t.Parallel()

	s, err := NewStore(10)
	require.NoError(t, err)

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("same")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	s.locksMu.Lock()
	assert.Empty(t, s.locks)
	s.locksMu.Unlock()
}

func TestLockGrantsInArrivalOrder(t *testing.T) {
	t.Parallel()

	s, err := NewStore(10)
	require.NoError(t, err)

	queued := func() int {
		s.locksMu.Lock()
		defer s.locksMu.Unlock()
		if kl, ok := s.locks["same"]; ok {
			return kl.refs
		}
		return 0
	}

	unlock := s.Lock("same")

	const n = 8
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release := s.Lock("same")
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			release()
		}(i)
		require.Eventually(t, func() bool { return queued() == i+2 }, time.Second, time.Millisecond)
	}

	unlock()
	wg.Wait()

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, order)
}

func TestSweepSkipsSessionsWithTurnInFlight(t *testing.T) {
	t.Parallel()

	var evicted []string
	s, err := NewStore(10, WithEvictCallback(func(id string) { evicted = append(evicted, id) }))
	require.NoError(t, err)
	ctx := context.Background()

	s.GetOrCreate(ctx, "in-flight")
	s.GetOrCreate(ctx, "idle")
	time.Sleep(5 * time.Millisecond)

	unlock := s.Lock("in-flight")
	assert.Equal(t, []string{"idle"}, s.Sweep(time.Millisecond))
	_, ok := s.Get("in-flight")
	assert.True(t, ok)
	assert.Equal(t, []string{"idle"}, evicted)

	unlock()
	assert.Equal(t, []string{"in-flight"}, s.Sweep(time.Millisecond))
}

func TestLockDifferentSessionsRunInParallel(t *testing.T) {
	t.Parallel()

	s, err := NewStore(10)
	require.NoError(t, err)

	unlockA := s.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := s.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
}

func TestSweeperStopsOnCancel(t *testing.T) {
	t.Parallel()

	s, err := NewStore(10)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	s.GetOrCreate(ctx, "old")
	StartSweeper(ctx, s, 5*time.Millisecond, time.Nanosecond)

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
