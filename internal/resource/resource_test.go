package resource_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/resource"
)

func TestSlots_AcquireReleaseRoundTrip(t *testing.T) {
	s := resource.NewSlots(1)
	h, ok := s.Acquire()
	require.True(t, ok)

	_, ok2 := s.Acquire()
	require.False(t, ok2, "second acquire should fail at capacity 1")

	h.Release()
	_, ok3 := s.Acquire()
	require.True(t, ok3)
}

func TestSlots_DoubleReleaseIsSafe(t *testing.T) {
	s := resource.NewSlots(1)
	h, _ := s.Acquire()
	h.Release()
	h.Release()
	_, ok := s.Acquire()
	require.True(t, ok)
}

func TestMemoryBudget_RejectsOverCeiling(t *testing.T) {
	b := resource.NewMemoryBudget(100)
	require.True(t, b.Allocate(60))
	require.False(t, b.Allocate(60))
	require.Equal(t, int64(60), b.Allocated())
	require.Equal(t, int64(60), b.Peak())
}

func TestMemoryBudget_ZeroCeilingDisablesCheck(t *testing.T) {
	b := resource.NewMemoryBudget(0)
	require.True(t, b.Allocate(1<<40))
}

type fakeConn struct{ closed bool }

func (f *fakeConn) Close() error { f.closed = true; return nil }

func TestPool_PutGetRoundTrip(t *testing.T) {
	p := resource.NewPool(resource.DefaultPoolConfig())
	c := &fakeConn{}
	p.Put("upstream-a", c)

	got := p.Get("upstream-a")
	require.Same(t, c, got)
	require.Nil(t, p.Get("upstream-a"))
}

func TestPool_CleanupEvictsExpired(t *testing.T) {
	cfg := resource.PoolConfig{MaxAge: time.Nanosecond, IdleTimeout: time.Nanosecond, PerKeyCap: 4}
	p := resource.NewPool(cfg)
	c := &fakeConn{}
	p.Put("upstream-a", c)

	time.Sleep(time.Millisecond)
	removed := p.Cleanup()
	require.Equal(t, 1, removed)
	require.True(t, c.closed)
}

func TestPool_PerKeyCapEvictsOldest(t *testing.T) {
	cfg := resource.PoolConfig{MaxAge: time.Hour, IdleTimeout: time.Hour, PerKeyCap: 1}
	p := resource.NewPool(cfg)
	first := &fakeConn{}
	second := &fakeConn{}
	p.Put("upstream-a", first)
	p.Put("upstream-a", second)

	require.True(t, first.closed, "oldest entry should be evicted when per-key cap is exceeded")
	got := p.Get("upstream-a")
	require.Same(t, second, got)
}
