package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/aprt/execution"
)

var (
	_ Map[string, int]   = (*ConcurrentMap[string, int])(nil)
	_ Map[string, *int]  = (*SoftMap[string, int])(nil)
	_ Map[*payload, int] = (*WeakMap[payload, int])(nil)
	_ Map[point, string] = (*ConcurrentMap[point, string])(nil)
	_ Hasher             = point{}
)

type point struct{ x, y int }

func (p point) Hash() uint64 {
	return uint64(p.x)*31 + uint64(p.y)
}

func TestConcurrentMapBasics(t *testing.T) {
	m := NewConcurrentMap[string, int](4)
	assert.True(t, m.IsEmpty())

	_, loaded := m.Put("one", 1)
	assert.False(t, loaded)
	previous, loaded := m.Put("one", 11)
	assert.True(t, loaded)
	assert.Equal(t, 1, previous)

	value, ok := m.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 11, value)
	assert.Equal(t, 1, m.Size())
	assert.False(t, m.IsEmpty())

	previous, loaded = m.Remove("one")
	assert.True(t, loaded)
	assert.Equal(t, 11, previous)
	_, loaded = m.Remove("one")
	assert.False(t, loaded)
	assert.True(t, m.IsEmpty())
}

func TestConcurrentMapHasherKeys(t *testing.T) {
	m := NewConcurrentMap[point, string](3)
	for i := 0; i < 10; i++ {
		m.Put(point{i, -i}, fmt.Sprint(i))
	}
	value, ok := m.Get(point{4, -4})
	assert.True(t, ok)
	assert.Equal(t, "4", value)
	keys, err := m.KeySet()
	require.NoError(t, err)
	assert.Len(t, keys, 10)
}

func TestConcurrentMapLoadOrComputeAndModify(t *testing.T) {
	m := NewConcurrentMap[int, int](0)
	var calls int
	actual, loaded := m.LoadOrCompute(7, func() int { calls++; return 49 })
	assert.False(t, loaded)
	assert.Equal(t, 49, actual)
	actual, loaded = m.LoadOrCompute(7, func() int { calls++; return 0 })
	assert.True(t, loaded)
	assert.Equal(t, 49, actual)
	assert.Equal(t, 1, calls)

	actual, loaded = m.LoadOrStore(7, 1)
	assert.True(t, loaded)
	assert.Equal(t, 49, actual)

	m.Modify(7, func(value int, ok bool) (int, bool) { return value + 1, ok })
	value, _ := m.Get(7)
	assert.Equal(t, 50, value)
	m.Modify(7, func(int, bool) (int, bool) { return 0, false })
	_, ok := m.Get(7)
	assert.False(t, ok)
}

func TestConcurrentMapConcurrentAccess(t *testing.T) {
	m := NewConcurrentMap[int, int](8)
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := g*100 + i
				m.Put(key, key)
				value, ok := m.Get(key)
				assert.True(t, ok)
				assert.Equal(t, key, value)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 1600, m.Size())

	entries, err := m.EntrySet()
	require.NoError(t, err)
	assert.Len(t, entries, 1600)
	for _, e := range entries {
		assert.Equal(t, e.Key, e.Value)
	}

	m.Clear()
	assert.True(t, m.IsEmpty())
}

func TestConcurrentMapParallelRange(t *testing.T) {
	m := NewConcurrentMap[int, int](8)
	for i := 0; i < 1000; i++ {
		m.Put(i, i)
	}
	ctx := execution.SetThreadContext(context.Background(), execution.New(execution.WithNumberOfProcessors(4)))

	var sum atomic.Int64
	assert.True(t, m.ParallelRange(ctx, func(_, value int) bool {
		sum.Add(int64(value))
		return true
	}))
	assert.Equal(t, int64(999*1000/2), sum.Load())

	assert.False(t, m.ParallelRange(ctx, func(key, _ int) bool {
		return key != 500
	}))
}
