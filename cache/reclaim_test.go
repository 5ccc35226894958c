package cache

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/aprt/metrics"
)

// payload is large enough to stay out of the tiny allocator, so that it is
// reclaimed on its own.
type payload struct {
	name string
	data [128]byte
}

//go:noinline
func putPayload(m *SoftMap[string, payload], key string) {
	m.Put(key, &payload{name: key})
}

//go:noinline
func putWeakKey(m *WeakMap[payload, int], value int) {
	m.Put(&payload{name: "transient"}, value)
}

// eventually runs garbage collections until cond holds.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 20; i++ {
		if cond() {
			return
		}
		runtime.GC()
	}
	t.Fatal("condition not reached after repeated garbage collections")
}

func TestSoftMapBasics(t *testing.T) {
	m := NewSoftMap[string, payload](WithRetained(8), WithPressure(nil))
	assert.True(t, m.IsEmpty())

	a := &payload{name: "a"}
	_, loaded := m.Put("a", a)
	assert.False(t, loaded)
	value, ok := m.Get("a")
	require.True(t, ok)
	assert.Same(t, a, value)

	b := &payload{name: "b"}
	previous, loaded := m.Put("a", b)
	assert.True(t, loaded)
	assert.Same(t, a, previous)
	assert.Equal(t, 1, m.Size())

	previous, loaded = m.Remove("a")
	assert.True(t, loaded)
	assert.Same(t, b, previous)
	assert.True(t, m.IsEmpty())

	assert.Panics(t, func() { m.Put("nil", nil) })
}

func TestSoftMapReleasesBeyondRetained(t *testing.T) {
	m := NewSoftMap[string, payload](WithRetained(1), WithPressure(nil))
	putPayload(m, "old")
	keep := &payload{name: "new"}
	m.Put("new", keep)

	eventually(t, func() bool { return m.Size() == 1 })
	_, ok := m.Get("old")
	assert.False(t, ok)
	value, ok := m.Get("new")
	assert.True(t, ok)
	assert.Same(t, keep, value)

	before := testutil.ToFloat64(metrics.CacheExpunged.WithLabelValues("soft"))
	m.Put("another", &payload{})
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.CacheExpunged.WithLabelValues("soft")), before+1)
	runtime.KeepAlive(keep)
}

func TestSoftMapReclaim(t *testing.T) {
	m := NewSoftMap[string, payload](WithRetained(16), WithPressure(nil))
	putPayload(m, "x")
	runtime.GC()
	assert.Equal(t, 1, m.Size())

	before := testutil.ToFloat64(metrics.CacheReclaims)
	m.Reclaim()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CacheReclaims))
	eventually(t, m.IsEmpty)
}

func TestSoftMapPressure(t *testing.T) {
	var checks int
	m := NewSoftMap[int, payload](WithPressure(func() bool {
		checks++
		return true
	}))
	before := testutil.ToFloat64(metrics.CacheReclaims)
	for i := 0; i < pressureCheckInterval; i++ {
		m.Put(i, &payload{})
	}
	assert.Equal(t, 1, checks)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CacheReclaims))
}

func TestFreeMemoryBelow(t *testing.T) {
	assert.False(t, FreeMemoryBelow(0)())
}

func TestWeakMapBasics(t *testing.T) {
	m := NewWeakMap[payload, int](4)
	k1, k2 := &payload{name: "k"}, &payload{name: "k"}

	m.Put(k1, 1)
	m.Put(k2, 2)
	value, ok := m.Get(k1)
	assert.True(t, ok)
	assert.Equal(t, 1, value)
	value, ok = m.Get(k2)
	assert.True(t, ok)
	assert.Equal(t, 2, value)
	assert.Equal(t, 2, m.Size())

	previous, loaded := m.Put(k1, 10)
	assert.True(t, loaded)
	assert.Equal(t, 1, previous)

	previous, loaded = m.Remove(k2)
	assert.True(t, loaded)
	assert.Equal(t, 2, previous)
	_, ok = m.Get(nil)
	assert.False(t, ok)
	assert.Panics(t, func() { m.Put(nil, 0) })

	m.Clear()
	assert.True(t, m.IsEmpty())
	runtime.KeepAlive(k1)
	runtime.KeepAlive(k2)
}

func TestWeakMapDropsUnreachableKeys(t *testing.T) {
	m := NewWeakMap[payload, int](4)
	live := &payload{name: "live"}
	m.Put(live, 1)
	putWeakKey(m, 2)

	eventually(t, func() bool { return m.Size() == 1 })
	assert.False(t, m.IsEmpty())

	before := testutil.ToFloat64(metrics.CacheExpunged.WithLabelValues("weak"))
	m.Put(&payload{name: "next"}, 3)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.CacheExpunged.WithLabelValues("weak")), before+1)

	value, ok := m.Get(live)
	assert.True(t, ok)
	assert.Equal(t, 1, value)
	runtime.KeepAlive(live)
}

func TestUnsupportedViews(t *testing.T) {
	soft := NewSoftMap[string, int]()
	_, err := soft.EntrySet()
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
	_, err = soft.KeySet()
	assert.True(t, errors.Is(err, errors.ErrUnsupported))

	weak := NewWeakMap[int, int](0)
	_, err = weak.EntrySet()
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
	_, err = weak.KeySet()
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
}

func TestSoftMapConcurrentSameKeys(t *testing.T) {
	const goroutines, rounds = 8, 500
	m := NewSoftMap[string, payload](WithRetained(2), WithSplits(2), WithPressure(nil))
	keys := []string{"a", "b", "c"}
	values := make([]*payload, goroutines)
	allowed := make(map[*payload]bool, goroutines)
	for g := range values {
		values[g] = &payload{name: fmt.Sprint(g)}
		allowed[values[g]] = true
	}

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := keys[(g+i)%len(keys)]
				if previous, loaded := m.Put(key, values[g]); loaded {
					assert.True(t, allowed[previous])
				}
				if value, ok := m.Get(key); ok {
					assert.True(t, allowed[value])
				}
				if i%7 == 0 {
					if previous, loaded := m.Remove(key); loaded {
						assert.True(t, allowed[previous])
					}
				}
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			putPayload(m, fmt.Sprint("transient", i))
			runtime.GC()
		}
	}()
	wg.Wait()

	for _, key := range keys {
		if value, ok := m.Get(key); ok {
			assert.True(t, allowed[value])
		}
	}
	assert.LessOrEqual(t, m.Size(), len(keys)+20)
	runtime.KeepAlive(values)
}

func TestWeakMapConcurrentSameKeys(t *testing.T) {
	const goroutines, rounds = 8, 500
	m := NewWeakMap[payload, int](2)
	keys := []*payload{{name: "a"}, {name: "b"}, {name: "c"}}
	valid := func(value int) bool { return value >= 0 && value < goroutines }

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := keys[(g+i)%len(keys)]
				if previous, loaded := m.Put(key, g); loaded {
					assert.True(t, valid(previous))
				}
				if value, ok := m.Get(key); ok {
					assert.True(t, valid(value))
				}
				if i%7 == 0 {
					if previous, loaded := m.Remove(key); loaded {
						assert.True(t, valid(previous))
					}
				}
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			putWeakKey(m, goroutines+i)
			runtime.GC()
		}
	}()
	wg.Wait()

	for _, key := range keys {
		m.Put(key, 0)
	}
	eventually(t, func() bool { return m.Size() == len(keys) })
	for _, key := range keys {
		value, ok := m.Get(key)
		assert.True(t, ok)
		assert.Equal(t, 0, value)
	}
	runtime.KeepAlive(keys)
}
