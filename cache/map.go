/*
Package cache provides concurrent maps for memoizing derived helper
objects.

ConcurrentMap is a parallel map that consists of several split maps that
can be individually locked. SoftMap and WeakMap build on the same split
design, but let the garbage collector reclaim values or keys: SoftMap
retains a bounded number of recently used values and gives up the others
under memory pressure, WeakMap drops an entry once its key is no longer
referenced outside the map. ShutdownMap guards any map against use after
its owner has been torn down, and Memo combines them into a memoizer.
*/
package cache

import (
	"context"
	"hash/maphash"
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/exascience/aprt/parallel"
)

/*
A Map is the mapping contract shared by the maps in this package. All
methods are safe for concurrent use, and operations on the same key are
atomic.

Put and Remove return the previous value, if any. EntrySet and KeySet
return snapshots of the map, or an error wrapping errors.ErrUnsupported if
the map cannot provide them without defeating its reclamation contract.
*/
type Map[K comparable, V any] interface {
	Get(key K) (value V, ok bool)
	Put(key K, value V) (previous V, loaded bool)
	Remove(key K) (previous V, loaded bool)
	Clear()
	Size() int
	IsEmpty() bool
	EntrySet() ([]Entry[K, V], error)
	KeySet() ([]K, error)
}

// An Entry is a key/value pair of a snapshot returned by EntrySet.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

/*
A Hasher represents an object that has a hash value. Keys that implement
Hasher are distributed over splits by their Hash method, strings are hashed
with xxhash, and all other keys with hash/maphash.
*/
type Hasher interface {
	Hash() uint64
}

var seed = maphash.MakeSeed()

func hash[K comparable](key K) uint64 {
	switch k := any(key).(type) {
	case Hasher:
		return k.Hash()
	case string:
		return xxhash.Sum64String(k)
	}
	return maphash.Comparable(seed, key)
}

func splitCount(size int) int {
	if size <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return size
}

/*
A Split is a partial map that belongs to a larger ConcurrentMap, which can
be individually locked. Its enclosed map can then be individually accessed
without blocking accesses to other splits.
*/
type Split[K comparable, V any] struct {
	sync.RWMutex
	Map map[K]V
}

/*
A ConcurrentMap is a parallel map that consists of several split maps that
can be individually locked and accessed. It holds its keys and values
strongly.

The zero ConcurrentMap is not valid.
*/
type ConcurrentMap[K comparable, V any] struct {
	splits []Split[K, V]
}

/*
NewConcurrentMap returns a map with size splits.

If size is <= 0, runtime.GOMAXPROCS(0) is used instead.
*/
func NewConcurrentMap[K comparable, V any](size int) *ConcurrentMap[K, V] {
	splits := make([]Split[K, V], splitCount(size))
	for i := range splits {
		splits[i].Map = make(map[K]V)
	}
	return &ConcurrentMap[K, V]{splits}
}

/*
Split retrieves the split for a particular key.

The split must be locked/unlocked properly by user programs to safely
access its contents. In many cases, it is easier to use one of the
high-level methods, like Get, Put, LoadOrStore, LoadOrCompute, Remove, and
Modify, which implicitly take care of proper locking.
*/
func (m *ConcurrentMap[K, V]) Split(key K) *Split[K, V] {
	splits := m.splits
	return &splits[hash(key)%uint64(len(splits))]
}

// Get returns the value stored in the map for a key. The ok result
// indicates whether value was found in the map.
func (m *ConcurrentMap[K, V]) Get(key K) (value V, ok bool) {
	split := m.Split(key)
	split.RLock()
	value, ok = split.Map[key]
	split.RUnlock()
	return
}

// Put stores the value for a key and returns the previous value, if any.
func (m *ConcurrentMap[K, V]) Put(key K, value V) (previous V, loaded bool) {
	split := m.Split(key)
	split.Lock()
	previous, loaded = split.Map[key]
	split.Map[key] = value
	split.Unlock()
	return
}

// Remove deletes the value for a key and returns it, if any.
func (m *ConcurrentMap[K, V]) Remove(key K) (previous V, loaded bool) {
	split := m.Split(key)
	split.Lock()
	if previous, loaded = split.Map[key]; loaded {
		delete(split.Map, key)
	}
	split.Unlock()
	return
}

// Clear removes all entries. Entries stored concurrently may or may not
// survive.
func (m *ConcurrentMap[K, V]) Clear() {
	for i := range m.splits {
		split := &m.splits[i]
		split.Lock()
		clear(split.Map)
		split.Unlock()
	}
}

// Size returns the number of entries.
func (m *ConcurrentMap[K, V]) Size() (size int) {
	for i := range m.splits {
		split := &m.splits[i]
		split.RLock()
		size += len(split.Map)
		split.RUnlock()
	}
	return
}

// IsEmpty reports whether the map has no entries.
func (m *ConcurrentMap[K, V]) IsEmpty() bool {
	for i := range m.splits {
		split := &m.splits[i]
		split.RLock()
		n := len(split.Map)
		split.RUnlock()
		if n > 0 {
			return false
		}
	}
	return true
}

// EntrySet returns a snapshot of all entries, with the same consistency as
// Range.
func (m *ConcurrentMap[K, V]) EntrySet() ([]Entry[K, V], error) {
	var entries []Entry[K, V]
	m.Range(func(key K, value V) bool {
		entries = append(entries, Entry[K, V]{key, value})
		return true
	})
	return entries, nil
}

// KeySet returns a snapshot of all keys, with the same consistency as
// Range.
func (m *ConcurrentMap[K, V]) KeySet() ([]K, error) {
	var keys []K
	m.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys, nil
}

/*
LoadOrStore returns the existing value for the key if
present. Otherwise, it stores and returns the given value. The loaded
result is true if the value was loaded, false if stored.
*/
func (m *ConcurrentMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	split := m.Split(key)
	split.RLock()
	actual, loaded = split.Map[key]
	split.RUnlock()
	if loaded {
		return
	}
	split.Lock()
	if actual, loaded = split.Map[key]; !loaded {
		actual = value
		split.Map[key] = value
	}
	split.Unlock()
	return
}

/*
LoadOrCompute returns the existing value for the key if
present. Otherwise, it calls computer, and then stores and returns the
computed value. The loaded result is true if the value was loaded,
false if stored.

The computer function is invoked either zero times or once. While
computer is executing no locks related to this map are being held.

The computed value may not be stored and returned, since a parallel
thread may have successfully stored a value for the key in the
meantime. In that case, the value stored by the parallel thread is
returned instead.
*/
func (m *ConcurrentMap[K, V]) LoadOrCompute(key K, computer func() V) (actual V, loaded bool) {
	split := m.Split(key)
	split.RLock()
	actual, loaded = split.Map[key]
	split.RUnlock()
	if loaded {
		return
	}
	value := computer()
	split.Lock()
	if actual, loaded = split.Map[key]; !loaded {
		actual = value
		split.Map[key] = actual
	}
	split.Unlock()
	return
}

/*
Modify looks up a value for the key if present and passes it to the
modifier. The ok parameter indicates whether value was found in the
map. The replacement returned by the modifier is then stored as a
value for key in the map if storeNotDelete is true, otherwise the
value is deleted from the map. Modify returns the same results as
modifier.

The modifier is invoked exactly once. While modifier is executing, a
lock is being held on a portion of the map, so the function should be
brief.
*/
func (m *ConcurrentMap[K, V]) Modify(key K, modifier func(value V, ok bool) (replacement V, storeNotDelete bool)) (replacement V, storeNotDelete bool) {
	split := m.Split(key)
	split.Lock()
	value, ok := split.Map[key]
	if replacement, storeNotDelete = modifier(value, ok); storeNotDelete {
		split.Map[key] = replacement
	} else {
		delete(split.Map, key)
	}
	split.Unlock()
	return
}

func (split *Split[K, V]) splitRange(f func(key K, value V) bool) bool {
	split.RLock()
	defer split.RUnlock()
	for key, value := range split.Map {
		if !f(key, value) {
			return false
		}
	}
	return true
}

/*
Range calls f sequentially for each key and value present in the
map. If f returns false, Range stops the iteration.

Range does not necessarily correspond to any consistent snapshot of
the map's contents: no key will be visited more than once, but if the
value for any key is stored or deleted concurrently, Range may reflect
any mapping for that key from any point during the Range call.

f must not modify the map.
*/
func (m *ConcurrentMap[K, V]) Range(f func(key K, value V) bool) {
	for i := range m.splits {
		if !m.splits[i].splitRange(f) {
			return
		}
	}
}

/*
ParallelRange calls f in parallel for each key and value present in
the map, splitting the work according to the execution context visible
through ctx. If f returns false, ParallelRange stops the iteration of the
current split, and reports false.

ParallelRange has the same consistency as Range. f must be safe for
concurrent use and must not modify the map.
*/
func (m *ConcurrentMap[K, V]) ParallelRange(ctx context.Context, f func(key K, value V) bool) bool {
	splits := m.splits
	result, _ := parallel.RecursiveCompute(ctx, 0, len(splits)-1,
		func(_ context.Context, i int) (bool, error) {
			return splits[i].splitRange(f), nil
		},
		func(x, y bool) (bool, error) {
			return x && y, nil
		},
	)
	return result
}
