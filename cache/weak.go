package cache

import (
	"errors"
	"fmt"
	"sync"
	"weak"

	"github.com/exascience/aprt"
	"github.com/exascience/aprt/metrics"
)

type weakSplit[K, V any] struct {
	sync.RWMutex
	m map[weak.Pointer[K]]V
}

/*
A WeakMap is a concurrent map that holds its keys weakly. Keys are compared
by identity. Once a key is no longer referenced outside the map and the
garbage collector reclaims it, its entry disappears from the map, even
though the map still holds the value strongly until the entry is expunged.

Entries with reclaimed keys are expunged by the next Put after a garbage
collection, and Size and IsEmpty count only live entries. A WeakMap cannot
enumerate its entries: EntrySet and KeySet fail with errors.ErrUnsupported.

A value must not reference its own key, or the entry is never reclaimed.
Nil keys cannot be stored.
*/
type WeakMap[K, V any] struct {
	splits []weakSplit[K, V]
	sweep  sweeper
}

// NewWeakMap returns an empty WeakMap with size splits. If size <= 0,
// runtime.GOMAXPROCS(0) is used.
func NewWeakMap[K, V any](size int) *WeakMap[K, V] {
	splits := make([]weakSplit[K, V], splitCount(size))
	for i := range splits {
		splits[i].m = make(map[weak.Pointer[K]]V)
	}
	return &WeakMap[K, V]{splits: splits}
}

func (w *WeakMap[K, V]) split(key weak.Pointer[K]) *weakSplit[K, V] {
	return &w.splits[hash(key)%uint64(len(w.splits))]
}

// Get returns the value for key.
func (w *WeakMap[K, V]) Get(key *K) (value V, ok bool) {
	if key == nil {
		metrics.CacheLookups.WithLabelValues("weak", "miss").Inc()
		return
	}
	wp := weak.Make(key)
	split := w.split(wp)
	split.RLock()
	value, ok = split.m[wp]
	split.RUnlock()
	if ok {
		metrics.CacheLookups.WithLabelValues("weak", "hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("weak", "miss").Inc()
	}
	return
}

// Put stores value for key and returns the previous value, if any. Put
// panics if key is nil.
func (w *WeakMap[K, V]) Put(key *K, value V) (previous V, loaded bool) {
	if key == nil {
		panic(fmt.Errorf("%w: nil weak map key", aprt.ErrIllegalArgument))
	}
	w.expunge()
	wp := weak.Make(key)
	split := w.split(wp)
	split.Lock()
	previous, loaded = split.m[wp]
	split.m[wp] = value
	split.Unlock()
	return
}

// Remove deletes the entry for key and returns its value, if any.
func (w *WeakMap[K, V]) Remove(key *K) (previous V, loaded bool) {
	if key == nil {
		return
	}
	wp := weak.Make(key)
	split := w.split(wp)
	split.Lock()
	if previous, loaded = split.m[wp]; loaded {
		delete(split.m, wp)
	}
	split.Unlock()
	return
}

// Clear removes all entries.
func (w *WeakMap[K, V]) Clear() {
	for i := range w.splits {
		split := &w.splits[i]
		split.Lock()
		clear(split.m)
		split.Unlock()
	}
}

// Size returns the number of entries whose keys are still live.
func (w *WeakMap[K, V]) Size() (size int) {
	for i := range w.splits {
		split := &w.splits[i]
		split.RLock()
		for wp := range split.m {
			if wp.Value() != nil {
				size++
			}
		}
		split.RUnlock()
	}
	return
}

// IsEmpty reports whether the map has no live entries.
func (w *WeakMap[K, V]) IsEmpty() bool {
	for i := range w.splits {
		split := &w.splits[i]
		split.RLock()
		for wp := range split.m {
			if wp.Value() != nil {
				split.RUnlock()
				return false
			}
		}
		split.RUnlock()
	}
	return true
}

// EntrySet is not supported.
func (w *WeakMap[K, V]) EntrySet() ([]Entry[*K, V], error) {
	return nil, fmt.Errorf("weak map entry set: %w", errors.ErrUnsupported)
}

// KeySet is not supported.
func (w *WeakMap[K, V]) KeySet() ([]*K, error) {
	return nil, fmt.Errorf("weak map key set: %w", errors.ErrUnsupported)
}

func (w *WeakMap[K, V]) expunge() {
	if !w.sweep.due() {
		return
	}
	var n int
	for i := range w.splits {
		split := &w.splits[i]
		split.Lock()
		for wp := range split.m {
			if wp.Value() == nil {
				delete(split.m, wp)
				n++
			}
		}
		split.Unlock()
	}
	if n > 0 {
		metrics.CacheExpunged.WithLabelValues("weak").Add(float64(n))
	}
}
