package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbnjay/memory"
	"go.uber.org/zap"

	"github.com/exascience/aprt"
	"github.com/exascience/aprt/internal"
	"github.com/exascience/aprt/metrics"
)

const (
	// DefaultRetained is the default number of recently used values that a
	// SoftMap keeps strongly reachable.
	DefaultRetained = 1024

	// DefaultFreeMemoryFraction is the fraction of total memory below which
	// the default pressure policy reports memory pressure.
	DefaultFreeMemoryFraction = 0.1

	pressureCheckInterval = 256
)

/*
FreeMemoryBelow returns a pressure policy that reports pressure when the
free system memory drops below fraction of the total system memory. If the
memory sizes cannot be determined, the policy never reports pressure.
*/
func FreeMemoryBelow(fraction float64) func() bool {
	return func() bool {
		total := memory.TotalMemory()
		if total == 0 {
			return false
		}
		return float64(memory.FreeMemory()) < fraction*float64(total)
	}
}

type softOptions struct {
	splits   int
	retained int
	pressure func() bool
}

// A SoftOption configures a SoftMap.
type SoftOption func(*softOptions)

// WithSplits sets the number of individually locked splits. If n <= 0,
// runtime.GOMAXPROCS(0) is used.
func WithSplits(n int) SoftOption {
	return func(o *softOptions) { o.splits = n }
}

// WithRetained sets the number of recently used values that are kept
// strongly reachable. It panics if n <= 0.
func WithRetained(n int) SoftOption {
	if n <= 0 {
		panic(fmt.Errorf("%w: invalid number of retained values: %v", aprt.ErrIllegalArgument, n))
	}
	return func(o *softOptions) { o.retained = n }
}

// WithPressure sets the policy that decides whether the map should release
// its strongly retained values. A nil policy never reports pressure.
func WithPressure(pressure func() bool) SoftOption {
	return func(o *softOptions) { o.pressure = pressure }
}

type softSplit[K comparable, V any] struct {
	sync.RWMutex
	m map[K]weak.Pointer[V]
}

/*
A SoftMap is a concurrent map whose values may be reclaimed by the garbage
collector.

Up to a bounded number of recently used values are kept strongly reachable
by the map. All other values stay in the map only as long as something else
references them. When the pressure policy reports memory pressure, the map
releases all values it retains, and they become reclaimable as well.

The retention bound is the effective size of the cache: values beyond the
most recently used ones that nothing else references are lost at the next
garbage collection, even without memory pressure. Size it with
WithRetained to the working set that must survive.

Get never returns a reclaimed value: once a value is gone, the entry reads
as absent. Entries whose values were reclaimed are expunged by the next Put
after a garbage collection, and Size and IsEmpty count only live entries.
A SoftMap cannot enumerate its entries: EntrySet and KeySet fail with
errors.ErrUnsupported.

Nil values cannot be stored.
*/
type SoftMap[K comparable, V any] struct {
	splits   []softSplit[K, V]
	retained *lru.Cache[K, *V]
	pressure func() bool
	puts     atomic.Uint64
	sweep    sweeper
}

// NewSoftMap returns an empty SoftMap. By default, it retains
// DefaultRetained values and uses FreeMemoryBelow(DefaultFreeMemoryFraction)
// as its pressure policy.
func NewSoftMap[K comparable, V any](opts ...SoftOption) *SoftMap[K, V] {
	o := softOptions{
		retained: DefaultRetained,
		pressure: FreeMemoryBelow(DefaultFreeMemoryFraction),
	}
	for _, opt := range opts {
		opt(&o)
	}
	retained, err := lru.New[K, *V](o.retained)
	if err != nil {
		panic(internal.WrapPanic(err))
	}
	splits := make([]softSplit[K, V], splitCount(o.splits))
	for i := range splits {
		splits[i].m = make(map[K]weak.Pointer[V])
	}
	return &SoftMap[K, V]{
		splits:   splits,
		retained: retained,
		pressure: o.pressure,
	}
}

func (s *SoftMap[K, V]) split(key K) *softSplit[K, V] {
	return &s.splits[hash(key)%uint64(len(s.splits))]
}

// Get returns the value for key, unless it is absent or was reclaimed.
func (s *SoftMap[K, V]) Get(key K) (value *V, ok bool) {
	split := s.split(key)
	split.RLock()
	wp, found := split.m[key]
	split.RUnlock()
	if found {
		value = wp.Value()
	}
	if value == nil {
		metrics.CacheLookups.WithLabelValues("soft", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("soft", "hit").Inc()
	if _, retained := s.retained.Get(key); !retained {
		split.Lock()
		if split.m[key] == wp {
			s.retained.Add(key, value)
		}
		split.Unlock()
	}
	return value, true
}

// Put stores value for key and returns the previous live value, if any.
// Put panics if value is nil.
func (s *SoftMap[K, V]) Put(key K, value *V) (previous *V, loaded bool) {
	if value == nil {
		panic(fmt.Errorf("%w: nil soft map value", aprt.ErrIllegalArgument))
	}
	s.expunge()
	split := s.split(key)
	split.Lock()
	old, found := split.m[key]
	split.m[key] = weak.Make(value)
	s.retained.Add(key, value)
	split.Unlock()
	if s.puts.Add(1)%pressureCheckInterval == 0 && s.pressure != nil && s.pressure() {
		s.Reclaim()
	}
	if found {
		previous = old.Value()
	}
	return previous, previous != nil
}

// Remove deletes the entry for key and returns its live value, if any.
func (s *SoftMap[K, V]) Remove(key K) (previous *V, loaded bool) {
	split := s.split(key)
	split.Lock()
	old, found := split.m[key]
	if found {
		delete(split.m, key)
		s.retained.Remove(key)
	}
	split.Unlock()
	if found {
		previous = old.Value()
	}
	return previous, previous != nil
}

// Clear removes all entries.
func (s *SoftMap[K, V]) Clear() {
	for i := range s.splits {
		split := &s.splits[i]
		split.Lock()
		clear(split.m)
		split.Unlock()
	}
	s.retained.Purge()
}

// Size returns the number of entries whose values are still live.
func (s *SoftMap[K, V]) Size() (size int) {
	for i := range s.splits {
		split := &s.splits[i]
		split.RLock()
		for _, wp := range split.m {
			if wp.Value() != nil {
				size++
			}
		}
		split.RUnlock()
	}
	return
}

// IsEmpty reports whether the map has no live entries.
func (s *SoftMap[K, V]) IsEmpty() bool {
	for i := range s.splits {
		split := &s.splits[i]
		split.RLock()
		for _, wp := range split.m {
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
func (s *SoftMap[K, V]) EntrySet() ([]Entry[K, *V], error) {
	return nil, fmt.Errorf("soft map entry set: %w", errors.ErrUnsupported)
}

// KeySet is not supported.
func (s *SoftMap[K, V]) KeySet() ([]K, error) {
	return nil, fmt.Errorf("soft map key set: %w", errors.ErrUnsupported)
}

// Reclaim releases all values the map keeps strongly reachable, so that the
// garbage collector may reclaim the ones that nothing else references.
func (s *SoftMap[K, V]) Reclaim() {
	n := s.retained.Len()
	s.retained.Purge()
	metrics.CacheReclaims.Inc()
	internal.Logger().Debug("soft map released retained values", zap.Int("retained", n))
}

func (s *SoftMap[K, V]) expunge() {
	if !s.sweep.due() {
		return
	}
	var n int
	for i := range s.splits {
		split := &s.splits[i]
		split.Lock()
		for key, wp := range split.m {
			if wp.Value() == nil {
				delete(split.m, key)
				n++
			}
		}
		split.Unlock()
	}
	if n > 0 {
		metrics.CacheExpunged.WithLabelValues("soft").Add(float64(n))
	}
}
