package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/exascience/aprt"
	"github.com/exascience/aprt/internal"
)

// A ShutdownFlag records that the owner of one or more maps has been torn
// down. The zero ShutdownFlag is ready to use.
type ShutdownFlag struct {
	shutdown atomic.Bool
}

// MarkShutdown sets the flag. It is idempotent.
func (f *ShutdownFlag) MarkShutdown() {
	if f.shutdown.CompareAndSwap(false, true) {
		internal.Logger().Debug("cache owner shut down")
	}
}

// IsShutdown reports whether MarkShutdown has been called.
func (f *ShutdownFlag) IsShutdown() bool {
	return f.shutdown.Load()
}

/*
A ShutdownMap guards a Map against use after its owner has been shut down.

Until the flag is marked, every operation is delegated to the wrapped map.
Afterwards, every operation fails with an error wrapping
aprt.ErrRuntimeState. Operations that started before MarkShutdown may still
complete.
*/
type ShutdownMap[K comparable, V any] struct {
	m    Map[K, V]
	flag *ShutdownFlag
}

// NewShutdownMap wraps m. If flag is nil, the map gets a flag of its own,
// otherwise it shares flag with its owner.
func NewShutdownMap[K comparable, V any](m Map[K, V], flag *ShutdownFlag) *ShutdownMap[K, V] {
	if flag == nil {
		flag = new(ShutdownFlag)
	}
	return &ShutdownMap[K, V]{m: m, flag: flag}
}

// Flag returns the flag the map is bound to.
func (s *ShutdownMap[K, V]) Flag() *ShutdownFlag {
	return s.flag
}

// MarkShutdown marks the flag the map is bound to.
func (s *ShutdownMap[K, V]) MarkShutdown() {
	s.flag.MarkShutdown()
}

func (s *ShutdownMap[K, V]) check(op string) error {
	if s.flag.IsShutdown() {
		return fmt.Errorf("%w: %v on map after shutdown", aprt.ErrRuntimeState, op)
	}
	return nil
}

// Get returns the value for key from the wrapped map. err wraps
// aprt.ErrRuntimeState after shutdown.
func (s *ShutdownMap[K, V]) Get(key K) (value V, ok bool, err error) {
	if err = s.check("get"); err != nil {
		return
	}
	value, ok = s.m.Get(key)
	return
}

// Put stores value for key in the wrapped map and returns the previous
// value, if any. err wraps aprt.ErrRuntimeState after shutdown, and nothing
// is stored.
func (s *ShutdownMap[K, V]) Put(key K, value V) (previous V, loaded bool, err error) {
	if err = s.check("put"); err != nil {
		return
	}
	previous, loaded = s.m.Put(key, value)
	return
}

// Remove deletes the entry for key from the wrapped map and returns its
// value, if any. err wraps aprt.ErrRuntimeState after shutdown.
func (s *ShutdownMap[K, V]) Remove(key K) (previous V, loaded bool, err error) {
	if err = s.check("remove"); err != nil {
		return
	}
	previous, loaded = s.m.Remove(key)
	return
}

// Clear removes all entries of the wrapped map, or returns an error
// wrapping aprt.ErrRuntimeState after shutdown.
func (s *ShutdownMap[K, V]) Clear() error {
	if err := s.check("clear"); err != nil {
		return err
	}
	s.m.Clear()
	return nil
}

// Size returns the size of the wrapped map, or an error wrapping
// aprt.ErrRuntimeState after shutdown.
func (s *ShutdownMap[K, V]) Size() (int, error) {
	if err := s.check("size"); err != nil {
		return 0, err
	}
	return s.m.Size(), nil
}

// IsEmpty reports whether the wrapped map is empty, or returns an error
// wrapping aprt.ErrRuntimeState after shutdown.
func (s *ShutdownMap[K, V]) IsEmpty() (bool, error) {
	if err := s.check("isEmpty"); err != nil {
		return false, err
	}
	return s.m.IsEmpty(), nil
}

// EntrySet returns the entry set of the wrapped map. Before shutdown, its
// error is the one of the wrapped map, such as errors.ErrUnsupported.
func (s *ShutdownMap[K, V]) EntrySet() ([]Entry[K, V], error) {
	if err := s.check("entrySet"); err != nil {
		return nil, err
	}
	return s.m.EntrySet()
}

// KeySet returns the key set of the wrapped map, with the same errors as
// EntrySet.
func (s *ShutdownMap[K, V]) KeySet() ([]K, error) {
	if err := s.check("keySet"); err != nil {
		return nil, err
	}
	return s.m.KeySet()
}
