package cache

import (
	"golang.org/x/sync/singleflight"
)

/*
A Memo memoizes derived helper objects by string key, such as constants
computed to some precision.

Concurrent calls for the same missing key share a single computation. The
results are stored in a map that may reclaim them, so a result can be
computed more than once over the lifetime of a Memo. Once the flag of the
Memo is marked, Get fails with an error wrapping aprt.ErrRuntimeState.
*/
type Memo[V any] struct {
	m     *ShutdownMap[string, *V]
	group singleflight.Group
}

// NewMemo returns a Memo that stores its results in m, bound to flag. If m
// is nil, a SoftMap with default options is used. If flag is nil, the Memo
// gets a flag of its own.
func NewMemo[V any](m Map[string, *V], flag *ShutdownFlag) *Memo[V] {
	if m == nil {
		m = NewSoftMap[string, V]()
	}
	return &Memo[V]{m: NewShutdownMap(m, flag)}
}

// Get returns the result for key, calling compute if there is none. Errors
// from compute are returned as is and nothing is stored. compute must not
// return a nil result with a nil error.
func (memo *Memo[V]) Get(key string, compute func() (*V, error)) (*V, error) {
	if value, ok, err := memo.m.Get(key); err != nil || ok {
		return value, err
	}
	result, err, _ := memo.group.Do(key, func() (interface{}, error) {
		if value, ok, err := memo.m.Get(key); err != nil || ok {
			return value, err
		}
		value, err := compute()
		if err != nil {
			return nil, err
		}
		if _, _, err := memo.m.Put(key, value); err != nil {
			return nil, err
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*V), nil
}

// Forget removes the result for key.
func (memo *Memo[V]) Forget(key string) error {
	_, _, err := memo.m.Remove(key)
	return err
}

// Shutdown marks the flag of the Memo.
func (memo *Memo[V]) Shutdown() {
	memo.m.MarkShutdown()
}
