package cache

import (
	rtmetrics "runtime/metrics"
	"sync/atomic"
)

const gcCyclesMetric = "/gc/cycles/total:gc-cycles"

func gcCycles() uint64 {
	sample := []rtmetrics.Sample{{Name: gcCyclesMetric}}
	rtmetrics.Read(sample)
	if sample[0].Value.Kind() != rtmetrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// A sweeper tracks the garbage collection cycles a map has already swept
// for reclaimed entries. Weak pointers only turn nil during a collection,
// so a map that sweeps once per completed cycle never keeps a dead entry
// past the next mutation.
type sweeper struct {
	cycles atomic.Uint64
}

// due reports whether a collection completed since the last call that
// returned true. Only one of several concurrent callers gets true.
func (s *sweeper) due() bool {
	n := gcCycles()
	old := s.cycles.Load()
	return n != old && s.cycles.CompareAndSwap(old, n)
}
