// Package metrics exposes Prometheus collectors for the cache, execution,
// and pipe packages.
//
// The collectors are always updated, but nothing is exported until they are
// registered with a registry through Register.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aprt"

var (
	// CacheLookups counts Get calls on the cache maps by map kind and
	// result ("hit" or "miss").
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by map kind and result.",
	}, []string{"map", "result"})

	// CacheExpunged counts entries removed because their key or value was
	// reclaimed by the garbage collector.
	CacheExpunged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "expunged_total",
		Help:      "Entries expunged after reclamation, by map kind.",
	}, []string{"map"})

	// CacheReclaims counts how often a soft map released its strongly
	// retained values because of memory pressure.
	CacheReclaims = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "reclaims_total",
		Help:      "Releases of strongly retained soft map values.",
	})

	// PoolTasks counts tasks handed to worker pools by how they ran:
	// "queued", "caller_runs", or "panicked".
	PoolTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "tasks_total",
		Help:      "Worker pool tasks by outcome.",
	}, []string{"outcome"})

	// PipeBytes counts bytes moved through pipes by direction ("written"
	// or "read").
	PipeBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipe",
		Name:      "bytes_total",
		Help:      "Bytes moved through pipes.",
	}, []string{"direction"})

	// PipeFailures counts poisoned pipes by reason ("producer",
	// "interrupted").
	PipeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipe",
		Name:      "failures_total",
		Help:      "Pipes that failed, by reason.",
	}, []string{"reason"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		CacheLookups,
		CacheExpunged,
		CacheReclaims,
		PoolTasks,
		PipeBytes,
		PipeFailures,
	}
}

// Register registers all collectors with reg. Collectors that are already
// registered with reg are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
