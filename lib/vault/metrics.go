package vault

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// vaultMetrics holds the per-namespace counters exported through the
// VictoriaMetrics default registry (see metrics.WritePrometheus).
type vaultMetrics struct {
	cacheHits     *metrics.Counter
	cacheMisses   *metrics.Counter
	batchFlushes  *metrics.Counter
	batchDrops    *metrics.Counter
	refreshCycles *metrics.Counter
}

func newVaultMetrics(namespace string) *vaultMetrics {
	counter := func(name string) *metrics.Counter {
		return metrics.GetOrCreateCounter(fmt.Sprintf(`sealkv_%s_total{namespace=%q}`, name, namespace))
	}
	return &vaultMetrics{
		cacheHits:     counter("cache_hits"),
		cacheMisses:   counter("cache_misses"),
		batchFlushes:  counter("batch_flushes"),
		batchDrops:    counter("batch_drops"),
		refreshCycles: counter("refresh_cycles"),
	}
}
