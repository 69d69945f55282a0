package metrics

import (
	"strconv"
	"time"

	"github.com/harborworks/flotilla/pkg/log"
)

// SailorUsage carries the per-sailor gauge values for one collection
type SailorUsage struct {
	Name         string
	UsedCPUs     int
	CapacityCPUs int
	UsedGPUs     int
	CapacityGPUs int
}

// Snapshot is the state the collector publishes on each cycle.
// The captain builds it from its stores so this package never has
// to import the captain.
type Snapshot struct {
	ChoresByStatus map[string]int
	CrewByStatus   map[string]int
	Sailors        []SailorUsage
}

// Collector periodically publishes store-derived gauges
type Collector struct {
	fetch    func() Snapshot
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCollector creates a collector that calls fetch on every cycle
func NewCollector(fetch func() Snapshot) *Collector {
	return &Collector{
		fetch:    fetch,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins periodic collection
func (c *Collector) Start() {
	logger := log.WithComponent("metrics-collector")
	logger.Info().Dur("interval", c.interval).Msg("Starting metrics collector")
	go c.run()
}

// Stop halts periodic collection
func (c *Collector) Stop() {
	logger := log.WithComponent("metrics-collector")
	logger.Info().Msg("Stopping metrics collector")
	close(c.stopCh)
	<-c.doneCh
}

func (c *Collector) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

// collect publishes one snapshot. Gauge vectors are reset first so
// labels that disappeared (a purged status, a removed sailor) do not
// linger with stale values.
func (c *Collector) collect() {
	snap := c.fetch()

	ChoresTotal.Reset()
	for status, count := range snap.ChoresByStatus {
		ChoresTotal.WithLabelValues(status).Set(float64(count))
	}

	CrewTotal.Reset()
	for status, count := range snap.CrewByStatus {
		CrewTotal.WithLabelValues(status).Set(float64(count))
	}

	SailorUsedCPUs.Reset()
	SailorCapacityCPUs.Reset()
	SailorUsedGPUs.Reset()
	SailorCapacityGPUs.Reset()
	for _, sailor := range snap.Sailors {
		SailorUsedCPUs.WithLabelValues(sailor.Name).Set(float64(sailor.UsedCPUs))
		SailorCapacityCPUs.WithLabelValues(sailor.Name).Set(float64(sailor.CapacityCPUs))
		SailorUsedGPUs.WithLabelValues(sailor.Name).Set(float64(sailor.UsedGPUs))
		SailorCapacityGPUs.WithLabelValues(sailor.Name).Set(float64(sailor.CapacityGPUs))
	}

	logger := log.WithComponent("metrics-collector")
	logger.Debug().
		Str("chores", strconv.Itoa(total(snap.ChoresByStatus))).
		Str("sailors", strconv.Itoa(len(snap.Sailors))).
		Msg("Collected metrics")
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
