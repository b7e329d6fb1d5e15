package seed

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sphagnumdb/sphagnum/rpc/common"
)

type seedMetrics struct {
	set *metrics.Set

	forwarded           *metrics.Counter
	replicationFailures *metrics.Counter
	readRepairs         *metrics.Counter
	antiEntropyRounds   *metrics.Counter
	repairedRecords     *metrics.Counter
}

func newSeedMetrics(s *Seed) *seedMetrics {
	set := metrics.NewSet()
	m := &seedMetrics{
		set:                 set,
		forwarded:           set.NewCounter("sphagnum_forwarded_total"),
		replicationFailures: set.NewCounter("sphagnum_replication_failures_total"),
		readRepairs:         set.NewCounter("sphagnum_read_repaired_records_total"),
		antiEntropyRounds:   set.NewCounter("sphagnum_antientropy_rounds_total"),
		repairedRecords:     set.NewCounter("sphagnum_antientropy_repaired_records_total"),
	}
	set.NewGauge("sphagnum_peers", func() float64 {
		return float64(len(s.members.Peers()))
	})
	set.NewGauge("sphagnum_field_replicas", func() float64 {
		return float64(len(s.fieldPeers()) + 1)
	})
	set.NewGauge("sphagnum_fields", func() float64 {
		return float64(s.ring.Len())
	})
	return m
}

// observe counts a handled request and its duration per operation
func (m *seedMetrics) observe(t common.MessageType, start time.Time) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`sphagnum_requests_total{op=%q}`, t)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`sphagnum_request_duration_seconds{op=%q}`, t)).UpdateDuration(start)
}

// WritePrometheus writes the metrics of the Seed in Prometheus text format
func (s *Seed) WritePrometheus(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
