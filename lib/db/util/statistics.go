// Package util
//
// This file implements the statistics engines report through GetInfo: a size
// histogram with exponential buckets (16 B up to 4 GB) that is cheap to fill
// from a sample of entries, and summary statistics for the distribution of
// entries across shards.
package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes population statistics of values
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Min: values[0], Max: values[0], MinMaxRatio: 1.0}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDeviation = math.Sqrt(sq / float64(len(values)))

	if s.Max > 0 {
		s.MinMaxRatio = s.Min / s.Max
	}
	return s
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats rates how evenly entries are spread over shards.
// A quality of 1 means perfectly even.
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

var sizeBoundaries = []int{
	16, 64, 256, 1024, 4096,
	16384, 65536, 262144, 1048576,
	4194304, 16777216, 67108864,
	268435456, 1073741824, 4294967296,
}

// SizeHistogram tracks the distribution of value sizes.
//
// Thread-safety: all methods are safe for concurrent use
type SizeHistogram struct {
	mutex   sync.RWMutex
	buckets []int64 // one more than sizeBoundaries for larger values
	count   int64
	sum     int64
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{buckets: make([]int64, len(sizeBoundaries)+1)}
}

// AddSample adds a size sample to the histogram
func (h *SizeHistogram) AddSample(size int) {
	idx := len(sizeBoundaries)
	for i, boundary := range sizeBoundaries {
		if size <= boundary {
			idx = i
			break
		}
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.buckets[idx]++
	h.count++
	h.sum += int64(size)
}

// Count returns the total number of samples
func (h *SizeHistogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// AverageSize returns the mean of all samples
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// Percentile estimates the given percentile (0-100) from the bucket midpoints
func (h *SizeHistogram) Percentile(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	var cumulative int64
	for i, c := range h.buckets {
		cumulative += c
		if cumulative < target {
			continue
		}
		switch {
		case i == 0:
			return sizeBoundaries[0] / 2
		case i < len(sizeBoundaries):
			return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
		default:
			return sizeBoundaries[len(sizeBoundaries)-1] * 2
		}
	}
	return int(h.sum / h.count)
}

// MedianEstimate is Percentile(50)
func (h *SizeHistogram) MedianEstimate() int {
	return h.Percentile(50)
}
