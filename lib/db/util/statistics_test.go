package util

import "testing"

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	if h.MedianEstimate() != 0 {
		t.Errorf("empty histogram should report 0")
	}

	for i := 0; i < 90; i++ {
		h.AddSample(10)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(5000)
	}

	if h.Count() != 100 {
		t.Errorf("expected 100 samples, got %d", h.Count())
	}
	if got := h.MedianEstimate(); got != 8 {
		t.Errorf("median should fall into the first bucket (8), got %d", got)
	}
	if got := h.Percentile(99); got <= 4096 {
		t.Errorf("p99 should fall into the 16K bucket, got %d", got)
	}
	if got := h.AverageSize(); got != (90*10+10*5000)/100 {
		t.Errorf("unexpected average %d", got)
	}
}

func TestDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if even.DistributionQuality != 1 {
		t.Errorf("even distribution should have quality 1, got %f", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{1, 0, 0, 39})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("skewed distribution rated too high: %f", skewed.DistributionQuality)
	}
	if skewed.Min != 0 || skewed.Max != 39 {
		t.Errorf("unexpected min/max %f/%f", skewed.Min, skewed.Max)
	}
}
