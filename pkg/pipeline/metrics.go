package pipeline

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// IntensitySummary describes the distribution of the finite voxel values of
// a volume. All fields are zero when the volume has no finite voxels.
type IntensitySummary struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64 // population standard deviation
	Median float64
	P1     float64 // 1st percentile, nearest rank
	P99    float64 // 99th percentile, nearest rank
}

// Metrics holds the measurements taken while processing one volume.
type Metrics struct {
	// Voxels is the number of voxels in the volume
	Voxels int

	// NonFinite counts NaN and infinite input voxels
	NonFinite int

	// InputBytes and OutputBytes are the sizes of the encoded files
	InputBytes  int
	OutputBytes int

	// Input and Output summarize intensities before and after normalization.
	// Input.Median, Input.P1 and Input.P99 are only set when percentiles
	// were requested.
	Input  IntensitySummary
	Output IntensitySummary

	// Duration is the wall-clock time of Process
	Duration time.Duration
}

// byteValues holds 0..255 as the sample points of an 8-bit histogram.
var byteValues = func() []float64 {
	v := make([]float64, 256)
	for i := range v {
		v[i] = float64(i)
	}
	return v
}()

// Summarize computes an IntensitySummary over the finite values of data.
// Min, max, mean and standard deviation are read in place. The median and
// percentiles need one sorted copy of the finite values and are only computed
// when percentiles is set.
func Summarize(data []float64, percentiles bool) IntensitySummary {
	finite, copied := finiteValues(data)
	if len(finite) == 0 {
		return IntensitySummary{}
	}

	var s IntensitySummary
	s.Min = floats.Min(finite)
	s.Max = floats.Max(finite)
	s.Mean, s.StdDev = stat.PopMeanStdDev(finite, nil)
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}

	if !percentiles {
		return s
	}

	sorted := finite
	if !copied {
		sorted = make([]float64, len(finite))
		copy(sorted, finite)
	}
	sort.Float64s(sorted)

	n := len(sorted)
	s.Median = (sorted[(n-1)/2] + sorted[n/2]) / 2
	s.P1 = stat.Quantile(0.01, stat.Empirical, sorted, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return s
}

// SummarizeUint8 computes a full IntensitySummary over 8-bit data from a
// 256-bin histogram, without copying the data.
func SummarizeUint8(data []uint8) IntensitySummary {
	if len(data) == 0 {
		return IntensitySummary{}
	}

	hist := make([]float64, 256)
	for _, v := range data {
		hist[v]++
	}

	var s IntensitySummary
	for i, c := range hist {
		if c > 0 {
			s.Min = byteValues[i]
			break
		}
	}
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i] > 0 {
			s.Max = byteValues[i]
			break
		}
	}

	s.Mean, s.StdDev = stat.PopMeanStdDev(byteValues, hist)
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}

	n := len(data)
	s.Median = (histogramRank(hist, (n-1)/2) + histogramRank(hist, n/2)) / 2
	s.P1 = stat.Quantile(0.01, stat.Empirical, byteValues, hist)
	s.P99 = stat.Quantile(0.99, stat.Empirical, byteValues, hist)
	return s
}

// histogramRank returns the value of the k-th smallest sample (0-based).
func histogramRank(hist []float64, k int) float64 {
	var seen float64
	for i, c := range hist {
		seen += c
		if seen > float64(k) {
			return byteValues[i]
		}
	}
	return byteValues[len(hist)-1]
}

// finiteValues returns data itself when every value is finite, otherwise a
// copy without the NaN and infinite entries. copied reports which.
func finiteValues(data []float64) (finite []float64, copied bool) {
	nonFinite := countNonFinite(data)
	if nonFinite == 0 {
		return data, false
	}

	finite = make([]float64, 0, len(data)-nonFinite)
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	return finite, true
}

func countNonFinite(data []float64) int {
	n := 0
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			n++
		}
	}
	return n
}
