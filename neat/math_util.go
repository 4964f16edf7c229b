package neat

import (
	"math"
	"sort"
)

// clamp restricts a value to a given range [minVal, maxVal].
func clamp(value, minVal, maxVal float64) float64 {
	return math.Max(minVal, math.Min(value, maxVal))
}

// --- Statistical Functions ---

// Mean calculates the average of a slice of float64 values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	return Sum(values) / float64(len(values))
}

// Stdev calculates the sample standard deviation of a slice of float64 values.
func Stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0.0 // Standard deviation is undefined for less than 2 values
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// Sum calculates the sum of a slice of float64 values.
func Sum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// MaxFloat calculates the maximum value in a slice of float64 values.
// Returns negative infinity if the slice is empty.
func MaxFloat(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}
	maxVal := values[0]
	for _, v := range values[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}

// MinFloat calculates the minimum value in a slice of float64 values.
// Returns positive infinity if the slice is empty.
func MinFloat(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	minVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
	}
	return minVal
}

// Median calculates the median of a slice of float64 values.
// Returns NaN if the slice is empty.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	// Sort a copy to avoid modifying the caller's slice
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}

// FitnessSummary describes the fitness distribution of one generation.
type FitnessSummary struct {
	Mean   float64
	Stdev  float64
	Median float64
	Min    float64
	Max    float64
}

// Summarize computes the summary statistics of values. An empty slice yields
// the zero summary.
func Summarize(values []float64) FitnessSummary {
	if len(values) == 0 {
		return FitnessSummary{}
	}
	return FitnessSummary{
		Mean:   Mean(values),
		Stdev:  Stdev(values),
		Median: Median(values),
		Min:    MinFloat(values),
		Max:    MaxFloat(values),
	}
}

// FitnessSummary returns the statistics of the evaluated organisms of the
// current generation.
func (p *Population) FitnessSummary() FitnessSummary {
	var values []float64
	for _, id := range p.order {
		if o := p.organisms[id]; o.Evaluated {
			values = append(values, o.Fitness)
		}
	}
	return Summarize(values)
}
