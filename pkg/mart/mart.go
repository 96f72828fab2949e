// Package mart derives the maximum acceptable response time of a city from
// its population.
package mart

import "math"

// Population anchors and the response time range in minutes. Cities at or
// below MinPopulation get MaxMinutes; at or above MaxPopulation, MinMinutes.
const (
	MinPopulation = 1000
	MaxPopulation = 8_810_767
	MinMinutes    = 10.0
	MaxMinutes    = 60.0
)

// ComputeTarget returns the target median response time in minutes for a
// population, interpolated on a log10 scale. A non-positive population is
// treated as log10 = 0 and lands on MaxMinutes.
func ComputeTarget(population int64) float64 {
	var l float64
	if population > 0 {
		l = math.Log10(float64(population))
	}
	lMin := math.Log10(MinPopulation)
	lMax := math.Log10(MaxPopulation)

	norm := 1 - (l-lMin)/(lMax-lMin)
	norm = max(0, min(1, norm))
	return MinMinutes + norm*(MaxMinutes-MinMinutes)
}
