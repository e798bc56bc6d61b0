package recommend

import "math"

// DefaultDensityKgPerLiter is the bulk density of mixed residual waste.
const DefaultDensityKgPerLiter = 0.13

// ExpectedFill is the fraction of total capacity used between two emptyings.
// Inputs are clamped rather than rejected: a negative rate counts as zero, a
// non-positive density falls back to DefaultDensityKgPerLiter, and frequency,
// size and count are at least 1.
func ExpectedFill(kgPerDay, densityKgPerLiter float64, frequencyDays, sizeLiters, count int) float64 {
	kgPerDay = clampRate(kgPerDay)
	densityKgPerLiter = clampDensity(densityKgPerLiter)
	frequencyDays = max(1, frequencyDays)
	sizeLiters = max(1, sizeLiters)
	count = max(1, count)

	litersPerEmptying := kgPerDay / densityKgPerLiter * float64(frequencyDays)
	return litersPerEmptying / (float64(count) * float64(sizeLiters))
}

func clampRate(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func clampDensity(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return DefaultDensityKgPerLiter
	}
	return v
}
