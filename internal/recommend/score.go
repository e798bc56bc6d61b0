package recommend

import "math"

// Weights are the penalty coefficients of the scoring function. Only their
// relative order carries meaning: overfill dominates underfill, which
// dominates distance to target.
type Weights struct {
	Over          float64
	Under         float64
	Target        float64
	Count         float64
	SmallMany     float64
	SmallManyFree int
	SmallSizeMax  int
	SizeBias      map[int]float64
	Under100Bonus float64
	Pickup        float64
}

func (w Weights) isZero() bool {
	return w.Over == 0 && w.Under == 0 && w.Target == 0 && w.Count == 0 &&
		w.SmallMany == 0 && w.SmallManyFree == 0 && w.SmallSizeMax == 0 &&
		w.SizeBias == nil && w.Under100Bonus == 0 && w.Pickup == 0
}

// DefaultWeights returns the tuned production weights.
func DefaultWeights() Weights {
	return Weights{
		Over:          200,
		Under:         25,
		Target:        8,
		Count:         0.45,
		SmallMany:     1.2,
		SmallManyFree: 6,
		SmallSizeMax:  240,
		SizeBias: map[int]float64{
			120:  0.02,
			240:  0.05,
			660:  0.10,
			1100: 0.20,
		},
		Under100Bonus: -0.10,
		Pickup:        0.03,
	}
}

// Candidate is one point of the search space with its expected fill.
type Candidate struct {
	Size          int
	Count         int
	FrequencyDays int
	ExpectedFill  float64
}

// Score is the container decision penalty of c; lower is better. It does not
// include the pickup frequency term, see PickupPenalty.
func (w Weights) Score(c Candidate, targetFill, minFill, maxFill float64, largest int) float64 {
	over := 0.0
	if c.ExpectedFill > maxFill {
		over = (c.ExpectedFill - maxFill) * w.Over
	}

	under := 0.0
	if c.ExpectedFill < minFill {
		under = (minFill - c.ExpectedFill) * w.Under
	}

	target := math.Abs(c.ExpectedFill-targetFill) * w.Target

	count := float64(c.Count-1) * w.Count

	smallMany := 0.0
	if c.Size <= w.SmallSizeMax && c.Count > w.SmallManyFree {
		smallMany = float64(c.Count-w.SmallManyFree) * w.SmallMany
	}

	bonus := 0.0
	if c.ExpectedFill <= 1.0 {
		bonus = w.Under100Bonus
	}

	return over + under + target + count + smallMany + w.sizeBias(c.Size, largest) + bonus
}

// sizeBias nudges ties away from the largest container. Sizes outside the
// configured table scale with their share of the largest catalog size.
func (w Weights) sizeBias(size, largest int) float64 {
	if b, ok := w.SizeBias[size]; ok {
		return b
	}
	if largest <= 0 {
		return 0
	}
	return 0.20 * float64(size) / float64(largest)
}

// PickupPenalty charges for visits per year.
func (w Weights) PickupPenalty(frequencyDays int) float64 {
	if frequencyDays < 1 {
		frequencyDays = 1
	}
	return (365.0 / float64(frequencyDays)) * w.Pickup
}
