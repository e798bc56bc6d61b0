package forecast

import (
	"math"
	"sort"
)

// minClipRows is the smallest label population worth clipping.
const minClipRows = 10

// ClipLabelOutliers caps every label at the p-th order statistic of all
// labels (nearest rank, index round(p*(n-1))) and floors it at zero. Fewer
// than ten rows are returned as given. The input slice is not modified.
func ClipLabelOutliers(rows []TrainingRow, p float64) []TrainingRow {
	if len(rows) < minClipRows {
		return rows
	}

	labels := make([]float64, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
	}
	sort.Float64s(labels)

	idx := int(math.RoundToEven(p * float64(len(labels)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > len(labels)-1 {
		idx = len(labels) - 1
	}
	ceiling := labels[idx]

	out := make([]TrainingRow, len(rows))
	for i, r := range rows {
		if r.Label > ceiling {
			r.Label = ceiling
		}
		if r.Label < 0 {
			r.Label = 0
		}
		out[i] = r
	}
	return out
}
