package forecast

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ComputeResiduals measures how far m misses on rows, per stream and pooled.
// Streams with fewer than minSamples rows are left out; callers fall back to
// GlobalResidualKey for them via ResidualTable.StdFor.
func ComputeResiduals(m *Model, rows []TrainingRow, minSamples int) ResidualTable {
	byStream := make(map[string][]float64)
	all := make([]float64, 0, len(rows))

	for _, r := range rows {
		resid := r.Label - m.Predict(r)
		key := strings.TrimSpace(r.StreamID)
		byStream[key] = append(byStream[key], resid)
		all = append(all, resid)
	}

	table := ResidualTable{GlobalResidualKey: sampleStd(all)}

	streams := make([]string, 0, len(byStream))
	for s := range byStream {
		streams = append(streams, s)
	}
	sort.Strings(streams)
	for _, s := range streams {
		if s == GlobalResidualKey {
			continue
		}
		if len(byStream[s]) >= minSamples {
			table[s] = sampleStd(byStream[s])
		}
	}
	return table
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
