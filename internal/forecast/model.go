package forecast

import (
	"sort"
	"strings"
)

// Model is a fitted regressor bundled with its stream vocabulary, so encoding
// travels with the artifact. Predict is safe for concurrent use.
type Model struct {
	vocab   map[string]int
	streams []string
	params  Params
	ens     *ensemble
}

// Fit trains a model on rows with the given hyperparameters. The stream
// vocabulary is whatever rows contain.
func Fit(rows []TrainingRow, p Params, seed int64) *Model {
	m := &Model{vocab: make(map[string]int), params: p.normalized()}

	for _, r := range rows {
		key := strings.TrimSpace(r.StreamID)
		if _, ok := m.vocab[key]; !ok {
			m.vocab[key] = 0
			m.streams = append(m.streams, key)
		}
	}
	sort.Strings(m.streams)
	for i, s := range m.streams {
		m.vocab[s] = i
	}

	samples := make([]sample, len(rows))
	labels := make([]float64, len(rows))
	for i, r := range rows {
		samples[i] = m.encode(r)
		labels[i] = r.Label
	}
	m.ens = fitEnsemble(samples, labels, m.params, seed)
	return m
}

// encode maps a row onto model inputs. A stream the model never saw gets
// category -1 and therefore matches no category split.
func (m *Model) encode(r TrainingRow) sample {
	s := sample{cat: -1}
	if c, ok := m.vocab[strings.TrimSpace(r.StreamID)]; ok {
		s.cat = c
	}
	s.x = [numFeatures]float64{
		float64(r.DaysSincePrev),
		float64(r.Month),
		float64(r.Weekday),
		r.PrevCollectedKg,
		r.AvgKgDayLast3,
		r.AvgKgDayLast5,
		r.StdKgDayLast5,
		r.TrendKgDayLast5,
	}
	return s
}

// Predict returns the point estimate of kg/day for r. The result is raw and
// may be negative; callers that size containers must sanitize it.
func (m *Model) Predict(r TrainingRow) float64 {
	s := m.encode(r)
	return m.ens.predict(&s)
}

// PredictAll predicts every row in order.
func (m *Model) PredictAll(rows []TrainingRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = m.Predict(r)
	}
	return out
}

// Params reports the hyperparameters the model was fitted with.
func (m *Model) Params() Params { return m.params }

// Streams lists the stream vocabulary seen at fit time.
func (m *Model) Streams() []string { return append([]string(nil), m.streams...) }

// Trees is the number of boosting rounds actually kept.
func (m *Model) Trees() int { return len(m.ens.trees) }
