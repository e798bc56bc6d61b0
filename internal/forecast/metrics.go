package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics are held-out regression scores.
type Metrics struct {
	MAE      float64
	RMSE     float64
	RSquared float64
}

// Evaluate scores m against the labels of rows.
func Evaluate(m *Model, rows []TrainingRow) Metrics {
	actual := make([]float64, len(rows))
	for i, r := range rows {
		actual[i] = r.Label
	}
	return scores(m.PredictAll(rows), actual)
}

func scores(pred, actual []float64) Metrics {
	if len(actual) == 0 {
		return Metrics{}
	}
	var absSum, sqSum float64
	for i := range actual {
		d := actual[i] - pred[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(actual))

	r2 := 0.0
	if len(actual) > 1 && stat.Variance(actual, nil) > 0 {
		r2 = stat.RSquaredFrom(pred, actual, nil)
	}
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}

	return Metrics{
		MAE:      absSum / n,
		RMSE:     math.Sqrt(sqSum / n),
		RSquared: r2,
	}
}
