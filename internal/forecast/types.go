package forecast

import "time"

// GlobalResidualKey is the pooled residual entry every ResidualTable carries.
const GlobalResidualKey = "__GLOBAL__"

// TrainingRow is derived from two consecutive daily observations of the same
// stream. Label is the kg/day realized over the interval ending at Date.
type TrainingRow struct {
	StreamID     string
	CustomerNo   string
	CustomerName string
	Date         time.Time

	DaysSincePrev   int
	Month           int
	Weekday         int
	PrevCollectedKg float64

	AvgKgDayLast3   float64
	AvgKgDayLast5   float64
	StdKgDayLast5   float64
	TrendKgDayLast5 float64

	Label float64
}

// ResidualTable maps a stream to the standard deviation of its training
// residuals. GlobalResidualKey is always present.
type ResidualTable map[string]float64

// StdFor returns the stream's residual spread, or the global one when the
// stream had too few samples.
func (t ResidualTable) StdFor(streamID string) float64 {
	if s, ok := t[streamID]; ok {
		return s
	}
	return t[GlobalResidualKey]
}

// SplitProfile selects how rows are partitioned before fitting.
type SplitProfile string

const (
	// ProfileTrainValTest selects hyperparameters on a validation slice.
	ProfileTrainValTest SplitProfile = "train_val_test"
	// ProfileTrainTest fits the first candidate only, 80/20.
	ProfileTrainTest SplitProfile = "train_test"
)

// Options configures the training protocol.
type Options struct {
	MinDailyObservations int
	MinTrainingRows      int
	MaxGapDays           int
	ClipPercentile       float64
	ResidualMinSamples   int
	Seed                 int64
	Profile              SplitProfile
	Workers              int
	Candidates           []Params
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		MinDailyObservations: 50,
		MinTrainingRows:      300,
		MaxGapDays:           DefaultMaxGapDays,
		ClipPercentile:       0.99,
		ResidualMinSamples:   25,
		Seed:                 42,
		Profile:              ProfileTrainValTest,
		Workers:              4,
		Candidates:           DefaultCandidates(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinDailyObservations <= 0 {
		o.MinDailyObservations = d.MinDailyObservations
	}
	if o.MinTrainingRows <= 0 {
		o.MinTrainingRows = d.MinTrainingRows
	}
	if o.MaxGapDays <= 0 {
		o.MaxGapDays = d.MaxGapDays
	}
	if o.ClipPercentile <= 0 || o.ClipPercentile > 1 {
		o.ClipPercentile = d.ClipPercentile
	}
	if o.ResidualMinSamples <= 0 {
		o.ResidualMinSamples = d.ResidualMinSamples
	}
	if o.Profile != ProfileTrainTest {
		o.Profile = ProfileTrainValTest
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if len(o.Candidates) == 0 {
		o.Candidates = d.Candidates
	}
	return o
}
