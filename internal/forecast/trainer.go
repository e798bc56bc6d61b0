package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

// MessageOK is the TrainResult message of a successful run.
const MessageOK = "OK"

// Artifact is what a successful training run hands to the model cache.
type Artifact struct {
	Model     *Model
	Residuals ResidualTable
	Metrics   Metrics
	Params    Params
}

// Trainer runs the training protocol: feature derivation, clipping, seeded
// split, candidate selection on validation MAE, refit on train+validation and
// scoring on the untouched test slice.
type Trainer struct {
	opts Options
}

// NewTrainer fills unset options with defaults.
func NewTrainer(opts Options) *Trainer {
	return &Trainer{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (t *Trainer) Options() Options { return t.opts }

// Train never fails on data problems. When there is too little data it
// returns a nil artifact and a result with zero metrics and a message.
func (t *Trainer) Train(ctx context.Context, daily []domain.DailyObservation) (*Artifact, domain.TrainResult) {
	start := time.Now()
	result := domain.TrainResult{Observations: len(daily)}

	if len(daily) < t.opts.MinDailyObservations {
		result.Message = fmt.Sprintf("not enough daily observations: %d (need at least %d)",
			len(daily), t.opts.MinDailyObservations)
		return nil, result
	}

	rows := BuildTrainingRows(daily, t.opts.MaxGapDays)
	result.Rows = len(rows)
	if need := max(t.opts.MinTrainingRows, t.minSplitRows()); len(rows) < need {
		result.Message = fmt.Sprintf("not enough training rows after feature derivation: %d (need at least %d)",
			len(rows), need)
		return nil, result
	}

	rows = ClipLabelOutliers(rows, t.opts.ClipPercentile)

	train, val, test := t.split(rows)
	result.TrainRows = len(train) + len(val)
	result.TestRows = len(test)
	result.TestFraction = float64(len(test)) / float64(len(rows))

	best, err := t.selectCandidate(ctx, train, val)
	if err != nil {
		result.Message = fmt.Sprintf("training interrupted: %v", err)
		return nil, result
	}

	final := Fit(append(append([]TrainingRow(nil), train...), val...), best, t.opts.Seed)
	metrics := Evaluate(final, test)
	residuals := ComputeResiduals(final, rows, t.opts.ResidualMinSamples)

	result.OK = true
	result.MAE = metrics.MAE
	result.RMSE = metrics.RMSE
	result.RSquared = metrics.RSquared
	result.Candidate = best.String()
	result.Message = MessageOK

	log.Info().
		Int("observations", len(daily)).
		Int("rows", len(rows)).
		Int("streams", len(final.Streams())).
		Str("candidate", best.String()).
		Float64("mae", metrics.MAE).
		Float64("rmse", metrics.RMSE).
		Float64("r2", metrics.RSquared).
		Dur("took", time.Since(start)).
		Msg("forecast: model trained")

	return &Artifact{Model: final, Residuals: residuals, Metrics: metrics, Params: best}, result
}

// minSplitRows is the smallest row count that leaves every slice of the
// profile non-empty.
func (t *Trainer) minSplitRows() int {
	if t.opts.Profile == ProfileTrainTest {
		return 2
	}
	return 3
}

// split shuffles a copy of rows with the configured seed and partitions it.
// The validation slice is empty under ProfileTrainTest.
func (t *Trainer) split(rows []TrainingRow) (train, val, test []TrainingRow) {
	shuffled := append([]TrainingRow(nil), rows...)
	rng := rand.New(rand.NewSource(t.opts.Seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	n := len(shuffled)
	if t.opts.Profile == ProfileTrainTest {
		nTest := clampInt(int(math.Round(0.2*float64(n))), 1, n-1)
		return shuffled[:n-nTest], nil, shuffled[n-nTest:]
	}

	nTest := clampInt(int(math.Round(0.2*float64(n))), 1, n-2)
	nVal := clampInt(int(math.Round(0.2*float64(n))), 1, n-nTest-1)
	nTrain := n - nTest - nVal
	return shuffled[:nTrain], shuffled[nTrain : nTrain+nVal], shuffled[nTrain+nVal:]
}

// selectCandidate fits every candidate on train and keeps the lowest
// validation MAE; earlier candidates win ties. Without a validation slice the
// first candidate is used as is.
func (t *Trainer) selectCandidate(ctx context.Context, train, val []TrainingRow) (Params, error) {
	candidates := t.opts.Candidates
	if len(val) == 0 || len(candidates) == 1 {
		return candidates[0], nil
	}

	maes := make([]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for i, p := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := Fit(train, p, t.opts.Seed)
			maes[i] = Evaluate(m, val).MAE
			log.Debug().Str("candidate", p.String()).Float64("val_mae", maes[i]).Msg("forecast: candidate evaluated")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Params{}, err
	}

	best := 0
	for i := 1; i < len(maes); i++ {
		if maes[i] < maes[best] {
			best = i
		}
	}
	return candidates[best], nil
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
