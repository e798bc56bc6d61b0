package forecast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

func fastOptions() Options {
	return Options{
		MinDailyObservations: 20,
		MinTrainingRows:      40,
		ResidualMinSamples:   25,
		Seed:                 42,
		Workers:              2,
		Candidates: []Params{
			{Trees: 30, MaxDepth: 3, LearningRate: 0.1, MinLeaf: 3, Subsample: 0.8},
			{Trees: 20, MaxDepth: 2, LearningRate: 0.2, MinLeaf: 3, Subsample: 1},
		},
	}
}

func TestTrainer_NotEnoughObservations(t *testing.T) {
	trainer := NewTrainer(DefaultOptions())
	daily := seasonalDaily(1, 20)

	artifact, result := trainer.Train(context.Background(), daily)

	assert.Nil(t, artifact)
	assert.False(t, result.OK)
	assert.Equal(t, 20, result.Observations)
	assert.NotEqual(t, MessageOK, result.Message)
	assert.Contains(t, result.Message, "not enough daily observations")
	assert.Zero(t, result.MAE)
	assert.Zero(t, result.RMSE)
	assert.Zero(t, result.RSquared)
}

func TestTrainer_NotEnoughRows(t *testing.T) {
	opts := fastOptions()
	opts.MinTrainingRows = 1000
	trainer := NewTrainer(opts)

	artifact, result := trainer.Train(context.Background(), seasonalDaily(2, 20))

	assert.Nil(t, artifact)
	assert.False(t, result.OK)
	assert.Equal(t, 38, result.Rows)
	assert.Contains(t, result.Message, "not enough training rows")
}

func TestTrainer_TinyThresholds(t *testing.T) {
	daily := seasonalDaily(1, 2)

	for _, profile := range []SplitProfile{ProfileTrainValTest, ProfileTrainTest} {
		t.Run(string(profile), func(t *testing.T) {
			trainer := NewTrainer(Options{MinDailyObservations: 1, MinTrainingRows: 1, Profile: profile})

			var (
				artifact *Artifact
				result   domain.TrainResult
			)
			require.NotPanics(t, func() {
				artifact, result = trainer.Train(context.Background(), daily)
			})
			assert.Nil(t, artifact)
			assert.False(t, result.OK)
			assert.Equal(t, 1, result.Rows)
			assert.Contains(t, result.Message, "not enough training rows")
		})
	}

	// three rows is the smallest population the validation profile can split
	trainer := NewTrainer(Options{MinDailyObservations: 1, MinTrainingRows: 1, Candidates: fastOptions().Candidates})
	artifact, result := trainer.Train(context.Background(), seasonalDaily(1, 4))
	require.NotNil(t, artifact)
	assert.True(t, result.OK)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, 1, result.TestRows)
}

func TestTrainer_Train(t *testing.T) {
	trainer := NewTrainer(fastOptions())
	daily := seasonalDaily(3, 40)

	artifact, result := trainer.Train(context.Background(), daily)
	require.NotNil(t, artifact)

	assert.True(t, result.OK)
	assert.Equal(t, MessageOK, result.Message)
	assert.Equal(t, 120, result.Observations)
	assert.Equal(t, 117, result.Rows)
	assert.Equal(t, result.Rows, result.TrainRows+result.TestRows)
	assert.InDelta(t, 0.2, result.TestFraction, 0.01)
	assert.NotEmpty(t, result.Candidate)
	assert.Greater(t, result.MAE, 0.0)
	assert.GreaterOrEqual(t, result.RMSE, result.MAE)

	// 39 rows per stream clears the per-stream residual threshold
	assert.Contains(t, artifact.Residuals, GlobalResidualKey)
	for _, s := range []string{"A-PO", "B-PO", "C-PO"} {
		assert.Contains(t, artifact.Residuals, s)
	}
	t.Logf("train result: mae=%.4f rmse=%.4f r2=%.4f candidate=%s",
		result.MAE, result.RMSE, result.RSquared, result.Candidate)
}

func TestTrainer_Deterministic(t *testing.T) {
	daily := seasonalDaily(3, 40)

	_, a := NewTrainer(fastOptions()).Train(context.Background(), daily)
	_, b := NewTrainer(fastOptions()).Train(context.Background(), daily)

	assert.Equal(t, a, b)
}

func TestTrainer_TrainTestProfileUsesFirstCandidate(t *testing.T) {
	opts := fastOptions()
	opts.Profile = ProfileTrainTest
	trainer := NewTrainer(opts)

	artifact, result := trainer.Train(context.Background(), seasonalDaily(3, 40))
	require.NotNil(t, artifact)

	assert.Equal(t, opts.Candidates[0].String(), result.Candidate)
	assert.Equal(t, opts.Candidates[0].normalized(), artifact.Params.normalized())
}

func TestTrainer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	artifact, result := NewTrainer(fastOptions()).Train(ctx, seasonalDaily(3, 40))

	assert.Nil(t, artifact)
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "training interrupted")
}

func TestTrainer_Split(t *testing.T) {
	trainer := NewTrainer(fastOptions())
	rows := labeledRows(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	train, val, test := trainer.split(rows)
	assert.Len(t, train, 6)
	assert.Len(t, val, 2)
	assert.Len(t, test, 2)

	again, _, _ := trainer.split(rows)
	assert.Equal(t, train, again)
}
