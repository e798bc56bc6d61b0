package pipeline

import (
	"context"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

// RunStatus represents the current state of a training run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// TrainingRun tracks one execution of the training protocol over a date range.
// A run whose data was insufficient still completes; OK tells the two apart.
type TrainingRun struct {
	ID           int64      `json:"id" db:"id"`
	From         time.Time  `json:"from" db:"range_from"`
	To           time.Time  `json:"to" db:"range_to"`
	Status       RunStatus  `json:"status" db:"status"`
	OK           bool       `json:"ok" db:"ok"`
	Observations int        `json:"observations" db:"observations"`
	Rows         int        `json:"rows" db:"row_count"`
	MAE          float64    `json:"mae" db:"mae"`
	RMSE         float64    `json:"rmse" db:"rmse"`
	RSquared     float64    `json:"r2" db:"r_squared"`
	Candidate    string     `json:"candidate" db:"candidate"`
	Message      string     `json:"message" db:"message"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
}

// Apply copies a training result onto the run.
func (r *TrainingRun) Apply(res domain.TrainResult) {
	r.OK = res.OK
	r.Observations = res.Observations
	r.Rows = res.Rows
	r.MAE = res.MAE
	r.RMSE = res.RMSE
	r.RSquared = res.RSquared
	r.Candidate = res.Candidate
	r.Message = res.Message
}

// Result rebuilds the training result a completed run recorded.
func (r *TrainingRun) Result() domain.TrainResult {
	return domain.TrainResult{
		OK:           r.OK,
		Observations: r.Observations,
		Rows:         r.Rows,
		MAE:          r.MAE,
		RMSE:         r.RMSE,
		RSquared:     r.RSquared,
		Candidate:    r.Candidate,
		Message:      r.Message,
		From:         r.From,
		To:           r.To,
	}
}

// RunStore persists training runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *TrainingRun) error
	UpdateRun(ctx context.Context, run *TrainingRun) error
	GetRun(ctx context.Context, id int64) (*TrainingRun, error)
	ListRuns(ctx context.Context, limit int) ([]*TrainingRun, error)
}

// TrainFunc runs the training protocol for a date range. An error means the
// run could not execute at all (e.g. the database is down); insufficient data
// is reported through the result.
type TrainFunc func(ctx context.Context, from, to time.Time) (domain.TrainResult, error)

// WorkerConfig holds configuration for the training worker
type WorkerConfig struct {
	QueueSize int           // Pending runs accepted before Submit blocks
	Timeout   time.Duration // Upper bound for a single run, zero for none
}

// DefaultWorkerConfig returns sensible defaults
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		QueueSize: 8,
		Timeout:   10 * time.Minute,
	}
}
