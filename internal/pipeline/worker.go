package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

// ErrWorkerStopped is returned for runs submitted after Stop.
var ErrWorkerStopped = errors.New("training worker stopped")

type job struct {
	run  *TrainingRun
	done chan jobResult
}

type jobResult struct {
	run    *TrainingRun
	result domain.TrainResult
	err    error
}

// Worker executes training runs one at a time on its own goroutine, so a
// long fit never runs on a request goroutine and two fits never compete for
// the CPU. Callers either wait for the result or poll the run by ID.
type Worker struct {
	train  TrainFunc
	store  RunStore
	config WorkerConfig

	queue    chan job
	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a new training worker
func NewWorker(train TrainFunc, store RunStore, config WorkerConfig) *Worker {
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Worker{
		train:   train,
		store:   store,
		config:  config,
		queue:   make(chan job, config.QueueSize),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine. It exits when ctx is cancelled or Stop
// is called; queued runs are marked failed.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				w.drain(ctx.Err())
				return
			case <-w.stopped:
				w.drain(ErrWorkerStopped)
				return
			case j := <-w.queue:
				w.execute(ctx, j)
			}
		}
	}()
}

// Stop stops the worker and waits for the current run to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopped) })
	w.wg.Wait()
}

// Submit records a pending run and queues it. The returned run carries the ID
// to poll with Get.
func (w *Worker) Submit(ctx context.Context, from, to time.Time) (*TrainingRun, error) {
	queued, _, err := w.enqueue(ctx, from, to)
	return queued, err
}

// Run queues a training run and waits for it to finish.
func (w *Worker) Run(ctx context.Context, from, to time.Time) (*TrainingRun, domain.TrainResult, error) {
	queued, done, err := w.enqueue(ctx, from, to)
	if err != nil {
		return queued, domain.TrainResult{}, err
	}

	select {
	case res := <-done:
		return res.run, res.result, res.err
	case <-ctx.Done():
		return queued, domain.TrainResult{}, ctx.Err()
	}
}

// Train is Run without the run record.
func (w *Worker) Train(ctx context.Context, from, to time.Time) (domain.TrainResult, error) {
	_, res, err := w.Run(ctx, from, to)
	return res, err
}

// Get returns a run by ID.
func (w *Worker) Get(ctx context.Context, id int64) (*TrainingRun, error) {
	return w.store.GetRun(ctx, id)
}

// List returns the most recent runs, newest first.
func (w *Worker) List(ctx context.Context, limit int) ([]*TrainingRun, error) {
	return w.store.ListRuns(ctx, limit)
}

// enqueue returns a copy of the queued run; the worker goroutine owns the
// original from then on.
func (w *Worker) enqueue(ctx context.Context, from, to time.Time) (*TrainingRun, chan jobResult, error) {
	select {
	case <-w.stopped:
		return nil, nil, ErrWorkerStopped
	default:
	}

	run := &TrainingRun{
		From:      from,
		To:        to,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
	if err := w.store.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to create training run: %w", err)
	}

	queued := *run
	done := make(chan jobResult, 1)
	select {
	case w.queue <- job{run: run, done: done}:
		return &queued, done, nil
	case <-w.stopped:
		w.fail(context.Background(), run, ErrWorkerStopped)
		return run, nil, ErrWorkerStopped
	case <-ctx.Done():
		w.fail(context.Background(), run, ctx.Err())
		return run, nil, ctx.Err()
	}
}

func (w *Worker) execute(ctx context.Context, j job) {
	run := j.run
	start := time.Now()

	run.Status = StatusProcessing
	if err := w.store.UpdateRun(ctx, run); err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("training: failed to mark run processing")
	}

	runCtx := ctx
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	res, err := w.safeTrain(runCtx, run.From, run.To)
	if err != nil {
		w.fail(ctx, run, err)
		snapshot := *run
		j.done <- jobResult{run: &snapshot, err: err}
		return
	}

	run.Apply(res)
	run.Status = StatusCompleted
	now := time.Now()
	run.CompletedAt = &now
	if err := w.store.UpdateRun(ctx, run); err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("training: failed to complete run")
	}

	log.Info().
		Int64("run_id", run.ID).
		Bool("ok", res.OK).
		Int("rows", res.Rows).
		Str("message", res.Message).
		Dur("took", time.Since(start)).
		Msg("training: run finished")

	snapshot := *run
	j.done <- jobResult{run: &snapshot, result: res}
}

// safeTrain turns a panic in the training function into a failed run so the
// worker goroutine survives it.
func (w *Worker) safeTrain(ctx context.Context, from, to time.Time) (res domain.TrainResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panicked: %v", r)
		}
	}()
	return w.train(ctx, from, to)
}

func (w *Worker) fail(ctx context.Context, run *TrainingRun, cause error) {
	run.Status = StatusFailed
	run.ErrorMessage = cause.Error()
	now := time.Now()
	run.CompletedAt = &now
	if err := w.store.UpdateRun(ctx, run); err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("training: failed to mark run failed")
	}
	log.Error().Err(cause).Int64("run_id", run.ID).Msg("training: run failed")
}

func (w *Worker) drain(cause error) {
	for {
		select {
		case j := <-w.queue:
			w.fail(context.Background(), j.run, cause)
			snapshot := *j.run
			j.done <- jobResult{run: &snapshot, err: cause}
		default:
			return
		}
	}
}
