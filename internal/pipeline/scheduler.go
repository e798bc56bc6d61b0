package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const defaultRetrainWindowDays = 365

// Scheduler submits a training run over a rolling window on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	worker     *Worker
	windowDays int
	now        func() time.Time
}

// NewScheduler parses a standard five-field cron expression.
func NewScheduler(spec string, windowDays int, worker *Worker) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("retrain schedule must not be empty")
	}
	if windowDays <= 0 {
		windowDays = defaultRetrainWindowDays
	}

	s := &Scheduler{
		cron:       cron.New(),
		worker:     worker,
		windowDays: windowDays,
		now:        time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid retrain schedule %q: %w", spec, err)
	}
	return s, nil
}

// Window returns the range the next tick will train on.
func (s *Scheduler) Window() (time.Time, time.Time) {
	now := s.now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return to.AddDate(0, 0, -s.windowDays), to
}

func (s *Scheduler) tick() {
	from, to := s.Window()
	run, err := s.worker.Submit(context.Background(), from, to)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to submit retrain")
		return
	}
	log.Info().Int64("run_id", run.ID).Time("from", from).Time("to", to).Msg("scheduler: retrain submitted")
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for a running tick to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
