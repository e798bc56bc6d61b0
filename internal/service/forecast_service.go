package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/andresuchdata/wasteflow/backend-go/internal/cache"
	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/recommend"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository"
)

// TrainRunner executes a training run. The service trains in-line by default;
// the server swaps in the pipeline worker so fits stay off request goroutines.
type TrainRunner interface {
	Train(ctx context.Context, from, to time.Time) (domain.TrainResult, error)
}

// RecommendOptions are caller overrides of the engine defaults. Zero values
// keep the defaults; a positive FrequencyDays pins the frequency.
type RecommendOptions struct {
	FrequencyDays     int
	MinFrequencyDays  int
	MaxFrequencyDays  int
	TargetFill        float64
	MinFill           float64
	MaxFill           float64
	MaxContainers     int
	DensityKgPerLiter float64
}

func (o RecommendOptions) cacheTags() map[string]string {
	tags := make(map[string]string)
	add := func(k string, v float64) {
		if v != 0 {
			tags[k] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	add("frequency_days", float64(o.FrequencyDays))
	add("min_frequency_days", float64(o.MinFrequencyDays))
	add("max_frequency_days", float64(o.MaxFrequencyDays))
	add("target_fill", o.TargetFill)
	add("min_fill", o.MinFill)
	add("max_fill", o.MaxFill)
	add("max_containers", float64(o.MaxContainers))
	add("density", o.DensityKgPerLiter)
	return tags
}

// ModelStatus describes the cached model.
type ModelStatus struct {
	Trained   bool                `json:"trained"`
	Version   int64               `json:"version,omitempty"`
	From      time.Time           `json:"from,omitzero"`
	To        time.Time           `json:"to,omitzero"`
	TrainedAt time.Time           `json:"trained_at,omitzero"`
	Streams   int                 `json:"streams,omitempty"`
	Trees     int                 `json:"trees,omitempty"`
	Params    string              `json:"params,omitempty"`
	Result    *domain.TrainResult `json:"result,omitempty"`
}

type ForecastService struct {
	repo     repository.ReceiptRepository
	models   *cache.ModelCache
	recCache cache.RecommendationCache
	trainer  *forecast.Trainer
	engine   *recommend.Engine
	settings Settings
	runner   TrainRunner
	now      func() time.Time

	coldStart singleflight.Group
}

func NewForecastService(
	repo repository.ReceiptRepository,
	models *cache.ModelCache,
	recCache cache.RecommendationCache,
	trainer *forecast.Trainer,
	engine *recommend.Engine,
	settings Settings,
) *ForecastService {
	if models == nil {
		models = cache.NewModelCache()
	}
	if recCache == nil {
		recCache = cache.NewNoopRecommendationCache()
	}
	if trainer == nil {
		trainer = forecast.NewTrainer(forecast.DefaultOptions())
	}
	if engine == nil {
		engine = recommend.NewEngine(recommend.DefaultConfig())
	}
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	s := &ForecastService{
		repo:     repo,
		models:   models,
		recCache: recCache,
		trainer:  trainer,
		engine:   engine,
		settings: settings,
		now:      time.Now,
	}
	s.runner = directRunner{s}
	return s
}

// UseRunner routes implicit and explicit training through r.
func (s *ForecastService) UseRunner(r TrainRunner) {
	if r == nil {
		r = directRunner{s}
	}
	s.runner = r
}

// Engine exposes the recommendation engine for callers that size containers
// from a known rate.
func (s *ForecastService) Engine() *recommend.Engine { return s.engine }

type directRunner struct{ s *ForecastService }

func (d directRunner) Train(ctx context.Context, from, to time.Time) (domain.TrainResult, error) {
	return d.s.Train(ctx, from, to)
}

func (s *ForecastService) filter(customerNo string) domain.ObservationFilter {
	return domain.ObservationFilter{
		ContentCode: s.settings.ContentCode,
		Unit:        s.settings.MassUnit,
		CustomerNo:  customerNo,
	}
}

// Train loads the range, runs the training protocol and, only on success,
// replaces the cached model. Insufficient data is a result, not an error.
func (s *ForecastService) Train(ctx context.Context, from, to time.Time) (domain.TrainResult, error) {
	daily, err := s.repo.LoadDailyObservations(ctx, s.filter(""), from, to)
	if err != nil {
		return domain.TrainResult{}, fmt.Errorf("load daily observations: %w", err)
	}

	artifact, result := s.trainer.Train(ctx, daily)
	result.From = from
	result.To = to
	if artifact == nil {
		log.Warn().
			Int("observations", result.Observations).
			Int("rows", result.Rows).
			Str("message", result.Message).
			Msg("forecast: training skipped, cache untouched")
		return result, nil
	}

	version := s.models.Replace(cache.ModelState{
		Model:     artifact.Model,
		Residuals: artifact.Residuals,
		From:      from,
		To:        to,
		TrainedAt: s.now(),
		Result:    result,
	})

	if err := s.recCache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("forecast: cache invalidate failed")
	}

	log.Info().Int64("version", version).Msg("forecast: model cache replaced")
	return result, nil
}

// ensureModel returns the cached model, training over [from, to] when there
// is none yet. Concurrent cold callers share one training run.
func (s *ForecastService) ensureModel(ctx context.Context, from, to time.Time) (cache.ModelState, error) {
	if state, ok := s.models.TryGet(); ok {
		return state, nil
	}

	// The shared run outlives any single caller giving up on it.
	trainCtx := context.WithoutCancel(ctx)
	ch := s.coldStart.DoChan("model", func() (any, error) {
		if state, ok := s.models.TryGet(); ok {
			return state, nil
		}

		log.Info().Time("from", from).Time("to", to).Msg("forecast: no cached model, training on demand")
		result, err := s.runner.Train(trainCtx, from, to)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrNoRecommendation, err)
		}

		state, ok := s.models.TryGet()
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoRecommendation, result.Message)
		}
		return state, nil
	})

	select {
	case <-ctx.Done():
		return cache.ModelState{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return cache.ModelState{}, res.Err
		}
		return res.Val.(cache.ModelState), nil
	}
}

// RecommendForEntity sizes containers for one customer. It returns
// domain.ErrNotFound when the customer has no qualifying observations in the
// range or too few to form a single interval.
func (s *ForecastService) RecommendForEntity(ctx context.Context, from, to time.Time, entityID string, opts RecommendOptions) (*domain.Recommendation, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, domain.ErrNotFound
	}

	state, err := s.ensureModel(ctx, from, to)
	if err != nil {
		return nil, err
	}

	key := cache.RecommendationKey{From: from, To: to, EntityID: entityID, ModelVersion: state.Version, Overrides: opts.cacheTags()}
	if recs, ok, err := s.recCache.Get(ctx, key); err == nil && ok && len(recs) == 1 {
		return &recs[0], nil
	} else if err != nil {
		log.Warn().Err(err).Msg("forecast: cache get recommendation failed")
	}

	daily, err := s.repo.LoadDailyObservations(ctx, s.filter(entityID), from, to)
	if err != nil {
		return nil, fmt.Errorf("load daily observations: %w", err)
	}
	if len(daily) == 0 {
		return nil, domain.ErrNotFound
	}

	rows := forecast.BuildTrainingRows(daily, s.settings.MaxGapDays)
	var target *forecast.EntityForecast
	for _, ef := range forecast.ForecastEntities(state.Model, state.Residuals, rows, s.settings.SafetyK) {
		if ef.EntityID == entityID {
			target = &ef
			break
		}
	}
	if target == nil {
		return nil, domain.ErrNotFound
	}

	rec := s.recommend(*target, opts)
	if err := s.recCache.Set(ctx, key, []domain.Recommendation{rec}); err != nil {
		log.Warn().Err(err).Msg("forecast: cache set recommendation failed")
	}
	return &rec, nil
}

// RecommendAll ranks every customer by descending safe rate and sizes the
// first topN. topN below 1 is treated as 1.
func (s *ForecastService) RecommendAll(ctx context.Context, from, to time.Time, topN int, opts RecommendOptions) ([]domain.Recommendation, error) {
	if topN < 1 {
		topN = 1
	}

	state, err := s.ensureModel(ctx, from, to)
	if err != nil {
		return nil, err
	}

	key := cache.RecommendationKey{From: from, To: to, TopN: topN, ModelVersion: state.Version, Overrides: opts.cacheTags()}
	if recs, ok, err := s.recCache.Get(ctx, key); err == nil && ok {
		return recs, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("forecast: cache get recommendations failed")
	}

	daily, err := s.repo.LoadDailyObservations(ctx, s.filter(""), from, to)
	if err != nil {
		return nil, fmt.Errorf("load daily observations: %w", err)
	}

	rows := forecast.BuildTrainingRows(daily, s.settings.MaxGapDays)
	entities := forecast.ForecastEntities(state.Model, state.Residuals, rows, s.settings.SafetyK)
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].SafeKgPerDay != entities[j].SafeKgPerDay {
			return entities[i].SafeKgPerDay > entities[j].SafeKgPerDay
		}
		return entities[i].EntityID < entities[j].EntityID
	})
	if len(entities) > topN {
		entities = entities[:topN]
	}

	recs := make([]domain.Recommendation, len(entities))
	var g errgroup.Group
	g.SetLimit(s.settings.Workers)
	for i, ef := range entities {
		g.Go(func() error {
			recs[i] = s.recommend(ef, opts)
			return nil
		})
	}
	_ = g.Wait()

	if err := s.recCache.Set(ctx, key, recs); err != nil {
		log.Warn().Err(err).Msg("forecast: cache set recommendations failed")
	}
	return recs, nil
}

func (s *ForecastService) recommend(ef forecast.EntityForecast, opts RecommendOptions) domain.Recommendation {
	density := opts.DensityKgPerLiter
	if density <= 0 {
		density = s.settings.DensityKgPerLiter
	}

	res := s.engine.Evaluate(recommend.Request{
		SafeKgPerDay:      ef.SafeKgPerDay,
		DensityKgPerLiter: density,
		FrequencyDays:     opts.FrequencyDays,
		MinFrequencyDays:  opts.MinFrequencyDays,
		MaxFrequencyDays:  opts.MaxFrequencyDays,
		TargetFill:        opts.TargetFill,
		MinFill:           opts.MinFill,
		MaxFill:           opts.MaxFill,
		MaxContainers:     opts.MaxContainers,
	})

	return domain.Recommendation{
		EntityID:              ef.EntityID,
		CustomerName:          ef.CustomerName,
		ContainerSizeLiters:   res.ContainerSize,
		ContainerCount:        res.ContainerCount,
		FrequencyDays:         res.FrequencyDays,
		ExpectedFillFraction:  res.ExpectedFill,
		PredictedSafeKgPerDay: ef.SafeKgPerDay,
		Streams:               len(ef.Streams),
	}
}

// ModelStatus reports what the cache currently holds.
func (s *ForecastService) ModelStatus() ModelStatus {
	state, ok := s.models.TryGet()
	if !ok {
		return ModelStatus{}
	}
	result := state.Result
	return ModelStatus{
		Trained:   true,
		Version:   state.Version,
		From:      state.From,
		To:        state.To,
		TrainedAt: state.TrainedAt,
		Streams:   len(state.Model.Streams()),
		Trees:     state.Model.Trees(),
		Params:    state.Model.Params().String(),
		Result:    &result,
	}
}

// Fill computes the expected fill of a fixed setup, with the configured
// density when none is given.
func (s *ForecastService) Fill(kgPerDay, density float64, frequencyDays, sizeLiters, count int) float64 {
	if density <= 0 {
		density = s.settings.DensityKgPerLiter
	}
	return recommend.ExpectedFill(kgPerDay, density, frequencyDays, sizeLiters, count)
}
