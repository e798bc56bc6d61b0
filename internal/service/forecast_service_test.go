package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/wasteflow/backend-go/internal/cache"
	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/recommend"
)

var (
	rangeFrom = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
)

type fakeRepo struct {
	mu        sync.Mutex
	daily     []domain.DailyObservation
	receipts  []domain.Receipt
	caps      []domain.ContainerCapacity
	err       error
	dailyHits int
}

func (f *fakeRepo) LoadReceipts(ctx context.Context, filter domain.ObservationFilter, from, to time.Time) ([]domain.Receipt, error) {
	return nil, f.err
}

func (f *fakeRepo) LoadDailyObservations(ctx context.Context, filter domain.ObservationFilter, from, to time.Time) ([]domain.DailyObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyHits++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.DailyObservation
	for _, d := range f.daily {
		if filter.CustomerNo != "" && d.CustomerNo != filter.CustomerNo {
			continue
		}
		if len(filter.StreamIDs) > 0 && !slices.Contains(filter.StreamIDs, d.StreamID) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeRepo) LoadContainerReceipts(ctx context.Context, unit, customerNo string, from, to time.Time) ([]domain.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Receipt
	for _, r := range f.receipts {
		if customerNo == "" || r.CustomerKey == customerNo {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) LoadCapacityLookup(ctx context.Context, itemNumbers []int) ([]domain.ContainerCapacity, error) {
	return f.caps, f.err
}

// memoryCache is a RecommendationCache backed by a map.
type memoryCache struct {
	mu          sync.Mutex
	entries     map[string][]domain.Recommendation
	hits        int
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]domain.Recommendation)}
}

func memoryKey(k cache.RecommendationKey) string {
	parts := []string{k.From.Format(time.DateOnly), k.To.Format(time.DateOnly), k.EntityID}
	for name, v := range k.Overrides {
		parts = append(parts, name+"="+v)
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d/%d/%s", k.ModelVersion, k.TopN, strings.Join(parts, "|"))
}

func (c *memoryCache) Get(ctx context.Context, key cache.RecommendationKey) ([]domain.Recommendation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, ok := c.entries[memoryKey(key)]
	if ok {
		c.hits++
	}
	return recs, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, key cache.RecommendationKey, recs []domain.Recommendation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memoryKey(key)] = recs
	return nil
}

func (c *memoryCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]domain.Recommendation)
	c.invalidated++
	return nil
}

func weekly(stream, customer string, n int, level float64) []domain.DailyObservation {
	out := make([]domain.DailyObservation, 0, n)
	for i := 0; i < n; i++ {
		rate := level + math.Sin(float64(i)/2)
		out = append(out, domain.DailyObservation{
			StreamID:     stream,
			Date:         rangeFrom.AddDate(0, 0, 7*i),
			CollectedKg:  7 * rate,
			CustomerNo:   customer,
			CustomerName: "Customer " + customer,
		})
	}
	return out
}

func sampleDaily() []domain.DailyObservation {
	var daily []domain.DailyObservation
	daily = append(daily, weekly("PO-A", "1001", 40, 5)...)
	daily = append(daily, weekly("PO-B", "1001", 40, 8)...)
	daily = append(daily, weekly("PO-C", "1002", 40, 20)...)
	daily = append(daily, weekly("PO-D", "1003", 40, 2)...)
	daily = append(daily, weekly("PO-E", "1004", 1, 3)...)
	return daily
}

func testTrainer() *forecast.Trainer {
	return forecast.NewTrainer(forecast.Options{
		MinDailyObservations: 20,
		MinTrainingRows:      40,
		Seed:                 42,
		Workers:              2,
		Candidates: []forecast.Params{
			{Trees: 40, MaxDepth: 3, LearningRate: 0.1, MinLeaf: 3, Subsample: 0.8},
		},
	})
}

func newTestService(repo *fakeRepo, recCache cache.RecommendationCache) *ForecastService {
	return NewForecastService(repo, cache.NewModelCache(), recCache, testTrainer(), nil, DefaultSettings())
}

func TestForecastService_Train(t *testing.T) {
	recCache := newMemoryCache()
	svc := newTestService(&fakeRepo{daily: sampleDaily()}, recCache)

	res, err := svc.Train(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, forecast.MessageOK, res.Message)
	assert.Equal(t, rangeFrom, res.From)
	assert.Equal(t, rangeTo, res.To)
	assert.Equal(t, 1, recCache.invalidated)

	status := svc.ModelStatus()
	assert.True(t, status.Trained)
	assert.Equal(t, int64(1), status.Version)
	assert.Equal(t, 4, status.Streams)
	assert.Greater(t, status.Trees, 0)
	require.NotNil(t, status.Result)
	assert.Equal(t, res.MAE, status.Result.MAE)
}

func TestForecastService_TrainInsufficientKeepsCache(t *testing.T) {
	repo := &fakeRepo{daily: sampleDaily()}
	recCache := newMemoryCache()
	svc := newTestService(repo, recCache)

	_, err := svc.Train(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)

	repo.daily = weekly("PO-A", "1001", 10, 5)
	res, err := svc.Train(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)

	assert.False(t, res.OK)
	assert.NotEqual(t, forecast.MessageOK, res.Message)
	assert.Zero(t, res.MAE)
	assert.Equal(t, int64(1), svc.ModelStatus().Version, "previous model stays")
	assert.Equal(t, 1, recCache.invalidated)
}

func TestForecastService_TrainRepositoryError(t *testing.T) {
	svc := newTestService(&fakeRepo{err: errors.New("connection refused")}, nil)

	_, err := svc.Train(context.Background(), rangeFrom, rangeTo)
	assert.ErrorContains(t, err, "connection refused")
	assert.False(t, svc.ModelStatus().Trained)
}

func TestForecastService_RecommendForEntity(t *testing.T) {
	svc := newTestService(&fakeRepo{daily: sampleDaily()}, nil)

	// No model yet: the first request trains on demand
	rec, err := svc.RecommendForEntity(context.Background(), rangeFrom, rangeTo, " 1001 ", RecommendOptions{})
	require.NoError(t, err)
	assert.True(t, svc.ModelStatus().Trained)

	assert.Equal(t, "1001", rec.EntityID)
	assert.Equal(t, "Customer 1001", rec.CustomerName)
	assert.Equal(t, 2, rec.Streams)
	assert.Greater(t, rec.PredictedSafeKgPerDay, 10.0)
	assert.Contains(t, recommend.DefaultSizes, rec.ContainerSizeLiters)
	assert.GreaterOrEqual(t, rec.FrequencyDays, 1)
	assert.LessOrEqual(t, rec.FrequencyDays, 14)
	assert.InDelta(t,
		recommend.ExpectedFill(rec.PredictedSafeKgPerDay, 0.13, rec.FrequencyDays, rec.ContainerSizeLiters, rec.ContainerCount),
		rec.ExpectedFillFraction, 1e-9)
}

func TestForecastService_RecommendForEntity_FixedFrequency(t *testing.T) {
	svc := newTestService(&fakeRepo{daily: sampleDaily()}, nil)

	rec, err := svc.RecommendForEntity(context.Background(), rangeFrom, rangeTo, "1002", RecommendOptions{FrequencyDays: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.FrequencyDays)
}

func TestForecastService_RecommendForEntity_NotFound(t *testing.T) {
	svc := newTestService(&fakeRepo{daily: sampleDaily()}, nil)
	ctx := context.Background()

	for _, id := range []string{"", "   ", "9999", "1004"} {
		_, err := svc.RecommendForEntity(ctx, rangeFrom, rangeTo, id, RecommendOptions{})
		assert.ErrorIs(t, err, domain.ErrNotFound, "entity %q", id)
	}
}

func TestForecastService_NoRecommendationWithoutModel(t *testing.T) {
	svc := newTestService(&fakeRepo{daily: weekly("PO-A", "1001", 10, 5)}, nil)

	_, err := svc.RecommendAll(context.Background(), rangeFrom, rangeTo, 10, RecommendOptions{})
	assert.ErrorIs(t, err, domain.ErrNoRecommendation)

	_, err = svc.RecommendForEntity(context.Background(), rangeFrom, rangeTo, "1001", RecommendOptions{})
	assert.ErrorIs(t, err, domain.ErrNoRecommendation)
}

func TestForecastService_RecommendAll(t *testing.T) {
	svc := newTestService(&fakeRepo{daily: sampleDaily()}, nil)
	ctx := context.Background()

	recs, err := svc.RecommendAll(ctx, rangeFrom, rangeTo, 10, RecommendOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 3, "the single-pickup customer has no interval")

	assert.Equal(t, "1002", recs[0].EntityID)
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].PredictedSafeKgPerDay, recs[i].PredictedSafeKgPerDay)
	}

	top, err := svc.RecommendAll(ctx, rangeFrom, rangeTo, 2, RecommendOptions{})
	require.NoError(t, err)
	assert.Equal(t, recs[:2], top)

	one, err := svc.RecommendAll(ctx, rangeFrom, rangeTo, 0, RecommendOptions{})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestForecastService_RecommendAllUsesCache(t *testing.T) {
	repo := &fakeRepo{daily: sampleDaily()}
	recCache := newMemoryCache()
	svc := newTestService(repo, recCache)
	ctx := context.Background()

	_, err := svc.Train(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)

	first, err := svc.RecommendAll(ctx, rangeFrom, rangeTo, 5, RecommendOptions{})
	require.NoError(t, err)
	loads := repo.dailyHits

	second, err := svc.RecommendAll(ctx, rangeFrom, rangeTo, 5, RecommendOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, loads, repo.dailyHits, "served from cache")
	assert.Equal(t, 1, recCache.hits)

	// A retrain bumps the model version and drops the cached answer
	_, err = svc.Train(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	_, err = svc.RecommendAll(ctx, rangeFrom, rangeTo, 5, RecommendOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, recCache.hits)
}

type countingRunner struct {
	calls int
	svc   *ForecastService
}

func (r *countingRunner) Train(ctx context.Context, from, to time.Time) (domain.TrainResult, error) {
	r.calls++
	return r.svc.Train(ctx, from, to)
}

func TestForecastService_UseRunner(t *testing.T) {
	svc := newTestService(&fakeRepo{daily: sampleDaily()}, nil)
	runner := &countingRunner{svc: svc}
	svc.UseRunner(runner)

	_, err := svc.RecommendAll(context.Background(), rangeFrom, rangeTo, 3, RecommendOptions{})
	require.NoError(t, err)
	_, err = svc.RecommendAll(context.Background(), rangeFrom, rangeTo, 3, RecommendOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.calls)
}

// slowRunner serializes training like the pipeline worker does.
type slowRunner struct {
	mu    sync.Mutex
	calls atomic.Int32
	delay time.Duration
	svc   *ForecastService
}

func (r *slowRunner) Train(ctx context.Context, from, to time.Time) (domain.TrainResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Add(1)
	time.Sleep(r.delay)
	return r.svc.Train(ctx, from, to)
}

func TestForecastService_ConcurrentColdStartTrainsOnce(t *testing.T) {
	recCache := newMemoryCache()
	svc := newTestService(&fakeRepo{daily: sampleDaily()}, recCache)
	runner := &slowRunner{delay: 50 * time.Millisecond, svc: svc}
	svc.UseRunner(runner)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.RecommendAll(context.Background(), rangeFrom, rangeTo, 3, RecommendOptions{})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, int64(1), svc.ModelStatus().Version)
	assert.Equal(t, 1, recCache.invalidated)
}

func TestForecastService_ColdStartCallerGivesUp(t *testing.T) {
	svc := newTestService(&fakeRepo{daily: sampleDaily()}, nil)
	runner := &slowRunner{delay: 100 * time.Millisecond, svc: svc}
	svc.UseRunner(runner)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := svc.RecommendAll(ctx, rangeFrom, rangeTo, 3, RecommendOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the shared run keeps going and lands in the cache
	require.Eventually(t, func() bool { return svc.ModelStatus().Trained }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestForecastService_Fill(t *testing.T) {
	svc := newTestService(&fakeRepo{}, nil)

	assert.InDelta(t, 1.0011, svc.Fill(12.27, 0, 7, 660, 1), 1e-4)
	assert.InDelta(t, 0.5, svc.Fill(13, 0.13, 5, 1000, 1), 1e-9)
}

func TestRecommendOptions_CacheTags(t *testing.T) {
	assert.Empty(t, RecommendOptions{}.cacheTags())

	tags := RecommendOptions{FrequencyDays: 7, TargetFill: 0.9}.cacheTags()
	assert.Equal(t, map[string]string{"frequency_days": "7", "target_fill": "0.9"}, tags)
}
