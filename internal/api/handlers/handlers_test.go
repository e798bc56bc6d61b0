package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/wasteflow/backend-go/internal/cache"
	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/pipeline"
	"github.com/andresuchdata/wasteflow/backend-go/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRepo struct {
	daily    []domain.DailyObservation
	receipts []domain.Receipt
	err      error
}

func (s *stubRepo) LoadReceipts(ctx context.Context, filter domain.ObservationFilter, from, to time.Time) ([]domain.Receipt, error) {
	return nil, s.err
}

func (s *stubRepo) LoadDailyObservations(ctx context.Context, filter domain.ObservationFilter, from, to time.Time) ([]domain.DailyObservation, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.DailyObservation
	for _, d := range s.daily {
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

func (s *stubRepo) LoadContainerReceipts(ctx context.Context, unit, customerNo string, from, to time.Time) ([]domain.Receipt, error) {
	return s.receipts, s.err
}

func (s *stubRepo) LoadCapacityLookup(ctx context.Context, itemNumbers []int) ([]domain.ContainerCapacity, error) {
	return nil, s.err
}

func stubDaily() []domain.DailyObservation {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var daily []domain.DailyObservation
	for s, customer := range []string{"1001", "1002", "1003"} {
		for i := 0; i < 30; i++ {
			rate := 4 + 3*float64(s) + math.Cos(float64(i))
			daily = append(daily, domain.DailyObservation{
				StreamID:    "PO-" + customer,
				Date:        start.AddDate(0, 0, 7*i),
				CollectedKg: 7 * rate,
				CustomerNo:  customer,
			})
		}
	}
	return daily
}

func newForecastService(repo *stubRepo) *service.ForecastService {
	trainer := forecast.NewTrainer(forecast.Options{
		MinDailyObservations: 20,
		MinTrainingRows:      30,
		Candidates:           []forecast.Params{{Trees: 20, MaxDepth: 2, LearningRate: 0.2, MinLeaf: 3, Subsample: 1}},
	})
	return service.NewForecastService(repo, cache.NewModelCache(), nil, trainer, nil, service.DefaultSettings())
}

func newTestRouter(svc *service.ForecastService, worker *pipeline.Worker, eff *service.EfficiencyService) *gin.Engine {
	r := gin.New()
	fh := NewForecastHandler(svc, worker)
	r.POST("/forecast/train", fh.Train)
	r.GET("/forecast/model", fh.GetModel)
	r.GET("/forecast/runs", fh.ListRuns)
	r.GET("/forecast/runs/:id", fh.GetRun)
	r.GET("/recommendations", fh.RecommendAll)
	r.GET("/recommendations/:entity", fh.RecommendForEntity)
	r.POST("/fill/calc", fh.Fill)
	if eff != nil {
		eh := NewEfficiencyHandler(eff)
		r.GET("/efficiency/summary", eh.GetSummary)
		r.GET("/efficiency/summary/all", eh.GetSummaryAll)
		r.GET("/efficiency/:entity", eh.GetCustomer)
	}
	return r
}

func perform(r http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestParseRange(t *testing.T) {
	clock = func() time.Time { return time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { clock = time.Now })

	rangeOf := func(query string) (time.Time, time.Time, error) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
		return parseRange(c)
	}
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	from, to, err := rangeOf("")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 6, 15), to)
	assert.Equal(t, day(2023, 6, 16), from)

	from, to, err = rangeOf("from=2024-01-01&to=2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 1), from)
	assert.Equal(t, day(2024, 3, 31), to)

	from, to, err = rangeOf("from=2024-03-31&to=2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 1), from, "reversed bounds are swapped")
	assert.Equal(t, day(2024, 3, 31), to)

	from, _, err = rangeOf("to=2023-12-31")
	require.NoError(t, err)
	assert.Equal(t, day(2022, 12, 31), from)

	_, _, err = rangeOf("from=31.12.2023")
	assert.Error(t, err)
}

func TestFill(t *testing.T) {
	r := newTestRouter(newForecastService(&stubRepo{}), nil, nil)

	w := perform(r, http.MethodPost, "/fill/calc", []byte(`{"kg_per_day":12.27,"density_kg_per_liter":0.13,"frequency_days":7,"size_liters":660}`))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.InDelta(t, 1.0011, body["fill_fraction"], 1e-4)
	assert.InDelta(t, 100.11, body["fill_percent"], 1e-2)

	w = perform(r, http.MethodPost, "/fill/calc", []byte(`{"kg_per_day":12.27,"size_liters":660}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPost, "/fill/calc", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendations(t *testing.T) {
	r := newTestRouter(newForecastService(&stubRepo{daily: stubDaily()}), nil, nil)
	query := "?from=2024-01-01&to=2024-12-31"

	w := perform(r, http.MethodGet, "/recommendations"+query+"&top_n=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 2.0, body["total"])

	w = perform(r, http.MethodGet, "/recommendations/1002"+query+"&frequency_days=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode(t, w)
	assert.Equal(t, "1002", rec["entity_id"])
	assert.Equal(t, 5.0, rec["frequency_days"])

	w = perform(r, http.MethodGet, "/recommendations/9999"+query, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(r, http.MethodGet, "/recommendations?from=bad", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendations_ErrorMapping(t *testing.T) {
	insufficient := newTestRouter(newForecastService(&stubRepo{daily: stubDaily()[:10]}), nil, nil)
	w := perform(insufficient, http.MethodGet, "/recommendations", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode(t, w), "details")

	broken := newTestRouter(newForecastService(&stubRepo{err: errors.New("db down")}), nil, nil)
	w = perform(broken, http.MethodGet, "/recommendations/1001", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "training on demand failed")

	w = perform(broken, http.MethodPost, "/forecast/train", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTrainAndModel(t *testing.T) {
	svc := newForecastService(&stubRepo{daily: stubDaily()})
	r := newTestRouter(svc, nil, nil)

	w := perform(r, http.MethodGet, "/forecast/model", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["trained"])

	w = perform(r, http.MethodPost, "/forecast/train?from=2024-01-01&to=2024-12-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)["result"].(map[string]interface{})
	assert.Equal(t, true, result["ok"])

	w = perform(r, http.MethodGet, "/forecast/model", nil)
	model := decode(t, w)
	assert.Equal(t, true, model["trained"])
	assert.Equal(t, 1.0, model["version"])

	w = perform(r, http.MethodGet, "/forecast/runs/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no run history without a worker")
}

func TestTrainWithWorker(t *testing.T) {
	svc := newForecastService(&stubRepo{daily: stubDaily()})
	worker := pipeline.NewWorker(svc.Train, nil, pipeline.DefaultWorkerConfig())
	worker.Start(context.Background())
	t.Cleanup(worker.Stop)
	svc.UseRunner(worker)
	r := newTestRouter(svc, worker, nil)

	w := perform(r, http.MethodPost, "/forecast/train?async=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	run := decode(t, w)["run"].(map[string]interface{})
	assert.Equal(t, 1.0, run["id"])

	require.Eventually(t, func() bool {
		w := perform(r, http.MethodGet, "/forecast/runs/1", nil)
		return w.Code == http.StatusOK && decode(t, w)["status"] == string(pipeline.StatusCompleted)
	}, 5*time.Second, 20*time.Millisecond)

	w = perform(r, http.MethodPost, "/forecast/train", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "run")
	assert.Contains(t, body, "result")

	w = perform(r, http.MethodGet, "/forecast/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["runs"], 2)

	w = perform(r, http.MethodGet, "/forecast/runs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodGet, "/forecast/runs/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEfficiency(t *testing.T) {
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{receipts: []domain.Receipt{
		{CustomerKey: "2001", ReceiptDate: day, ItemText: "660 ltr", Amount: "40"},
		{CustomerKey: "2001", ReceiptDate: day.AddDate(0, 0, 7), ItemText: "660 ltr", Amount: "80"},
	}}
	eff := service.NewEfficiencyService(repo, service.DefaultSettings(), nil)
	r := newTestRouter(newForecastService(repo), nil, eff)

	w := perform(r, http.MethodGet, "/efficiency/summary?liters=660", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["total"])

	w = perform(r, http.MethodGet, "/efficiency/2001?liters=660&threshold_pct=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Equal(t, 50.0, detail["threshold_pct"])
	assert.Len(t, detail["emptyings"], 2)

	w = perform(r, http.MethodGet, "/efficiency/2001?liters=240", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(r, http.MethodGet, "/efficiency/summary/all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode(t, w)
	require.Equal(t, 1.0, all["total"])
	assert.Equal(t, 660.0, all["items"].([]interface{})[0].(map[string]interface{})["liters"])
}

func TestUsage(t *testing.T) {
	repo := &stubRepo{daily: stubDaily()}
	r := gin.New()
	uh := NewUsageHandler(service.NewUsageService(repo, service.DefaultSettings()))
	r.GET("/usage/customers", uh.GetCustomers)
	r.GET("/usage/customers/:entity/daily", uh.GetCustomerDaily)

	w := perform(r, http.MethodGet, "/usage/customers?from=2024-01-01&to=2024-12-31", nil)
	require.Equal(t, http.StatusOK, w.Code)
	overview := decode(t, w)
	assert.Equal(t, 3.0, overview["customers"])
	top := overview["top"].([]interface{})
	assert.Equal(t, "1003", top[0].(map[string]interface{})["customer_no"])

	w = perform(r, http.MethodGet, "/usage/customers/1002/daily?stream=PO-1002&stream=PO-9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	series := decode(t, w)
	assert.Equal(t, 30.0, series["points"])
	assert.Equal(t, []interface{}{"PO-1002"}, series["streams"])

	w = perform(r, http.MethodGet, "/usage/customers/1002/daily?stream=PO-1001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["points"])

	w = perform(r, http.MethodGet, "/usage/customers?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
