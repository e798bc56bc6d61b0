package forecast

import (
	"math"
	"sort"
	"strings"
)

// DefaultSafetyK scales the residual spread added on top of a point forecast.
const DefaultSafetyK = 0.75

// StreamForecast is the safe rate of one purchase-order stream.
type StreamForecast struct {
	StreamID    string
	Point       float64
	ResidualStd float64
	Safe        float64
}

// EntityForecast sums the safe rates of every stream a customer owns.
type EntityForecast struct {
	EntityID     string
	CustomerName string
	Streams      []StreamForecast
	SafeKgPerDay float64
}

// Sanitize floors negative, NaN and infinite rates to zero.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// ForecastStream predicts a single stream's latest row and adds k residual
// deviations of margin.
func ForecastStream(m *Model, residuals ResidualTable, latest TrainingRow, k float64) StreamForecast {
	stream := strings.TrimSpace(latest.StreamID)
	point := Sanitize(m.Predict(latest))
	std := Sanitize(residuals.StdFor(stream))
	return StreamForecast{
		StreamID:    stream,
		Point:       point,
		ResidualStd: std,
		Safe:        Sanitize(point + Sanitize(k)*std),
	}
}

// ForecastEntities groups rows by customer, predicts the latest row of each
// of the customer's streams and sums the safe rates. Rows without a customer
// number are skipped. Output is ordered by entity id.
func ForecastEntities(m *Model, residuals ResidualTable, rows []TrainingRow, k float64) []EntityForecast {
	byEntity := make(map[string][]TrainingRow)
	for _, r := range rows {
		entity := strings.TrimSpace(r.CustomerNo)
		if entity == "" {
			continue
		}
		byEntity[entity] = append(byEntity[entity], r)
	}

	entities := make([]string, 0, len(byEntity))
	for e := range byEntity {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	out := make([]EntityForecast, 0, len(entities))
	for _, e := range entities {
		out = append(out, forecastEntity(m, residuals, e, byEntity[e], k))
	}
	return out
}

func forecastEntity(m *Model, residuals ResidualTable, entity string, rows []TrainingRow, k float64) EntityForecast {
	latest := LatestByStream(rows)
	streams := make([]string, 0, len(latest))
	for s := range latest {
		streams = append(streams, s)
	}
	sort.Strings(streams)

	ef := EntityForecast{EntityID: entity}
	for _, s := range streams {
		row := latest[s]
		if ef.CustomerName == "" {
			ef.CustomerName = row.CustomerName
		}
		sf := ForecastStream(m, residuals, row, k)
		ef.Streams = append(ef.Streams, sf)
		ef.SafeKgPerDay += sf.Safe
	}
	ef.SafeKgPerDay = Sanitize(ef.SafeKgPerDay)
	return ef
}
