package forecast

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

// DefaultMaxGapDays is the longest silence between two pickups that still
// yields a training interval.
const DefaultMaxGapDays = 180

// BuildTrainingRows walks each stream's observations in date order and emits
// one row per usable consecutive pair. A pair is unusable when the gap is not
// positive or exceeds maxGapDays; unusable pairs neither emit a row nor enter
// the rolling history. Rolling statistics only ever see intervals before the
// one being labeled.
func BuildTrainingRows(daily []domain.DailyObservation, maxGapDays int) []TrainingRow {
	if maxGapDays <= 0 {
		maxGapDays = DefaultMaxGapDays
	}

	byStream := make(map[string][]domain.DailyObservation)
	var streams []string
	for _, d := range daily {
		key := strings.TrimSpace(d.StreamID)
		if _, ok := byStream[key]; !ok {
			streams = append(streams, key)
		}
		byStream[key] = append(byStream[key], d)
	}
	sort.Strings(streams)

	var rows []TrainingRow
	for _, stream := range streams {
		list := byStream[stream]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })

		var history []float64
		for i := 1; i < len(list); i++ {
			prev, cur := list[i-1], list[i]

			days := daysBetween(prev.Date, cur.Date)
			if days <= 0 || days > maxGapDays {
				continue
			}

			kgPerDay := cur.CollectedKg / float64(days)

			avg3 := rollingMean(history, 3)
			avg5 := rollingMean(history, 5)
			std5 := rollingStd(history, 5)
			trend5 := rollingTrend(history, 5)

			if len(history) < 3 {
				avg3 = kgPerDay
			}
			if len(history) < 5 {
				avg5 = kgPerDay
				std5 = 0
				trend5 = 0
			}

			customerNo, customerName := cur.CustomerNo, cur.CustomerName
			if strings.TrimSpace(customerNo) == "" {
				customerNo = prev.CustomerNo
			}
			if strings.TrimSpace(customerName) == "" {
				customerName = prev.CustomerName
			}

			date := civilDate(cur.Date)
			rows = append(rows, TrainingRow{
				StreamID:     stream,
				CustomerNo:   strings.TrimSpace(customerNo),
				CustomerName: strings.TrimSpace(customerName),
				Date:         date,

				DaysSincePrev:   days,
				Month:           int(date.Month()),
				Weekday:         (int(date.Weekday()) + 6) % 7,
				PrevCollectedKg: prev.CollectedKg,

				AvgKgDayLast3:   avg3,
				AvgKgDayLast5:   avg5,
				StdKgDayLast5:   std5,
				TrendKgDayLast5: trend5,

				Label: kgPerDay,
			})

			history = append(history, kgPerDay)
		}
	}

	return rows
}

func tail(xs []float64, k int) []float64 {
	if len(xs) <= k {
		return xs
	}
	return xs[len(xs)-k:]
}

func rollingMean(xs []float64, k int) float64 {
	take := tail(xs, k)
	if len(take) == 0 {
		return 0
	}
	return floats.Sum(take) / float64(len(take))
}

// rollingStd is the n-1 sample deviation of the last k values.
func rollingStd(xs []float64, k int) float64 {
	take := tail(xs, k)
	if len(take) < 2 {
		return 0
	}
	return stat.StdDev(take, nil)
}

// rollingTrend is the least-squares slope of the last k values against their
// position.
func rollingTrend(xs []float64, k int) float64 {
	take := tail(xs, k)
	n := len(take)
	if n < 2 {
		return 0
	}

	pos := make([]float64, n)
	for i := range pos {
		pos[i] = float64(i)
	}
	sumX := floats.Sum(pos)
	denom := float64(n)*floats.Dot(pos, pos) - sumX*sumX
	if math.Abs(denom) < 1e-9 {
		return 0
	}

	_, slope := stat.LinearRegression(pos, take, nil, false)
	return slope
}

// LatestByStream keeps the most recent row of every stream, keyed by stream.
func LatestByStream(rows []TrainingRow) map[string]TrainingRow {
	latest := make(map[string]TrainingRow)
	for _, r := range rows {
		if cur, ok := latest[r.StreamID]; !ok || r.Date.After(cur.Date) {
			latest[r.StreamID] = r
		}
	}
	return latest
}
