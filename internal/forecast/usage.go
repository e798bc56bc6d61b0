package forecast

import (
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

// CustomerUsage is the collection history of one customer over a range.
// Days counts daily observations, so two streams emptied on the same day
// count twice.
type CustomerUsage struct {
	CustomerNo   string    `json:"customer_no"`
	CustomerName string    `json:"customer_name"`
	Days         int       `json:"days"`
	TotalKg      float64   `json:"total_kg"`
	AvgKgPerDay  float64   `json:"avg_kg_per_day"`
	LastDate     time.Time `json:"last_date"`
}

// SummarizeCustomers groups observations by customer number, heaviest
// customer first. Observations without a customer number are skipped.
func SummarizeCustomers(daily []domain.DailyObservation) []CustomerUsage {
	groups := make(map[string]*CustomerUsage)
	for _, d := range daily {
		customer := strings.TrimSpace(d.CustomerNo)
		if customer == "" {
			continue
		}
		u, ok := groups[customer]
		if !ok {
			u = &CustomerUsage{CustomerNo: customer}
			groups[customer] = u
		}
		if u.CustomerName == "" {
			u.CustomerName = strings.TrimSpace(d.CustomerName)
		}
		u.Days++
		u.TotalKg += d.CollectedKg
		if d.Date.After(u.LastDate) {
			u.LastDate = d.Date
		}
	}

	out := make([]CustomerUsage, 0, len(groups))
	for _, u := range groups {
		u.AvgKgPerDay = u.TotalKg / float64(u.Days)
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalKg != out[j].TotalKg {
			return out[i].TotalKg > out[j].TotalKg
		}
		return out[i].CustomerNo < out[j].CustomerNo
	})
	return out
}

// CustomerDaily returns one customer's observations in date order, stream
// as tie-break, with the distinct streams seen.
func CustomerDaily(daily []domain.DailyObservation, customerNo string) ([]domain.DailyObservation, []string) {
	customerNo = strings.TrimSpace(customerNo)
	series := make([]domain.DailyObservation, 0)
	seen := make(map[string]bool)
	var streams []string
	for _, d := range daily {
		if strings.TrimSpace(d.CustomerNo) != customerNo {
			continue
		}
		series = append(series, d)
		if !seen[d.StreamID] {
			seen[d.StreamID] = true
			streams = append(streams, d.StreamID)
		}
	}
	sort.SliceStable(series, func(i, j int) bool {
		if !series[i].Date.Equal(series[j].Date) {
			return series[i].Date.Before(series[j].Date)
		}
		return series[i].StreamID < series[j].StreamID
	})
	sort.Strings(streams)
	return series, streams
}
