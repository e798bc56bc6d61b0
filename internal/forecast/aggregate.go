package forecast

import (
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

type dailyKey struct {
	Stream string
	Date   time.Time
}

// AggregateDaily collapses receipts into one observation per stream and day.
// Receipts whose unit differs from unit (when unit is non-empty) or that carry
// no purchase order are dropped. Amounts go through ParseAmount, so an
// unreadable amount contributes 0 instead of failing the batch. The first
// non-blank customer number and name seen in a group represent it.
func AggregateDaily(receipts []domain.Receipt, unit string) []domain.DailyObservation {
	unit = strings.ToUpper(strings.TrimSpace(unit))

	groups := make(map[dailyKey]*domain.DailyObservation)
	for _, r := range receipts {
		if unit != "" && strings.ToUpper(strings.TrimSpace(r.Unit)) != unit {
			continue
		}
		stream := strings.TrimSpace(r.PurchaseOrder)
		if stream == "" {
			continue
		}

		key := dailyKey{Stream: stream, Date: civilDate(r.ReceiptDate)}
		obs, ok := groups[key]
		if !ok {
			obs = &domain.DailyObservation{StreamID: stream, Date: key.Date}
			groups[key] = obs
		}
		obs.CollectedKg += ParseAmount(r.Amount)
		if obs.CustomerNo == "" {
			obs.CustomerNo = strings.TrimSpace(r.CustomerKey)
		}
		if obs.CustomerName == "" {
			obs.CustomerName = strings.TrimSpace(r.CustomerName)
		}
	}

	out := make([]domain.DailyObservation, 0, len(groups))
	for _, obs := range groups {
		out = append(out, *obs)
	}
	sortObservations(out)
	return out
}

func sortObservations(obs []domain.DailyObservation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].StreamID != obs[j].StreamID {
			return obs[i].StreamID < obs[j].StreamID
		}
		return obs[i].Date.Before(obs[j].Date)
	})
}

// civilDate drops the clock part, keeping the calendar day in t's location.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(civilDate(b).Sub(civilDate(a)).Hours() / 24)
}
