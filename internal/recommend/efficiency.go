package recommend

import (
	"slices"
	"sort"
	"strings"
	"time"
)

const (
	DefaultThresholdPct = 80
	DefaultLiters       = 660
	maxDetailEmptyings  = 50
)

// Emptying is one weighed pickup of a container of known size.
type Emptying struct {
	CustomerNo   string    `json:"-"`
	CustomerName string    `json:"-"`
	Date         time.Time `json:"date"`
	WeightKg     float64   `json:"weight_kg"`
	Liters       int       `json:"-"`
	FillPct      float64   `json:"fill_pct"`
}

// EfficiencySummary describes how well one customer fills one container size.
type EfficiencySummary struct {
	CustomerNo       string     `json:"customer_no"`
	CustomerName     string     `json:"customer_name"`
	Liters           int        `json:"liters"`
	CapacityKg       float64    `json:"capacity_kg"`
	ThresholdPct     int        `json:"threshold_pct"`
	TotalEmptyings   int        `json:"total_emptyings"`
	InefficientCount int        `json:"inefficient_emptyings"`
	InefficientPct   float64    `json:"inefficient_pct"`
	AvgFillPct       float64    `json:"avg_fill_pct"`
	Emptyings        []Emptying `json:"emptyings,omitempty"`
}

// EfficiencyParams normalizes query input.
type EfficiencyParams struct {
	Liters       int
	ThresholdPct int
	Density      float64
}

func (p EfficiencyParams) normalized(allowed []int) EfficiencyParams {
	if p.ThresholdPct <= 0 || p.ThresholdPct >= 100 {
		p.ThresholdPct = DefaultThresholdPct
	}
	if !slices.Contains(allowed, p.Liters) {
		p.Liters = DefaultLiters
	}
	p.Density = clampDensity(p.Density)
	return p
}

// AnalyzeEfficiency summarizes emptyings of the requested size per customer,
// ordered by inefficient share descending. Emptyings of other sizes and
// non-positive weights are ignored.
func AnalyzeEfficiency(events []Emptying, params EfficiencyParams, allowed []int) []EfficiencySummary {
	params = params.normalized(allowed)
	out := summarize(events, params, func(liters int) bool { return liters == params.Liters })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InefficientPct != out[j].InefficientPct {
			return out[i].InefficientPct > out[j].InefficientPct
		}
		return out[i].CustomerNo < out[j].CustomerNo
	})
	return out
}

// AnalyzeEfficiencyAllSizes summarizes every catalog size a customer uses,
// one entry per customer and size. Worst share first, then the busiest.
// params.Liters is ignored.
func AnalyzeEfficiencyAllSizes(events []Emptying, params EfficiencyParams, allowed []int) []EfficiencySummary {
	params = params.normalized(allowed)
	out := summarize(events, params, func(liters int) bool { return slices.Contains(allowed, liters) })
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.InefficientPct != b.InefficientPct:
			return a.InefficientPct > b.InefficientPct
		case a.TotalEmptyings != b.TotalEmptyings:
			return a.TotalEmptyings > b.TotalEmptyings
		case a.CustomerNo != b.CustomerNo:
			return a.CustomerNo < b.CustomerNo
		}
		return a.Liters < b.Liters
	})
	return out
}

// summarize groups matching emptyings by customer and size in first-seen
// order.
func summarize(events []Emptying, params EfficiencyParams, keep func(liters int) bool) []EfficiencySummary {
	type key struct {
		customer string
		liters   int
	}
	type acc struct {
		summary EfficiencySummary
		fillSum float64
	}
	groups := make(map[key]*acc)
	var order []key

	for _, e := range events {
		customer := strings.TrimSpace(e.CustomerNo)
		if customer == "" || e.WeightKg <= 0 || !keep(e.Liters) {
			continue
		}
		k := key{customer, e.Liters}
		a, ok := groups[k]
		if !ok {
			a = &acc{summary: EfficiencySummary{
				CustomerNo:   customer,
				Liters:       e.Liters,
				CapacityKg:   float64(e.Liters) * params.Density,
				ThresholdPct: params.ThresholdPct,
			}}
			groups[k] = a
			order = append(order, k)
		}
		if a.summary.CustomerName == "" {
			a.summary.CustomerName = strings.TrimSpace(e.CustomerName)
		}
		fill := e.WeightKg / a.summary.CapacityKg * 100
		a.summary.TotalEmptyings++
		a.fillSum += fill
		if fill < float64(params.ThresholdPct) {
			a.summary.InefficientCount++
		}
	}

	out := make([]EfficiencySummary, 0, len(order))
	for _, k := range order {
		a := groups[k]
		s := a.summary
		s.InefficientPct = 100 * float64(s.InefficientCount) / float64(s.TotalEmptyings)
		s.AvgFillPct = a.fillSum / float64(s.TotalEmptyings)
		out = append(out, s)
	}
	return out
}

// CustomerEfficiency is the detail view for one customer: the most recent
// matching emptyings, newest first. ok is false when none match.
func CustomerEfficiency(customerNo string, events []Emptying, params EfficiencyParams, allowed []int) (EfficiencySummary, bool) {
	params = params.normalized(allowed)
	capacityKg := float64(params.Liters) * params.Density
	customerNo = strings.TrimSpace(customerNo)

	matching := make([]Emptying, 0)
	for _, e := range events {
		if strings.TrimSpace(e.CustomerNo) == customerNo && e.Liters == params.Liters && e.WeightKg > 0 {
			matching = append(matching, e)
		}
	}
	if len(matching) == 0 {
		return EfficiencySummary{}, false
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].Date.After(matching[j].Date) })
	if len(matching) > maxDetailEmptyings {
		matching = matching[:maxDetailEmptyings]
	}

	s := EfficiencySummary{
		CustomerNo:   customerNo,
		Liters:       params.Liters,
		CapacityKg:   capacityKg,
		ThresholdPct: params.ThresholdPct,
	}
	var fillSum float64
	for i := range matching {
		matching[i].FillPct = matching[i].WeightKg / capacityKg * 100
		fillSum += matching[i].FillPct
		if matching[i].FillPct < float64(params.ThresholdPct) {
			s.InefficientCount++
		}
		if s.CustomerName == "" {
			s.CustomerName = strings.TrimSpace(matching[i].CustomerName)
		}
	}
	s.TotalEmptyings = len(matching)
	s.InefficientPct = 100 * float64(s.InefficientCount) / float64(s.TotalEmptyings)
	s.AvgFillPct = fillSum / float64(s.TotalEmptyings)
	s.Emptyings = matching
	return s, true
}
