package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/recommend"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository"
)

// EfficiencyService measures how full containers are when they are emptied.
type EfficiencyService struct {
	repo    repository.ReceiptRepository
	unit    string
	density float64
	allowed []int
}

func NewEfficiencyService(repo repository.ReceiptRepository, settings Settings, sizes []int) *EfficiencyService {
	if len(sizes) == 0 {
		sizes = recommend.DefaultSizes
	}
	return &EfficiencyService{
		repo:    repo,
		unit:    settings.MassUnit,
		density: settings.DensityKgPerLiter,
		allowed: append([]int(nil), sizes...),
	}
}

// Summary returns per-customer efficiency for one container size, worst first.
func (s *EfficiencyService) Summary(ctx context.Context, from, to time.Time, params recommend.EfficiencyParams) ([]recommend.EfficiencySummary, error) {
	events, err := s.emptyings(ctx, "", from, to)
	if err != nil {
		return nil, err
	}
	return recommend.AnalyzeEfficiency(events, s.withDensity(params), s.allowed), nil
}

// SummaryAll returns per-customer efficiency for every catalog size the
// customer was emptied with.
func (s *EfficiencyService) SummaryAll(ctx context.Context, from, to time.Time, params recommend.EfficiencyParams) ([]recommend.EfficiencySummary, error) {
	events, err := s.emptyings(ctx, "", from, to)
	if err != nil {
		return nil, err
	}
	return recommend.AnalyzeEfficiencyAllSizes(events, s.withDensity(params), s.allowed), nil
}

// Customer returns the detail view for one customer, or domain.ErrNotFound
// when no emptying of the requested size matched.
func (s *EfficiencyService) Customer(ctx context.Context, customerNo string, from, to time.Time, params recommend.EfficiencyParams) (*recommend.EfficiencySummary, error) {
	events, err := s.emptyings(ctx, customerNo, from, to)
	if err != nil {
		return nil, err
	}
	summary, ok := recommend.CustomerEfficiency(customerNo, events, s.withDensity(params), s.allowed)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &summary, nil
}

func (s *EfficiencyService) withDensity(p recommend.EfficiencyParams) recommend.EfficiencyParams {
	if p.Density <= 0 {
		p.Density = s.density
	}
	return p
}

// emptyings resolves each receipt's container size and keeps those that
// resolve to a catalog size.
func (s *EfficiencyService) emptyings(ctx context.Context, customerNo string, from, to time.Time) ([]recommend.Emptying, error) {
	receipts, err := s.repo.LoadContainerReceipts(ctx, s.unit, customerNo, from, to)
	if err != nil {
		return nil, fmt.Errorf("load container receipts: %w", err)
	}

	var items []int
	for _, r := range receipts {
		if n, err := strconv.Atoi(strings.TrimSpace(r.ItemNumber)); err == nil && n > 0 {
			items = append(items, n)
		}
	}
	caps, err := s.repo.LoadCapacityLookup(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("load capacity lookup: %w", err)
	}
	lookup := recommend.BuildCapacityLookup(caps)

	events := make([]recommend.Emptying, 0, len(receipts))
	for _, r := range receipts {
		liters, ok := recommend.ResolveLiters(r.ItemNumber, r.ItemText, lookup, s.allowed)
		if !ok {
			continue
		}
		events = append(events, recommend.Emptying{
			CustomerNo:   r.CustomerKey,
			CustomerName: r.CustomerName,
			Date:         r.ReceiptDate,
			WeightKg:     forecast.ParseAmount(r.Amount),
			Liters:       liters,
		})
	}
	return events, nil
}
