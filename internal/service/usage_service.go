package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository"
)

// maxOverviewCustomers caps the customer list of an overview.
const maxOverviewCustomers = 200

// UsageOverview lists the heaviest customers of a range. Customers is the
// count before the cap.
type UsageOverview struct {
	From      time.Time                `json:"from"`
	To        time.Time                `json:"to"`
	Customers int                      `json:"customers"`
	Top       []forecast.CustomerUsage `json:"top"`
}

// UsageSeries is one customer's daily collections, ready for charting.
type UsageSeries struct {
	CustomerNo string                    `json:"customer_no"`
	From       time.Time                 `json:"from"`
	To         time.Time                 `json:"to"`
	Streams    []string                  `json:"streams"`
	Points     int                       `json:"points"`
	Series     []domain.DailyObservation `json:"series"`
}

// UsageService exposes the daily observations the model trains on.
type UsageService struct {
	repo     repository.ReceiptRepository
	settings Settings
}

func NewUsageService(repo repository.ReceiptRepository, settings Settings) *UsageService {
	return &UsageService{repo: repo, settings: settings}
}

func (s *UsageService) Customers(ctx context.Context, from, to time.Time) (*UsageOverview, error) {
	daily, err := s.repo.LoadDailyObservations(ctx, domain.ObservationFilter{
		ContentCode: s.settings.ContentCode,
		Unit:        s.settings.MassUnit,
	}, from, to)
	if err != nil {
		return nil, fmt.Errorf("load daily observations: %w", err)
	}

	usage := forecast.SummarizeCustomers(daily)
	overview := &UsageOverview{From: from, To: to, Customers: len(usage), Top: usage}
	if len(overview.Top) > maxOverviewCustomers {
		overview.Top = overview.Top[:maxOverviewCustomers]
	}
	return overview, nil
}

// CustomerDaily returns the customer's series, optionally narrowed to some of
// its streams. An unknown customer yields an empty series.
func (s *UsageService) CustomerDaily(ctx context.Context, customerNo string, streams []string, from, to time.Time) (*UsageSeries, error) {
	customerNo = strings.TrimSpace(customerNo)
	if customerNo == "" {
		return nil, domain.ErrNotFound
	}

	var streamIDs []string
	for _, id := range streams {
		if id = strings.TrimSpace(id); id != "" {
			streamIDs = append(streamIDs, id)
		}
	}

	daily, err := s.repo.LoadDailyObservations(ctx, domain.ObservationFilter{
		ContentCode: s.settings.ContentCode,
		Unit:        s.settings.MassUnit,
		CustomerNo:  customerNo,
		StreamIDs:   streamIDs,
	}, from, to)
	if err != nil {
		return nil, fmt.Errorf("load daily observations: %w", err)
	}

	series, seen := forecast.CustomerDaily(daily, customerNo)
	return &UsageSeries{
		CustomerNo: customerNo,
		From:       from,
		To:         to,
		Streams:    seen,
		Points:     len(series),
		Series:     series,
	}, nil
}
