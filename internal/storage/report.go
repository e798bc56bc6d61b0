package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

var recommendationHeader = []string{
	"entity_id", "customer_name", "container_size_liters", "container_count",
	"frequency_days", "expected_fill_fraction", "predicted_safe_kg_per_day", "streams",
}

// RecommendationsCSV renders recs in rank order.
func RecommendationsCSV(recs []domain.Recommendation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(recommendationHeader); err != nil {
		return nil, err
	}
	for _, r := range recs {
		record := []string{
			r.EntityID,
			r.CustomerName,
			strconv.Itoa(r.ContainerSizeLiters),
			strconv.Itoa(r.ContainerCount),
			strconv.Itoa(r.FrequencyDays),
			strconv.FormatFloat(r.ExpectedFillFraction, 'f', 4, 64),
			strconv.FormatFloat(r.PredictedSafeKgPerDay, 'f', 3, 64),
			strconv.Itoa(r.Streams),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReportKey names a report by its range and generation time.
func ReportKey(from, to, generatedAt time.Time) string {
	return fmt.Sprintf("%s_%s/recommendations_%s.csv",
		from.Format(time.DateOnly), to.Format(time.DateOnly), generatedAt.UTC().Format("20060102T150405Z"))
}

// ExportRecommendations uploads recs as CSV and returns the key used.
func ExportRecommendations(ctx context.Context, store ObjectStorage, recs []domain.Recommendation, from, to, generatedAt time.Time) (string, error) {
	data, err := RecommendationsCSV(recs)
	if err != nil {
		return "", fmt.Errorf("render recommendations csv: %w", err)
	}
	key := ReportKey(from, to, generatedAt)
	if err := store.UploadObject(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}
