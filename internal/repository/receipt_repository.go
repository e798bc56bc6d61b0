// backend-go/internal/repository/receipt_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/repository/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ReceiptRepository is the read side the forecasting and efficiency code
// depends on.
type ReceiptRepository interface {
	// LoadReceipts returns mass receipts whose purchase order carries the
	// filter's content code.
	LoadReceipts(ctx context.Context, filter domain.ObservationFilter, from, to time.Time) ([]domain.Receipt, error)
	// LoadDailyObservations aggregates LoadReceipts to one row per stream and day.
	LoadDailyObservations(ctx context.Context, filter domain.ObservationFilter, from, to time.Time) ([]domain.DailyObservation, error)
	// LoadContainerReceipts returns mass receipts with ItemNumber and ItemText
	// taken from the driving order's container line. customerNo may be empty.
	LoadContainerReceipts(ctx context.Context, unit, customerNo string, from, to time.Time) ([]domain.Receipt, error)
	// LoadCapacityLookup returns capacity master data for the item numbers.
	LoadCapacityLookup(ctx context.Context, itemNumbers []int) ([]domain.ContainerCapacity, error)
}

type receiptRepository struct {
	db *postgres.DB
}

func NewReceiptRepository(db *postgres.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) LoadReceipts(ctx context.Context, filter domain.ObservationFilter, from, to time.Time) ([]domain.Receipt, error) {
	from, to = orderedDates(from, to)

	// The content code is matched through a subquery so that several driving
	// orders sharing a purchase order cannot multiply receipt rows.
	query := `
		SELECT r.id, r.customer_key, COALESCE(r.customer_name, '') AS customer_name,
		       r.receipt_date, COALESCE(r.item_number, '') AS item_number,
		       COALESCE(r.item_text, '') AS item_text, COALESCE(r.unit, '') AS unit,
		       COALESCE(r.amount, '') AS amount, r.purchase_order
		FROM receipts r
		WHERE r.receipt_date >= $1
		  AND r.receipt_date < $2
		  AND r.purchase_order IS NOT NULL
		  AND r.customer_key IS NOT NULL
		  AND r.purchase_order IN (
		      SELECT o.purchase_order
		      FROM driving_orders o
		      WHERE o.content_code = $3 AND o.purchase_order IS NOT NULL
		  )
	`

	args := []interface{}{from, to.AddDate(0, 0, 1), filter.ContentCode}
	var conditions []string
	argCounter := 4

	if unit := strings.TrimSpace(filter.Unit); unit != "" {
		conditions = append(conditions, fmt.Sprintf("UPPER(TRIM(r.unit)) = $%d", argCounter))
		args = append(args, strings.ToUpper(unit))
		argCounter++
	}
	if customer := strings.TrimSpace(filter.CustomerNo); customer != "" {
		conditions = append(conditions, fmt.Sprintf("r.customer_key = $%d", argCounter))
		args = append(args, customer)
		argCounter++
	}
	if len(filter.StreamIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("r.purchase_order = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(filter.StreamIDs))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.purchase_order, r.receipt_date, r.id"

	var receipts []domain.Receipt
	err := r.db.Do(ctx, func(q *sqlx.DB) error {
		return q.SelectContext(ctx, &receipts, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("error loading receipts: %w", err)
	}
	return receipts, nil
}

func (r *receiptRepository) LoadDailyObservations(ctx context.Context, filter domain.ObservationFilter, from, to time.Time) ([]domain.DailyObservation, error) {
	receipts, err := r.LoadReceipts(ctx, filter, from, to)
	if err != nil {
		return nil, err
	}
	return forecast.AggregateDaily(receipts, filter.Unit), nil
}

func (r *receiptRepository) LoadContainerReceipts(ctx context.Context, unit, customerNo string, from, to time.Time) ([]domain.Receipt, error) {
	from, to = orderedDates(from, to)

	query := `
		SELECT r.id, r.customer_key, COALESCE(r.customer_name, '') AS customer_name,
		       r.receipt_date,
		       COALESCE(o.container_item_number::text, '') AS item_number,
		       COALESCE(o.description, '') AS item_text,
		       COALESCE(r.unit, '') AS unit, COALESCE(r.amount, '') AS amount,
		       r.purchase_order
		FROM receipts r
		LEFT JOIN driving_orders o
		       ON o.customer_key = r.customer_key
		      AND o.purchase_order = r.purchase_order
		WHERE r.receipt_date >= $1
		  AND r.receipt_date < $2
		  AND r.purchase_order IS NOT NULL
		  AND r.customer_key IS NOT NULL
		  AND UPPER(TRIM(r.unit)) = $3
	`
	args := []interface{}{from, to.AddDate(0, 0, 1), strings.ToUpper(strings.TrimSpace(unit))}
	if customer := strings.TrimSpace(customerNo); customer != "" {
		query += " AND r.customer_key = $4"
		args = append(args, customer)
	}
	query += " ORDER BY r.receipt_date DESC, r.id"

	var receipts []domain.Receipt
	err := r.db.Do(ctx, func(q *sqlx.DB) error {
		return q.SelectContext(ctx, &receipts, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("error loading container receipts: %w", err)
	}
	return receipts, nil
}

func (r *receiptRepository) LoadCapacityLookup(ctx context.Context, itemNumbers []int) ([]domain.ContainerCapacity, error) {
	keys := make([]int64, 0, len(itemNumbers))
	seen := make(map[int]bool, len(itemNumbers))
	for _, n := range itemNumbers {
		if n > 0 && !seen[n] {
			seen[n] = true
			keys = append(keys, int64(n))
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	query := `
		SELECT item_number, capacity, COALESCE(unit, '') AS unit
		FROM container_capacities
		WHERE item_number = ANY($1::bigint[])
		  AND capacity IS NOT NULL
		  AND capacity > 0
	`

	var caps []domain.ContainerCapacity
	err := r.db.Do(ctx, func(q *sqlx.DB) error {
		return q.SelectContext(ctx, &caps, query, pq.Array(keys))
	})
	if err != nil {
		return nil, fmt.Errorf("error loading capacity lookup: %w", err)
	}
	return caps, nil
}

// orderedDates truncates both bounds to calendar days and swaps them when
// given in reverse.
func orderedDates(from, to time.Time) (time.Time, time.Time) {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	if to.Before(from) {
		from, to = to, from
	}
	return from, to
}
