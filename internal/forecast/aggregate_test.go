package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

func TestAggregateDaily(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	receipts := []domain.Receipt{
		{CustomerKey: "1001", CustomerName: "Bakery", ReceiptDate: day.Add(8 * time.Hour), Unit: "KG", Amount: "10,5", PurchaseOrder: "PO-B"},
		{CustomerKey: "1001", ReceiptDate: day.Add(15 * time.Hour), Unit: "kg", Amount: "4.5", PurchaseOrder: "PO-B"},
		{CustomerKey: "1001", ReceiptDate: day.AddDate(0, 0, 1), Unit: "KG", Amount: "garbage", PurchaseOrder: "PO-B"},
		{CustomerKey: "1002", CustomerName: "Cafe", ReceiptDate: day, Unit: "KG", Amount: "7", PurchaseOrder: "PO-A"},
		{CustomerKey: "1002", ReceiptDate: day, Unit: "ST", Amount: "3", PurchaseOrder: "PO-A"},
		{CustomerKey: "1003", ReceiptDate: day, Unit: "KG", Amount: "9", PurchaseOrder: "  "},
	}

	daily := AggregateDaily(receipts, " kg ")
	require.Len(t, daily, 3)

	// Sorted by stream, then date
	assert.Equal(t, "PO-A", daily[0].StreamID)
	assert.InDelta(t, 7.0, daily[0].CollectedKg, 1e-9)
	assert.Equal(t, "Cafe", daily[0].CustomerName)

	assert.Equal(t, "PO-B", daily[1].StreamID)
	assert.Equal(t, day, daily[1].Date)
	assert.InDelta(t, 15.0, daily[1].CollectedKg, 1e-9)
	assert.Equal(t, "1001", daily[1].CustomerNo)
	assert.Equal(t, "Bakery", daily[1].CustomerName)

	assert.Equal(t, day.AddDate(0, 0, 1), daily[2].Date)
	assert.Zero(t, daily[2].CollectedKg)
}

func TestAggregateDaily_NoUnitFilter(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	receipts := []domain.Receipt{
		{ReceiptDate: day, Unit: "KG", Amount: "1", PurchaseOrder: "PO-A"},
		{ReceiptDate: day, Unit: "ST", Amount: "2", PurchaseOrder: "PO-A"},
	}

	daily := AggregateDaily(receipts, "")
	require.Len(t, daily, 1)
	assert.InDelta(t, 3.0, daily[0].CollectedKg, 1e-9)
}
