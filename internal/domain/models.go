// backend-go/internal/domain/models.go
package domain

import "time"

// Receipt is one weigh event as stored by the receipts table. Amount is kept
// as the raw text the scale export produced.
type Receipt struct {
	ID            int64     `json:"id" db:"id"`
	CustomerKey   string    `json:"customer_key" db:"customer_key"`
	CustomerName  string    `json:"customer_name" db:"customer_name"`
	ReceiptDate   time.Time `json:"receipt_date" db:"receipt_date"`
	ItemNumber    string    `json:"item_number" db:"item_number"`
	ItemText      string    `json:"item_text" db:"item_text"`
	Unit          string    `json:"unit" db:"unit"`
	Amount        string    `json:"amount" db:"amount"`
	PurchaseOrder string    `json:"purchase_order" db:"purchase_order"`
}

// DailyObservation is the total mass collected for one stream on one day.
type DailyObservation struct {
	StreamID     string    `json:"stream_id" db:"stream_id"`
	Date         time.Time `json:"date" db:"date"`
	CollectedKg  float64   `json:"collected_kg" db:"collected_kg"`
	CustomerNo   string    `json:"customer_no" db:"customer_no"`
	CustomerName string    `json:"customer_name" db:"customer_name"`
}

// ContainerCapacity maps a container item number to its volume.
type ContainerCapacity struct {
	ItemNumber int     `json:"item_number" db:"item_number"`
	Capacity   float64 `json:"capacity" db:"capacity"`
	Unit       string  `json:"unit" db:"unit"`
}

// Recommendation is the container setup suggested for one customer.
type Recommendation struct {
	EntityID              string  `json:"entity_id"`
	CustomerName          string  `json:"customer_name"`
	ContainerSizeLiters   int     `json:"container_size_liters"`
	ContainerCount        int     `json:"container_count"`
	FrequencyDays         int     `json:"frequency_days"`
	ExpectedFillFraction  float64 `json:"expected_fill_fraction"`
	PredictedSafeKgPerDay float64 `json:"predicted_safe_kg_per_day"`
	Streams               int     `json:"streams"`
}

// TrainResult reports the outcome of a training run. OK is false when the
// data was insufficient; metrics are then zero and Message explains why.
type TrainResult struct {
	OK           bool      `json:"ok"`
	Observations int       `json:"observations"`
	Rows         int       `json:"rows"`
	TrainRows    int       `json:"train_rows"`
	TestRows     int       `json:"test_rows"`
	TestFraction float64   `json:"test_fraction"`
	MAE          float64   `json:"mae"`
	RMSE         float64   `json:"rmse"`
	RSquared     float64   `json:"r2"`
	Candidate    string    `json:"candidate,omitempty"`
	Message      string    `json:"message"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
}

// ObservationFilter narrows what the repository loads.
type ObservationFilter struct {
	ContentCode int
	Unit        string
	CustomerNo  string
	StreamIDs   []string
}
