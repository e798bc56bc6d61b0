package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

func TestBuildCapacityLookup(t *testing.T) {
	lookup := BuildCapacityLookup([]domain.ContainerCapacity{
		{ItemNumber: 1, Capacity: 660, Unit: "L"},
		{ItemNumber: 1, Capacity: 240, Unit: "l"},
		{ItemNumber: 2, Capacity: 1099.6, Unit: " L "},
		{ItemNumber: 3, Capacity: 5, Unit: "KG"},
		{ItemNumber: 4, Capacity: 0, Unit: "L"},
		{ItemNumber: 0, Capacity: 120, Unit: "L"},
	})

	assert.Equal(t, CapacityLookup{1: 660, 2: 1100}, lookup)
}

func TestResolveLiters(t *testing.T) {
	lookup := CapacityLookup{100: 660, 200: 770}

	tests := []struct {
		name       string
		item       string
		text       string
		wantLiters int
		wantOK     bool
	}{
		{"master data", "100", "Umleerbehälter 240 ltr.", 660, true},
		{"master data size not allowed", "200", "Container 240 Liter", 240, true},
		{"text fallback", "999", "MGB 1100 L grau", 1100, true},
		{"unit glued to size", "abc", "Tonne 120l", 0, false},
		{"spelled out", "", "Behälter 660 liter", 660, true},
		{"no size", "", "Sperrmüll", 0, false},
		{"unknown size", "", "Container 770 ltr", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			liters, ok := ResolveLiters(tt.item, tt.text, lookup, DefaultSizes)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLiters, liters)
		})
	}
}
