package recommend

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
)

var litersInText = regexp.MustCompile(`\b(120|240|660|1100)\b\s*(ltr|l|liter)\b`)

// CapacityLookup maps container item numbers to whole liters.
type CapacityLookup map[int]int

// BuildCapacityLookup keeps positive capacities in unit L. Duplicate item
// numbers keep the largest capacity, rounded half away from zero.
func BuildCapacityLookup(caps []domain.ContainerCapacity) CapacityLookup {
	out := make(CapacityLookup)
	for _, c := range caps {
		if c.ItemNumber <= 0 || c.Capacity <= 0 || !strings.EqualFold(strings.TrimSpace(c.Unit), "L") {
			continue
		}
		liters := int(math.Round(c.Capacity))
		if liters > out[c.ItemNumber] {
			out[c.ItemNumber] = liters
		}
	}
	return out
}

// ResolveLiters finds the container size of a receipt. Master data wins; the
// item description ("660 ltr.") is the fallback. Only sizes in allowed are
// accepted.
func ResolveLiters(itemNumber, description string, lookup CapacityLookup, allowed []int) (int, bool) {
	if n, err := strconv.Atoi(strings.TrimSpace(itemNumber)); err == nil && n > 0 {
		if liters, ok := lookup[n]; ok && slices.Contains(allowed, liters) {
			return liters, true
		}
	}

	m := litersInText.FindStringSubmatch(strings.ToLower(description))
	if m == nil {
		return 0, false
	}
	liters, err := strconv.Atoi(m[1])
	if err != nil || !slices.Contains(allowed, liters) {
		return 0, false
	}
	return liters, true
}
