package services

import (
	"math"

	"taskgrid/internal/apperr"
)

// allocationTotal is the required sum of subtask percentages for one
// task, expressed in basis points (hundredths of a percent) so that
// 33.33 + 33.33 + 33.34 validates while 3 x 33.33 does not.
const allocationTotal = 10000

// ValidateAllocation checks that a batch of subtask percentages fully
// covers the parent task. Percentages outside [0, 100] are rejected
// individually before the sum is checked.
func ValidateAllocation(percentages []float64) error {
	if len(percentages) == 0 {
		return apperr.Validation("at least one subtask is required")
	}
	var sum int64
	for _, p := range percentages {
		if p < 0 || p > 100 {
			return apperr.Validation("subtask percentage must be between 0 and 100")
		}
		sum += int64(math.Round(p * 100))
	}
	if sum != allocationTotal {
		return apperr.Allocation(float64(sum) / 100)
	}
	return nil
}
