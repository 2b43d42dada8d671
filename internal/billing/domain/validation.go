package billing

import "fmt"

// ValidateSubmission rejects malformed input before any state is touched.
func ValidateSubmission(period BillingPeriod, readings []UnitReading) error {
	if period.ReferenceDate.IsZero() {
		return fmt.Errorf("%w: reference_date is required", ErrInvalidSubmission)
	}
	if period.ProducedVolumeM3 < 0 || period.PurchasedVolumeM3 < 0 {
		return fmt.Errorf("%w: volumes must not be negative", ErrInvalidSubmission)
	}
	if period.PurchasedCost.IsNegative() || period.OtherCosts.IsNegative() {
		return fmt.Errorf("%w: costs must not be negative", ErrInvalidSubmission)
	}
	if len(readings) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, ErrNoReadings)
	}
	for i, r := range readings {
		if r.UnitID <= 0 {
			return fmt.Errorf("%w: readings[%d]: unit_id must be positive", ErrInvalidSubmission, i)
		}
		if r.ReadingValue != nil && *r.ReadingValue < 0 {
			return fmt.Errorf("%w: readings[%d]: reading_value must not be negative", ErrInvalidSubmission, i)
		}
	}
	return nil
}

// DistinctReadings keeps one reading per unit: a later duplicate replaces the
// earlier one in place.
func DistinctReadings(readings []UnitReading) []UnitReading {
	index := make(map[int64]int, len(readings))
	result := make([]UnitReading, 0, len(readings))
	for _, r := range readings {
		if i, ok := index[r.UnitID]; ok {
			result[i] = r
			continue
		}
		index[r.UnitID] = len(result)
		result = append(result, r)
	}
	return result
}
