package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingPeriod carries the month's production and purchase totals.
type BillingPeriod struct {
	ReferenceDate     time.Time       `json:"reference_date"`
	ProducedVolumeM3  float64         `json:"produced_volume"`
	PurchasedVolumeM3 float64         `json:"purchased_volume"`
	PurchasedCost     decimal.Decimal `json:"purchased_cost"`
	OtherCosts        decimal.Decimal `json:"other_costs"`
}

// Key returns the month the totals belong to.
func (p BillingPeriod) Key() Period {
	return PeriodOf(p.ReferenceDate)
}

// UnitReading is one unit's meter reading for the period.
type UnitReading struct {
	UnitID        int64      `json:"unit_id"`
	ReadingAt     *time.Time `json:"reading_timestamp,omitempty"`
	ReadingValue  *float64   `json:"reading_value,omitempty"`
	ConsumptionM3 *float64   `json:"consumption,omitempty"`
}

// HasValidConsumption reports whether the consumption takes part in statistics.
func (r UnitReading) HasValidConsumption() bool {
	return r.ConsumptionM3 != nil && *r.ConsumptionM3 >= 0
}
