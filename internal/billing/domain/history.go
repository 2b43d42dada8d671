package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// LatestReading is a unit's most recent billed reading together with its
// recent consumption averages. Units never billed carry only id and name.
type LatestReading struct {
	UnitID          int64    `json:"unit_id"`
	UnitName        string   `json:"unit_name"`
	LastPeriod      string   `json:"last_period,omitempty"`
	LastReading     *float64 `json:"last_reading"`
	LastConsumption *float64 `json:"last_consumption"`
	Average6        *float64 `json:"average_6"`
	Average12       *float64 `json:"average_12"`
}

// BilledPeriod is one billed month of a unit, newest first in listings.
type BilledPeriod struct {
	Period        string              `json:"period"`
	Label         string              `json:"label"`
	Reading       *float64            `json:"reading"`
	ConsumptionM3 *float64            `json:"consumption_m3"`
	TotalCost     decimal.NullDecimal `json:"total_cost"`
	BilledAt      time.Time           `json:"billed_at"`
}
