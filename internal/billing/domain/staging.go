package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// StagingRecord is the per-unit working row of one billing period.
// Derived fields stay nil until the external stages populate them, and the
// orchestrator's transaction keeps them all-or-nothing for readers.
type StagingRecord struct {
	Period      Period
	UnitID      int64
	UnitName    string
	PeriodLabel string

	// input band
	Reading                *float64
	MeasuredConsumptionM3  *float64
	ReadingAt              *time.Time
	SewageConsumptionM3    *float64
	ProducedConsumptionM3  *float64
	PurchasedConsumptionM3 float64
	PeriodProducedM3       float64
	PeriodPurchasedM3      float64
	PeriodPurchasedCost    decimal.Decimal
	PeriodOtherCosts       decimal.Decimal

	// aggregate band
	PeriodConsumption Statistics

	// derived band
	WaterBracket     *string
	WaterRate        decimal.NullDecimal
	WaterDeductible  decimal.NullDecimal
	SewageBracket    *string
	SewageRate       decimal.NullDecimal
	SewageDeductible decimal.NullDecimal
	ProductionCost   decimal.NullDecimal
	PurchaseCost     decimal.NullDecimal
	SewageCost       decimal.NullDecimal
	CommonAreaCost   decimal.NullDecimal
	OtherCost        decimal.NullDecimal
	TotalCost        decimal.NullDecimal
	Message          *string
}

// NewStagingRecord builds the input and aggregate bands for one reading.
// Sewage and produced consumption start equal to the measured consumption and
// purchased consumption starts at zero; the cost engine reapportions them.
func NewStagingRecord(period BillingPeriod, reading UnitReading, unitName string, stats Statistics) StagingRecord {
	key := period.Key()
	return StagingRecord{
		Period:                key,
		UnitID:                reading.UnitID,
		UnitName:              unitName,
		PeriodLabel:           key.Label(),
		Reading:               reading.ReadingValue,
		MeasuredConsumptionM3: reading.ConsumptionM3,
		ReadingAt:             reading.ReadingAt,
		SewageConsumptionM3:   reading.ConsumptionM3,
		ProducedConsumptionM3: reading.ConsumptionM3,
		PeriodProducedM3:      period.ProducedVolumeM3,
		PeriodPurchasedM3:     period.PurchasedVolumeM3,
		PeriodPurchasedCost:   period.PurchasedCost,
		PeriodOtherCosts:      period.OtherCosts,
		PeriodConsumption:     stats,
	}
}

// Derived reports whether any external stage has written to the record.
func (r StagingRecord) Derived() bool {
	return r.WaterBracket != nil || r.SewageBracket != nil || r.Message != nil ||
		r.WaterRate.Valid || r.WaterDeductible.Valid || r.SewageRate.Valid || r.SewageDeductible.Valid ||
		r.ProductionCost.Valid || r.PurchaseCost.Valid || r.SewageCost.Valid ||
		r.CommonAreaCost.Valid || r.OtherCost.Valid || r.TotalCost.Valid
}

// ResultRow maps the record into the boundary result shape.
func (r StagingRecord) ResultRow() ResultRow {
	return ResultRow{
		UnitID:           r.UnitID,
		DisplayName:      r.UnitName,
		ProductionCost:   r.ProductionCost,
		SewageCost:       r.SewageCost,
		PurchaseCost:     r.PurchaseCost,
		CommonAreaCost:   r.CommonAreaCost,
		OtherCost:        r.OtherCost,
		TotalCost:        r.TotalCost,
		WaterBracket:     r.WaterBracket,
		WaterRate:        r.WaterRate,
		WaterDeductible:  r.WaterDeductible,
		SewageBracket:    r.SewageBracket,
		SewageRate:       r.SewageRate,
		SewageDeductible: r.SewageDeductible,
		Message:          r.Message,
	}
}
