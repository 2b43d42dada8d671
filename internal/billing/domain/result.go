package billing

import "github.com/shopspring/decimal"

// ResultRow is one unit's billed outcome as returned to callers.
type ResultRow struct {
	UnitID           int64               `json:"unit_id"`
	DisplayName      string              `json:"display_name"`
	ProductionCost   decimal.NullDecimal `json:"production_cost"`
	SewageCost       decimal.NullDecimal `json:"sewage_cost"`
	PurchaseCost     decimal.NullDecimal `json:"purchase_cost"`
	CommonAreaCost   decimal.NullDecimal `json:"common_area_cost"`
	OtherCost        decimal.NullDecimal `json:"other_cost"`
	TotalCost        decimal.NullDecimal `json:"total_cost"`
	WaterBracket     *string             `json:"water_bracket"`
	WaterRate        decimal.NullDecimal `json:"water_rate"`
	WaterDeductible  decimal.NullDecimal `json:"water_deductible"`
	SewageBracket    *string             `json:"sewage_bracket"`
	SewageRate       decimal.NullDecimal `json:"sewage_rate"`
	SewageDeductible decimal.NullDecimal `json:"sewage_deductible"`
	Message          *string             `json:"message"`
}

// ResultRows maps staged records, preserving their order.
func ResultRows(records []StagingRecord) []ResultRow {
	rows := make([]ResultRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.ResultRow())
	}
	return rows
}
