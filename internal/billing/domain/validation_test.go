package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPeriod() BillingPeriod {
	return BillingPeriod{
		ReferenceDate:    time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		ProducedVolumeM3: 500,
		PurchasedCost:    decimal.RequireFromString("120.50"),
		OtherCosts:       decimal.Zero,
	}
}

func TestValidateSubmission(t *testing.T) {
	readings := []UnitReading{{UnitID: 1, ConsumptionM3: f(10)}}
	require.NoError(t, ValidateSubmission(validPeriod(), readings))

	missingDate := validPeriod()
	missingDate.ReferenceDate = time.Time{}
	assert.ErrorIs(t, ValidateSubmission(missingDate, readings), ErrInvalidSubmission)

	negativeCost := validPeriod()
	negativeCost.OtherCosts = decimal.NewFromInt(-1)
	assert.ErrorIs(t, ValidateSubmission(negativeCost, readings), ErrInvalidSubmission)

	err := ValidateSubmission(validPeriod(), nil)
	assert.ErrorIs(t, err, ErrInvalidSubmission)
	assert.ErrorIs(t, err, ErrNoReadings)

	assert.ErrorIs(t, ValidateSubmission(validPeriod(), []UnitReading{{UnitID: 0}}), ErrInvalidSubmission)
	assert.ErrorIs(t, ValidateSubmission(validPeriod(), []UnitReading{{UnitID: 2, ReadingValue: f(-4)}}), ErrInvalidSubmission)

	// negative consumption is staged, not rejected
	assert.NoError(t, ValidateSubmission(validPeriod(), []UnitReading{{UnitID: 3, ConsumptionM3: f(-2)}}))
}

func TestDistinctReadings_LastWins(t *testing.T) {
	got := DistinctReadings([]UnitReading{
		{UnitID: 2, ConsumptionM3: f(1)},
		{UnitID: 1, ConsumptionM3: f(5)},
		{UnitID: 2, ConsumptionM3: f(9)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].UnitID)
	assert.Equal(t, 9.0, *got[0].ConsumptionM3)
	assert.Equal(t, int64(1), got[1].UnitID)
}

func TestNewStagingRecord(t *testing.T) {
	stats := Statistics{Total: 30, Mean: 15, Median: 15}
	rec := NewStagingRecord(validPeriod(), UnitReading{UnitID: 3}, "Unit 3", stats)

	assert.Equal(t, Period{Year: 2024, Month: time.August}, rec.Period)
	assert.Equal(t, "Ago-2024", rec.PeriodLabel)
	assert.Nil(t, rec.MeasuredConsumptionM3)
	assert.Equal(t, stats, rec.PeriodConsumption)
	assert.Equal(t, 500.0, rec.PeriodProducedM3)
	assert.True(t, rec.PeriodPurchasedCost.Equal(decimal.RequireFromString("120.5")))
	assert.False(t, rec.Derived())

	row := rec.ResultRow()
	assert.Equal(t, int64(3), row.UnitID)
	assert.Equal(t, "Unit 3", row.DisplayName)
	assert.False(t, row.TotalCost.Valid)
	assert.Nil(t, row.Message)
}

func TestPhaseLog(t *testing.T) {
	var log PhaseLog
	log.OK("staged")
	log.Error("tariff failed")
	require.Len(t, log, 2)
	assert.Equal(t, PhaseStatusOK, log[0].Status)
	assert.Equal(t, 1, log.Errors())
}
