package interfaces

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	billing "water-billing/internal/billing/domain"
)

var stagingExportHeaders = []string{
	"Unit", "Name", "Reading", "Consumption (m3)",
	"Water bracket", "Water rate", "Sewage bracket", "Sewage rate",
	"Production", "Purchase", "Sewage", "Common area", "Other", "Total", "Message",
}

// BuildStagingPDF renders the staged rows of a period as a landscape table.
func BuildStagingPDF(period billing.Period, records []billing.StagingRecord) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Water Billing %s", period.Label()))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Units: %d", len(records)))
	pdf.Ln(5)
	if len(records) > 0 {
		stats := records[0].PeriodConsumption
		pdf.Cell(0, 6, fmt.Sprintf("Consumption total %.2f m3, mean %.2f, median %.2f", stats.Total, stats.Mean, stats.Median))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Billed total: %s", sumTotals(records).StringFixed(2)))
	pdf.Ln(8)

	widths := []float64{12, 38, 16, 20, 18, 14, 18, 14, 18, 16, 16, 18, 14, 18, 27}
	pdf.SetFont("Arial", "B", 7)
	for i, header := range stagingExportHeaders {
		pdf.CellFormat(widths[i], 6, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 7)
	for _, rec := range records {
		cells := stagingCells(rec)
		for i, cell := range cells {
			align := "R"
			if i == 1 || i == 4 || i == 6 || i == 14 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 5, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStagingXLSX renders a summary sheet and one row per staged unit.
func BuildStagingXLSX(period billing.Period, records []billing.StagingRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	rowsSheet := "units"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(rowsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Water Billing")
	_ = f.SetCellValue(summarySheet, "A3", "Period")
	_ = f.SetCellValue(summarySheet, "B3", period.String())
	_ = f.SetCellValue(summarySheet, "A4", "Label")
	_ = f.SetCellValue(summarySheet, "B4", period.Label())
	_ = f.SetCellValue(summarySheet, "A5", "Units")
	_ = f.SetCellValue(summarySheet, "B5", len(records))
	_ = f.SetCellValue(summarySheet, "A6", "Billed total")
	_ = f.SetCellValue(summarySheet, "B6", sumTotals(records).InexactFloat64())
	if len(records) > 0 {
		stats := records[0].PeriodConsumption
		_ = f.SetCellValue(summarySheet, "A7", "Consumption total (m3)")
		_ = f.SetCellValue(summarySheet, "B7", stats.Total)
		_ = f.SetCellValue(summarySheet, "A8", "Consumption mean (m3)")
		_ = f.SetCellValue(summarySheet, "B8", stats.Mean)
		_ = f.SetCellValue(summarySheet, "A9", "Consumption median (m3)")
		_ = f.SetCellValue(summarySheet, "B9", stats.Median)
	}

	header := make([]any, len(stagingExportHeaders))
	for i, h := range stagingExportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(rowsSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, rec := range records {
		row := stagingXLSXRow(rec)
		if err := f.SetSheetRow(rowsSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stagingCells(rec billing.StagingRecord) []string {
	return []string{
		fmt.Sprintf("%d", rec.UnitID),
		rec.UnitName,
		formatFloat(rec.Reading),
		formatFloat(rec.MeasuredConsumptionM3),
		formatString(rec.WaterBracket),
		formatDecimal(rec.WaterRate, 4),
		formatString(rec.SewageBracket),
		formatDecimal(rec.SewageRate, 4),
		formatDecimal(rec.ProductionCost, 2),
		formatDecimal(rec.PurchaseCost, 2),
		formatDecimal(rec.SewageCost, 2),
		formatDecimal(rec.CommonAreaCost, 2),
		formatDecimal(rec.OtherCost, 2),
		formatDecimal(rec.TotalCost, 2),
		formatString(rec.Message),
	}
}

func stagingXLSXRow(rec billing.StagingRecord) []any {
	return []any{
		rec.UnitID,
		rec.UnitName,
		floatCell(rec.Reading),
		floatCell(rec.MeasuredConsumptionM3),
		formatString(rec.WaterBracket),
		decimalCell(rec.WaterRate),
		formatString(rec.SewageBracket),
		decimalCell(rec.SewageRate),
		decimalCell(rec.ProductionCost),
		decimalCell(rec.PurchaseCost),
		decimalCell(rec.SewageCost),
		decimalCell(rec.CommonAreaCost),
		decimalCell(rec.OtherCost),
		decimalCell(rec.TotalCost),
		formatString(rec.Message),
	}
}

func sumTotals(records []billing.StagingRecord) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		if rec.TotalCost.Valid {
			total = total.Add(rec.TotalCost.Decimal)
		}
	}
	return total
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatDecimal(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(places)
}

func floatCell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func decimalCell(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.InexactFloat64()
}
