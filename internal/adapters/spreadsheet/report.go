// internal/adapters/spreadsheet/report.go
package spreadsheet

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/stockflow/internal/core/domain"
)

// ContentType is the MIME type of generated workbooks
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names
const (
	SheetValuation = "Stock Valuation"
	SheetTurnover  = "Turnover"
	SheetMeta      = "Report Info"
)

// WriteStockValuation renders the valuation report as an xlsx workbook
func WriteStockValuation(r *domain.StockValuationReport) ([]byte, error) {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet(SheetValuation)
	if err != nil {
		return nil, fmt.Errorf("failed to add worksheet: %w", err)
	}
	addHeader(sheet, "Product ID", "Product", "Quantity", "Unit Price", "Total Value")

	for _, row := range r.Rows {
		xr := sheet.AddRow()
		xr.AddCell().SetInt64(row.ProductID)
		xr.AddCell().SetString(row.ProductName)
		xr.AddCell().SetInt64(row.Quantity)
		setMoney(xr.AddCell(), row.Price)
		setMoney(xr.AddCell(), row.TotalValue)
	}

	total := sheet.AddRow()
	total.AddCell()
	total.AddCell().SetString("Total")
	total.AddCell()
	total.AddCell()
	setMoney(total.AddCell(), r.TotalValue)

	if err := addMeta(file, r.ReportMeta); err != nil {
		return nil, err
	}
	return write(file)
}

// WriteTurnover renders the turnover report as an xlsx workbook
func WriteTurnover(r *domain.TurnoverReport) ([]byte, error) {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet(SheetTurnover)
	if err != nil {
		return nil, fmt.Errorf("failed to add worksheet: %w", err)
	}
	addHeader(sheet, "Product ID", "Product", "Quantity Sold", "Total Revenue")

	for _, row := range r.Rows {
		xr := sheet.AddRow()
		xr.AddCell().SetInt64(row.ProductID)
		xr.AddCell().SetString(row.ProductName)
		xr.AddCell().SetInt64(row.QuantitySold)
		setMoney(xr.AddCell(), row.TotalRevenue)
	}

	total := sheet.AddRow()
	total.AddCell()
	total.AddCell().SetString("Total")
	total.AddCell()
	setMoney(total.AddCell(), r.TotalRevenue)

	if err := addMeta(file, r.ReportMeta); err != nil {
		return nil, err
	}
	return write(file)
}

func addHeader(sheet *xlsx.Sheet, headers ...string) {
	row := sheet.AddRow()
	for _, h := range headers {
		cell := row.AddCell()
		cell.Value = h
		cell.GetStyle().Font.Bold = true
		cell.GetStyle().Fill.PatternType = "solid"
		cell.GetStyle().Fill.FgColor = "CCCCCC"
	}
	for i := range headers {
		sheet.SetColWidth(i+1, i+1, 18)
	}
}

func addMeta(file *xlsx.File, meta domain.ReportMeta) error {
	sheet, err := file.AddSheet(SheetMeta)
	if err != nil {
		return fmt.Errorf("failed to add worksheet: %w", err)
	}

	kv := func(k, v string) {
		row := sheet.AddRow()
		row.AddCell().SetString(k)
		row.AddCell().SetString(v)
	}
	kv("Generated At", meta.GeneratedAt.UTC().Format(time.RFC3339))
	kv("Degraded", fmt.Sprintf("%t", meta.Degraded))

	sources := make([]string, 0, len(meta.Errors))
	for src := range meta.Errors {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		kv("Error: "+src, meta.Errors[src])
	}
	return nil
}

func setMoney(cell *xlsx.Cell, d decimal.Decimal) {
	f, _ := d.Round(2).Float64()
	cell.SetFloatWithFormat(f, "#,##0.00")
}

func write(file *xlsx.File) ([]byte, error) {
	var buffer bytes.Buffer
	if err := file.Write(&buffer); err != nil {
		return nil, fmt.Errorf("failed to write Excel file to buffer: %w", err)
	}
	return buffer.Bytes(), nil
}
