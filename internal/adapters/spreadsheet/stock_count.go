// internal/adapters/spreadsheet/stock_count.go
package spreadsheet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx/v3"
)

// ErrNoSheet is returned for a workbook without worksheets
var ErrNoSheet = errors.New("workbook has no worksheets")

// StockCountRow is one line of a stock count sheet. Exactly one of Delta
// and Counted is set: Delta is applied as is, Counted is an absolute
// quantity the caller reconciles against the ledger.
type StockCountRow struct {
	Line        int
	ProductID   int64
	WarehouseID int64
	Delta       *int64
	Counted     *int64
	Err         error
}

type columns struct {
	product   int
	warehouse int
	delta     int
	counted   int
}

var headerAliases = map[string]string{
	"product_id":   "product",
	"productid":    "product",
	"product":      "product",
	"warehouse_id": "warehouse",
	"warehouseid":  "warehouse",
	"warehouse":    "warehouse",
	"delta":        "delta",
	"adjustment":   "delta",
	"quantity":     "counted",
	"counted":      "counted",
	"count":        "counted",
}

// ReadStockCount parses the first worksheet of the file at path. The first
// row is a header naming product_id, warehouse_id and either delta or
// quantity. Row-level problems are reported on the row, not as an error.
func ReadStockCount(path string) ([]StockCountRow, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	return readStockCount(file)
}

// ReadStockCountBinary parses an in-memory workbook
func ReadStockCountBinary(data []byte) ([]StockCountRow, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	return readStockCount(file)
}

func readStockCount(file *xlsx.File) ([]StockCountRow, error) {
	if len(file.Sheets) == 0 {
		return nil, ErrNoSheet
	}
	sheet := file.Sheets[0]

	var (
		cols    *columns
		rows    []StockCountRow
		lineNum int
	)
	err := sheet.ForEachRow(func(r *xlsx.Row) error {
		lineNum++
		cells := rowValues(r)
		if isBlank(cells) {
			return nil
		}

		if cols == nil {
			c, err := parseHeader(cells)
			if err != nil {
				return err
			}
			cols = c
			return nil
		}

		rows = append(rows, parseStockCountRow(lineNum, cells, cols))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process Excel rows: %w", err)
	}
	if cols == nil {
		return nil, fmt.Errorf("stock count sheet has no header row")
	}
	return rows, nil
}

func rowValues(r *xlsx.Row) []string {
	values := make([]string, 0, r.Sheet.MaxCol)
	for i := 0; i < r.Sheet.MaxCol; i++ {
		values = append(values, strings.TrimSpace(r.GetCell(i).String()))
	}
	return values
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func parseHeader(cells []string) (*columns, error) {
	c := &columns{product: -1, warehouse: -1, delta: -1, counted: -1}
	for i, raw := range cells {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_"))
		switch headerAliases[key] {
		case "product":
			c.product = i
		case "warehouse":
			c.warehouse = i
		case "delta":
			c.delta = i
		case "counted":
			c.counted = i
		}
	}
	switch {
	case c.product < 0 || c.warehouse < 0:
		return nil, fmt.Errorf("header must name product_id and warehouse_id columns")
	case c.delta < 0 && c.counted < 0:
		return nil, fmt.Errorf("header must name a delta or quantity column")
	case c.delta >= 0 && c.counted >= 0:
		return nil, fmt.Errorf("header must name only one of delta and quantity")
	}
	return c, nil
}

func parseStockCountRow(line int, cells []string, cols *columns) StockCountRow {
	row := StockCountRow{Line: line}
	cell := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return cells[i]
	}

	var err error
	if row.ProductID, err = parseInt(cell(cols.product)); err != nil {
		row.Err = fmt.Errorf("product_id: %w", err)
		return row
	}
	if row.WarehouseID, err = parseInt(cell(cols.warehouse)); err != nil {
		row.Err = fmt.Errorf("warehouse_id: %w", err)
		return row
	}

	if cols.delta >= 0 {
		v, err := parseInt(cell(cols.delta))
		if err != nil {
			row.Err = fmt.Errorf("delta: %w", err)
			return row
		}
		row.Delta = &v
		return row
	}

	v, err := parseInt(cell(cols.counted))
	if err != nil {
		row.Err = fmt.Errorf("quantity: %w", err)
		return row
	}
	if v < 0 {
		row.Err = fmt.Errorf("quantity cannot be negative")
		return row
	}
	row.Counted = &v
	return row
}

// parseInt accepts integer text, including whole numbers written as floats
// which spreadsheet apps often produce.
func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("value is required")
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int64(f), nil
}
