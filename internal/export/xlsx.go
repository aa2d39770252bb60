// Package export renders account holdings as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"arbitrium/internal/store"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Holdings"

var header = []string{"Item", "Quantity", "Tradable", "Current price", "Net price", "Target price", "Updated"}

// WriteHoldings writes one sheet with a row per holding followed by the
// account totals.
func WriteHoldings(w io.Writer, d *store.Dashboard, rows []store.HoldingRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", "G1", bold); err != nil {
		return err
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{
			r.Name,
			r.Quantity,
			yesNo(r.Tradable),
			floatOrBlank(r.Price),
			decimalOrBlank(r.NetPrice),
			decimalOrBlank(r.TargetPrice),
			timeOrBlank(r.PriceAt),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	if d != nil {
		totalRow := len(rows) + 3
		totals := [][]interface{}{
			{"Account", d.Account.Name},
			{"Gross total", d.GrossTotal.StringFixed(2)},
			{"Net total", d.NetTotal.StringFixed(2)},
		}
		for i, t := range totals {
			cell, _ := excelize.CoordinatesToCellName(1, totalRow+i)
			if err := f.SetSheetRow(SheetName, cell, &t); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 48); err != nil {
		return err
	}
	return f.Write(w)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func floatOrBlank(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func decimalOrBlank(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func timeOrBlank(t *time.Time) interface{} {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
