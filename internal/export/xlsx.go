// Package export writes expense listings as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"chitieu/internal/core"
)

const sheetName = "Chi tiêu"

var headers = []string{"ID", "Ngày", "Mô tả", "Danh mục", "Số tiền (₫)", "Ghi chú"}

// WriteXLSX writes expenses as a single-sheet workbook with a totals row.
func WriteXLSX(w io.Writer, expenses []core.Expense) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 3}) // #,##0
	if err != nil {
		return fmt.Errorf("amount style: %w", err)
	}

	var total int64
	for i, e := range expenses {
		row := i + 2
		values := []any{
			e.ID,
			e.Date.In(core.Location).Format(core.TimestampLayout),
			e.Description,
			e.Category,
			e.Amount.Dong,
			e.RawText,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
		total += e.Amount.Dong
	}

	totalRow := len(expenses) + 2
	labelCell, _ := excelize.CoordinatesToCellName(4, totalRow)
	totalCell, _ := excelize.CoordinatesToCellName(5, totalRow)
	if err := f.SetCellValue(sheetName, labelCell, "Tổng"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, totalCell, total); err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(5, 2)
	if err := f.SetCellStyle(sheetName, first, totalCell, amountStyle); err != nil {
		return fmt.Errorf("style amounts: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
