package dataset

import (
	"bytes"
	"fmt"

	"github.com/dhelos/saleshook/internal/flatten"
	"github.com/xuri/excelize/v2"
)

// Excel renders the spreadsheet projection of the dataset.
//
// With no existing workbook the full dataset is written to the named sheet:
// headers on row 1, data from row 2. With an existing workbook only the rows
// appended since the dataset was loaded are written, strictly after the last
// used row, in the existing header's column order; a missing header is
// written in place first. Values for keys not present in the header are
// dropped: the header defines the append contract.
func (d *Dataset) Excel(existing []byte, sheet string) ([]byte, error) {
	if len(existing) == 0 {
		return d.excelFull(sheet)
	}
	return d.excelAppend(existing, sheet)
}

func (d *Dataset) excelFull(sheet string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := writeRow(f, sheet, 1, headerCells(d.columns)); err != nil {
		return nil, err
	}
	for i, row := range d.rows {
		if err := writeRow(f, sheet, i+2, rowCells(row, d.columns)); err != nil {
			return nil, err
		}
	}

	return workbookBytes(f)
}

func (d *Dataset) excelAppend(existing []byte, sheet string) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(existing))
	if err != nil {
		return nil, fmt.Errorf("failed to open existing workbook: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil {
		return nil, fmt.Errorf("failed to look up sheet: %w", err)
	} else if idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("failed to create sheet: %w", err)
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing rows: %w", err)
	}

	header := d.columns
	next := 2
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == "" {
		// Workbook exists but has no header yet: write it in place.
		if err := writeRow(f, sheet, 1, headerCells(header)); err != nil {
			return nil, err
		}
	} else {
		header = rows[0]
		next = len(rows) + 1
	}

	for i, row := range d.appended() {
		if err := writeRow(f, sheet, next+i, rowCells(row, header)); err != nil {
			return nil, err
		}
	}

	return workbookBytes(f)
}

func headerCells(columns []string) []any {
	cells := make([]any, len(columns))
	for i, c := range columns {
		cells[i] = c
	}
	return cells
}

func rowCells(row flatten.Record, header []string) []any {
	cells := make([]any, len(header))
	for i, col := range header {
		cells[i] = row.Value(col)
	}
	return cells
}

func writeRow(f *excelize.File, sheet string, rowNum int, cells []any) error {
	for i, v := range cells {
		if v == nil {
			// Missing cells stay empty rather than carrying a null marker.
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func workbookBytes(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
