package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// FromWorkbook renders the first sheet of an .xlsx file as ledger text, one
// comma-joined line per spreadsheet row, so that line numbers reported by
// Validate match spreadsheet row numbers. Raw cell values are used so number
// formats never inject separators.
func FromWorkbook(r io.Reader) (string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return "", ErrEmptyWorkbook
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	var b strings.Builder
	for r, row := range rows {
		for c, v := range row {
			if v != "0" && v != "1" {
				continue
			}
			// Raw boolean cells read back as 0/1.
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return "", err
			}
			if typ, err := f.GetCellType(sheet, name); err == nil && typ == excelize.CellTypeBool {
				row[c] = map[string]string{"0": "false", "1": "true"}[v]
			}
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// WriteTemplate writes an empty ledger workbook with the expected header row.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Ledger"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	for i, h := range TemplateColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}

// IsWorkbook sniffs the zip signature shared by .xlsx files.
func IsWorkbook(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}
