// Package export converts downloaded figure data into other formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// SheetName is the single sheet CSVToXLSX writes.
const SheetName = "data"

// CSVToXLSX writes the rows of csvPath to a workbook at xlsxPath. Cells that
// parse as numbers are stored as numbers.
func CSVToXLSX(csvPath, xlsxPath string) error {
	in, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer in.Close()
	return WriteXLSX(in, xlsxPath)
}

// WriteXLSX reads CSV from r and saves it as a workbook at path.
func WriteXLSX(r io.Reader, path string) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv row %d: %w", row, err)
		}
		values := make([]any, len(rec))
		for i, v := range rec {
			values[i] = cellValue(v)
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func cellValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}
