package anal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/HagaiHargil/caflow/internal/spikes"
)

var countHeaders = []string{"neuron", "before", "during", "after"}

// WriteCountsCSV writes the per-cell phase tallies as csv.
func WriteCountsCSV(path string, cells []int, counts []spikes.EpochCount) error {
	if len(cells) != len(counts) {
		return fmt.Errorf("export: %d cells but %d tallies", len(cells), len(counts))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(countHeaders); err != nil {
		return err
	}
	for i, c := range counts {
		row := []string{
			strconv.Itoa(cells[i]),
			strconv.FormatFloat(c.Before, 'g', -1, 64),
			strconv.FormatFloat(c.During, 'g', -1, 64),
			strconv.FormatFloat(c.After, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

// WriteCountsXLSX writes the per-cell phase tallies as a workbook.
func WriteCountsXLSX(path string, cells []int, counts []spikes.EpochCount) error {
	if len(cells) != len(counts) {
		return fmt.Errorf("export: %d cells but %d tallies", len(cells), len(counts))
	}

	f := excelize.NewFile()

	sheet := "Sheet1"
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return err
		}
		f.SetActiveSheet(idx)
	}

	for i, h := range countHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for r, c := range counts {
		rowIdx := r + 2
		values := []interface{}{cells[r], c.Before, c.During, c.After}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return err
	}

	return nil
}
