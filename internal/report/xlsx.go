package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Laporan Subsidi Tepat LPG"

var headers = []string{"No", "Nama", "NIK", "Jenis Pengguna", "Status", "Error Message"}

var columnWidths = map[string]float64{
	"A": 5,
	"B": 25,
	"C": 20,
	"D": 15,
	"E": 12,
	"F": 40,
}

// Writer serializes rows into an xlsx workbook.
type Writer struct{}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Write(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("set column %s width: %w", col, err)
		}
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "F1", bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{row.Index, row.Name, row.Identifier, row.Category, row.Result, row.FailureReason}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row.Index, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
