// Package export renders tabular intervention reports in the formats the API
// offers for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/pharmcare/pharmcare/internal/platform/apperr"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
)

// ParseFormat validates a caller-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatXLSX, FormatPDF, FormatJSON:
		return Format(s), nil
	default:
		return "", apperr.Validationf("unsupported export format: %q", s)
	}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Report is a rendered tabular report.
type Report struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Write renders the report in the requested format.
func Write(w io.Writer, f Format, r Report) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, r)
	case FormatXLSX:
		return writeXLSX(w, r)
	case FormatPDF:
		return writePDF(w, r)
	case FormatJSON:
		return writeJSON(w, r)
	default:
		return apperr.Validationf("unsupported export format: %q", f)
	}
}

func writeCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range r.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	f.SetSheetName("Sheet1", sheet)

	for col, h := range r.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("set header: %w", err)
		}
	}
	for i, row := range r.Rows {
		for col, val := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("row cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("set cell: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writePDF(w io.Writer, r Report) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, r.Title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 9)

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(len(r.Headers))

	for _, h := range r.Headers {
		pdf.CellFormat(colW, 7, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, row := range r.Rows {
		for _, val := range row {
			pdf.CellFormat(colW, 6, truncate(val, 40), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// truncate shortens s to max runes, never splitting a multibyte sequence.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func writeJSON(w io.Writer, r Report) error {
	records := make([]map[string]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]string, len(r.Headers))
		for i, h := range r.Headers {
			if i < len(row) {
				record[h] = row[i]
			}
		}
		records = append(records, record)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"title": r.Title,
		"data":  records,
	})
}
