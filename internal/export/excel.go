// Package export serializes a session's results to a spreadsheet.
package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ratemysite/backend/internal/scoring"
	"github.com/ratemysite/backend/internal/session"
)

const (
	ContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	AnalysisSheet = "Analysis"
	RawSheet      = "Raw"
)

var ErrEmpty = errors.New("no results to export")

// Filename is the download name for a session's workbook.
func Filename(now time.Time, sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("ratemysite_analysis_%s_%s.xlsx", now.Format("20060102"), short)
}

// Excel renders results into an xlsx workbook. The Analysis sheet has one
// row per entry in rows and one column per result, in committed order.
// Failed results show their URL and the error in place of the fields.
func Excel(results []session.Result, rows []scoring.Row) ([]byte, error) {
	if len(results) == 0 {
		return nil, ErrEmpty
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", AnalysisSheet); err != nil {
		return nil, err
	}
	if err := writeAnalysis(f, results, rows); err != nil {
		return nil, fmt.Errorf("analysis sheet: %w", err)
	}
	if _, err := f.NewSheet(RawSheet); err != nil {
		return nil, err
	}
	if err := writeRaw(f, results); err != nil {
		return nil, fmt.Errorf("raw sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAnalysis(f *excelize.File, results []session.Result, rows []scoring.Row) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return err
	}

	if err := set(f, AnalysisSheet, 1, 1, "Metric"); err != nil {
		return err
	}
	for i, row := range rows {
		if err := set(f, AnalysisSheet, 1, i+2, row.Label); err != nil {
			return err
		}
	}
	for c, r := range results {
		col := c + 2
		if err := set(f, AnalysisSheet, col, 1, fmt.Sprintf("Site %d", c+1)); err != nil {
			return err
		}
		for i, row := range rows {
			if err := set(f, AnalysisSheet, col, i+2, cellValue(r, row.Key)); err != nil {
				return err
			}
		}
	}

	last, err := excelize.CoordinatesToCellName(len(results)+1, len(rows)+1)
	if err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(results) + 1)
	if err := f.SetCellStyle(AnalysisSheet, "B2", last, wrap); err != nil {
		return err
	}
	if err := f.SetCellStyle(AnalysisSheet, "A1", fmt.Sprintf("A%d", len(rows)+1), bold); err != nil {
		return err
	}
	if err := f.SetCellStyle(AnalysisSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(AnalysisSheet, "A", "A", 34); err != nil {
		return err
	}
	return f.SetColWidth(AnalysisSheet, "B", lastCol, 48)
}

func cellValue(r session.Result, key string) string {
	if r.Failed() {
		switch key {
		case "URL":
			return r.URL
		case "Company":
			return "ERROR: " + r.Error
		}
		return "-"
	}
	if v, ok := r.Data[key]; ok && v != "" {
		return v
	}
	if key == "URL" {
		return r.URL
	}
	return "-"
}

func writeRaw(f *excelize.File, results []session.Result) error {
	for i, h := range []string{"URL", "Status", "Raw Output"} {
		if err := set(f, RawSheet, i+1, 1, h); err != nil {
			return err
		}
	}
	for i, r := range results {
		row := i + 2
		status, raw := "ok", r.Data[scoring.RawKey]
		if r.Failed() {
			status, raw = "error", r.Error
		}
		for c, v := range []string{r.URL, status, raw} {
			if err := set(f, RawSheet, c+1, row, v); err != nil {
				return err
			}
		}
	}
	return f.SetColWidth(RawSheet, "C", "C", 100)
}

func set(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, v)
}
