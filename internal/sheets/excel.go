package sheets

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"internfunnel/internal/domain"
	"internfunnel/internal/scoring"
)

// ExcelSink appends rows to a workbook on disk.
type ExcelSink struct {
	Path string
	mu   sync.Mutex
}

func NewExcelSink(path string) *ExcelSink {
	return &ExcelSink{Path: path}
}

func (s *ExcelSink) Name() string { return "excel" }

func (s *ExcelSink) Append(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := appendRow(f, row); err != nil {
		return err
	}
	if err := f.SaveAs(s.Path); err != nil {
		return fmt.Errorf("save workbook %s: %w", s.Path, err)
	}
	return nil
}

func (s *ExcelSink) open() (*excelize.File, error) {
	if _, err := os.Stat(s.Path); err != nil {
		if os.IsNotExist(err) {
			return excelize.NewFile(), nil
		}
		return nil, err
	}
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", s.Path, err)
	}
	return f, nil
}

// appendRow writes row below the last used row of its tab, creating the
// tab with a header when missing.
func appendRow(f *excelize.File, row Row) error {
	idx, err := f.GetSheetIndex(row.Sheet)
	if err != nil {
		return err
	}
	if idx == -1 {
		if err := addSheet(f, row.Sheet, row.Header); err != nil {
			return err
		}
	}
	rows, err := f.GetRows(row.Sheet)
	if err != nil {
		return err
	}
	next := len(rows) + 1
	if next == 1 {
		if err := writeHeader(f, row.Sheet, row.Header); err != nil {
			return err
		}
		next = 2
	}
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	return f.SetSheetRow(row.Sheet, cell, &row.Values)
}

func addSheet(f *excelize.File, name string, header []string) error {
	// A fresh workbook carries an empty "Sheet1"; reuse it for the first tab.
	if list := f.GetSheetList(); len(list) == 1 && list[0] == "Sheet1" {
		rows, _ := f.GetRows("Sheet1")
		if len(rows) == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
			return writeHeader(f, name, header)
		}
	}
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	return writeHeader(f, name, header)
}

func writeHeader(f *excelize.File, sheet string, header []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

// ExportXLSX writes results to w as a workbook, one tab per questionnaire
// kind present.
func ExportXLSX(w io.Writer, results []domain.QuestionnaireResult, mappings map[domain.QuestionnaireKind]Export) error {
	f := excelize.NewFile()
	defer f.Close()

	for _, res := range results {
		exp, ok := mappings[res.Kind]
		if !ok {
			continue
		}
		if err := appendRow(f, BuildRow(exp.Sheet, res, exp.Mapping)); err != nil {
			return err
		}
	}
	if list := f.GetSheetList(); len(list) == 1 && list[0] == "Sheet1" {
		header := make([]any, 0, 4)
		for _, h := range []string{"Timestamp", "Candidate ID", "Name", "Email"} {
			header = append(header, h)
		}
		if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

// Export pairs a tab name with the mapping used to lay out its rows.
type Export struct {
	Sheet   string
	Mapping scoring.Mapping
}
