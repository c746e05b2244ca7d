package audit

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetName = 31
	minColWidth  = 8
	maxColWidth  = 60
)

// ExcelizeWriter implements ExcelWriter on an in-memory excelize workbook.
// Column widths follow the longest value of each column.
type ExcelizeWriter struct {
	file   *excelize.File
	sheet  string
	row    int
	widths []int
	header int
}

// NewExcelizeWriter creates an empty workbook.
func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{file: excelize.NewFile()}
}

// AddSheet finishes the current sheet and starts a new one titled name.
func (w *ExcelizeWriter) AddSheet(name string) error {
	name = sheetTitle(name)
	if err := w.finishSheet(); err != nil {
		return err
	}

	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.sheet = name
	w.row = 1
	w.widths = nil
	return nil
}

// WriteHeader writes a bold header row and freezes it.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.sheet == "" {
		return errors.New("no active sheet")
	}

	values := make([]any, len(columns))
	for i, col := range columns {
		values[i] = col
	}
	if err := w.writeCells(values); err != nil {
		return err
	}

	if len(columns) > 0 {
		if err := w.styleHeader(len(columns)); err != nil {
			return err
		}
	}
	w.header = w.row
	w.row++
	return nil
}

// WriteRow writes one data row.
func (w *ExcelizeWriter) WriteRow(row []any) error {
	if w.sheet == "" {
		return errors.New("no active sheet")
	}
	if err := w.writeCells(row); err != nil {
		return err
	}
	w.row++
	return nil
}

// Save finishes the last sheet and writes the workbook.
func (w *ExcelizeWriter) Save(out io.Writer) error {
	if err := w.finishSheet(); err != nil {
		return err
	}
	return w.file.Write(out)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}

func (w *ExcelizeWriter) writeCells(values []any) error {
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if val == nil {
			val = ""
		}
		if err := w.file.SetCellValue(w.sheet, cell, val); err != nil {
			return err
		}
		w.track(i, val)
	}
	return nil
}

func (w *ExcelizeWriter) track(col int, val any) {
	for len(w.widths) <= col {
		w.widths = append(w.widths, minColWidth)
	}
	n := utf8.RuneCountInString(fmt.Sprint(val)) + 2
	if n > maxColWidth {
		n = maxColWidth
	}
	if n > w.widths[col] {
		w.widths[col] = n
	}
}

func (w *ExcelizeWriter) styleHeader(n int) error {
	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, w.row)
	last, _ := excelize.CoordinatesToCellName(n, w.row)
	return w.file.SetCellStyle(w.sheet, first, last, style)
}

func (w *ExcelizeWriter) finishSheet() error {
	if w.sheet == "" {
		return nil
	}
	for i, width := range w.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := w.file.SetColWidth(w.sheet, col, col, float64(width)); err != nil {
			return err
		}
	}
	if w.header > 0 {
		if err := w.file.SetPanes(w.sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      w.header,
			TopLeftCell: fmt.Sprintf("A%d", w.header+1),
			ActivePane:  "bottomLeft",
		}); err != nil {
			return err
		}
		w.header = 0
	}
	return nil
}

// sheetTitle capitalises the table name and fits Excel's 31 character limit.
func sheetTitle(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Sheet"
	}
	name = strings.ToUpper(name[:1]) + name[1:]
	if utf8.RuneCountInString(name) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	return name
}
