// Package export renders extracted rows into spreadsheet workbooks and
// optionally publishes them.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/llm"
)

const headerFill = "2E7D32"

// Writer produces the Extracted_Data workbook.
type Writer struct {
	logger *slog.Logger
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Write renders rows with a styled header. If styling fails the same table is
// written plain. An empty rows slice yields a header-only workbook.
func (w *Writer) Write(rows []llm.Row, columns []string, dest string) error {
	start := time.Now()
	table := BuildTable(rows, columns)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := render(table, true)
	if err != nil {
		w.logger.Warn("export.xlsx.style_failed", "path", dest, "error", err)
		f, err = render(table, false)
		if err != nil {
			return fmt.Errorf("xlsx render: %w", err)
		}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			w.logger.Warn("export.xlsx.close_error", "path", dest, "error", cerr)
		}
	}()

	if err := f.SaveAs(dest); err != nil {
		return fmt.Errorf("xlsx write %s: %w", dest, err)
	}

	w.logger.Info("export.xlsx.ok",
		"path", dest,
		"rows", len(table)-1,
		"columns", len(columns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func render(table [][]string, styled bool) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", constants.SheetName); err != nil {
		_ = f.Close()
		return nil, err
	}

	for r, row := range table {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				_ = f.Close()
				return nil, err
			}
			if err := f.SetCellStr(constants.SheetName, cell, v); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
	}

	if styled && len(table) > 0 && len(table[0]) > 0 {
		if err := styleSheet(f, table); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func styleSheet(f *excelize.File, table [][]string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	last, err := excelize.CoordinatesToCellName(len(table[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(constants.SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, width := range columnWidths(table) {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(constants.SheetName, col, col, width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	return nil
}
