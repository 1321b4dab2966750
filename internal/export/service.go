// Package export renders batch reports as XLSX workbooks for the
// customer-service team.
package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/order-intake/internal/entity"
)

const (
	summarySheet = "Summary"
	failedSheet  = "Failed Orders"
	postedSheet  = "Posted Orders"
)

type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ReportsXLSX returns a workbook with one summary row per report plus every
// failed and posted order across them.
func (s *Service) ReportsXLSX(reports []entity.BatchReport) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{failedSheet, postedSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(activeIndex)

	writeRow(f, summarySheet, 1, "Category", "Run ID", "Documents", "Parsed", "Already Reconciled",
		"Already In TMS", "Submitted", "Failed", "Started", "Finished", "Cancelled")
	writeRow(f, failedSheet, 1, "Category", "BOL", "Reason")
	writeRow(f, postedSheet, 1, "Category", "BOL", "Order ID", "Rate")

	failedRow, postedRow := 2, 2
	for i, r := range reports {
		writeRow(f, summarySheet, i+2,
			string(r.Category()), r.RunID(), r.Documents(), r.Documents()-r.Dropped(), r.AlreadyReconciled(),
			r.AlreadyInRemote(), r.Submitted(), r.Failed(),
			stamp(r.Started()), stamp(r.Finished()), r.Cancelled())
		for _, fl := range r.Failures() {
			writeRow(f, failedSheet, failedRow, string(r.Category()), fl.BOL, truncate(strings.Join(fl.Messages, "; "), 500))
			failedRow++
		}
		for _, p := range r.Posted() {
			writeRow(f, postedSheet, postedRow, string(r.Category()), p.BOL, p.OrderID, p.Rate)
			postedRow++
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 20) // category
	_ = f.SetColWidth(summarySheet, "B", "B", 38) // run id
	_ = f.SetColWidth(summarySheet, "I", "J", 22) // timestamps
	_ = f.SetColWidth(failedSheet, "B", "B", 16)
	_ = f.SetColWidth(failedSheet, "C", "C", 90)
	_ = f.SetColWidth(postedSheet, "B", "C", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"reports", len(reports),
		"failed_rows", failedRow-2,
		"posted_rows", postedRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
