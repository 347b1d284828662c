package apihttp

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"hydromet-cloud/internal/analytics/domain/rollup"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// ExportDailyHandler serves daily aggregate exports as XLSX or PDF.
type ExportDailyHandler struct {
	days rollup.DailyStore
}

// NewExportDailyHandler constructs an ExportDailyHandler.
func NewExportDailyHandler(days rollup.DailyStore) *ExportDailyHandler {
	return &ExportDailyHandler{days: days}
}

// ServeHTTP handles GET /api/v1/exports/daily.
func (h *ExportDailyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.days == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	from, err := parseDateQuery(r, "from_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseDateQuery(r, "to_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to_date must not be before from_date", http.StatusBadRequest)
		return
	}
	stationID := r.URL.Query().Get("station_id")

	aggs, err := h.days.ListDailyByDateRange(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		http.Error(w, "query aggregates error", http.StatusInternalServerError)
		return
	}
	if stationID != "" {
		filtered := aggs[:0]
		for _, agg := range aggs {
			if agg.StationID == stationID {
				filtered = append(filtered, agg)
			}
		}
		aggs = filtered
	}

	switch r.URL.Query().Get("format") {
	case "pdf":
		payload, err := BuildDailyPDF(from, to, aggs)
		if err != nil {
			http.Error(w, "render pdf error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="daily_aggregates.pdf"`)
		_, _ = w.Write(payload)
	case "", "xlsx":
		payload, err := BuildDailyXLSX(from, to, aggs)
		if err != nil {
			http.Error(w, "render xlsx error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="daily_aggregates.xlsx"`)
		_, _ = w.Write(payload)
	default:
		http.Error(w, "format must be xlsx or pdf", http.StatusBadRequest)
	}
}

// BuildDailyPDF renders a minimal PDF report of daily aggregates.
func BuildDailyPDF(from, to time.Time, aggs []rollup.DailyAggregate) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Aggregates")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Range: %s .. %s", from.Format(dateLayout), to.Format(dateLayout)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 8)
	pdf.CellFormat(28, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Station", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "CSQ", "1", 0, "C", false, 0, "")
	for _, channel := range telemetry.Channels() {
		pdf.CellFormat(16, 6, channel.String(), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, agg := range aggs {
		pdf.CellFormat(28, 6, agg.Date.Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, agg.StationID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(18, 6, agg.CSQ, "1", 0, "C", false, 0, "")
		for _, channel := range telemetry.Channels() {
			stat := agg.Stats[channel]
			cell := ""
			if stat.SampleCount > 0 {
				cell = fmt.Sprintf("%.2f", stat.Avg)
			}
			pdf.CellFormat(16, 6, cell, "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDailyXLSX renders an XLSX workbook of daily aggregates with average
// and sample-count sheets.
func BuildDailyXLSX(from, to time.Time, aggs []rollup.DailyAggregate) ([]byte, error) {
	f := excelize.NewFile()
	avgSheet := "averages"
	countSheet := "sample_counts"
	f.SetSheetName("Sheet1", avgSheet)
	f.NewSheet(countSheet)

	for _, sheet := range []string{avgSheet, countSheet} {
		_ = f.SetCellValue(sheet, "A1", "Date")
		_ = f.SetCellValue(sheet, "B1", "Station")
		_ = f.SetCellValue(sheet, "C1", "CSQ")
		for i, channel := range telemetry.Channels() {
			cell, err := excelize.CoordinatesToCellName(4+i, 1)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, channel.String())
		}
	}

	for rowIdx, agg := range aggs {
		row := rowIdx + 2
		_ = f.SetCellValue(avgSheet, fmt.Sprintf("A%d", row), agg.Date.Format(dateLayout))
		_ = f.SetCellValue(avgSheet, fmt.Sprintf("B%d", row), agg.StationID)
		_ = f.SetCellValue(avgSheet, fmt.Sprintf("C%d", row), agg.CSQ)
		_ = f.SetCellValue(countSheet, fmt.Sprintf("A%d", row), agg.Date.Format(dateLayout))
		_ = f.SetCellValue(countSheet, fmt.Sprintf("B%d", row), agg.StationID)
		_ = f.SetCellValue(countSheet, fmt.Sprintf("C%d", row), agg.CSQ)
		for i, channel := range telemetry.Channels() {
			stat := agg.Stats[channel]
			cell, err := excelize.CoordinatesToCellName(4+i, row)
			if err != nil {
				return nil, err
			}
			if stat.SampleCount > 0 {
				_ = f.SetCellValue(avgSheet, cell, stat.Avg)
			}
			_ = f.SetCellValue(countSheet, cell, stat.SampleCount)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
