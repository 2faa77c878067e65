package purchase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Coffee"

var exportHeaders = []string{"Date", "Shop", "Name", "Price", "Capacity", "Flavor", "Cup size", "Notes"}

// Exporter writes records as an XLSX workbook
type Exporter struct {
	logger *slog.Logger
}

// NewExporter creates a new Exporter
func NewExporter(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// WriteXLSX returns a workbook with one row per record followed by a totals row
func (e *Exporter) WriteXLSX(records []PurchaseRecord) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	// rename the default sheet rather than leaving an empty Sheet1 behind
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	row := 1
	write := func(col int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(exportSheet, cell, v)
	}

	for i, h := range exportHeaders {
		if err := write(i+1, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	for _, r := range records {
		row++
		values := []any{r.Date, r.Shop, r.Name, r.Price, r.Capacity, r.Flavor, r.CupSize, truncate(r.Notes, 140)}
		for i, v := range values {
			if err := write(i+1, v); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	stats := Aggregate(records)
	row += 2
	for i, v := range []any{"Count", stats.Count, "Total", stats.TotalPrice, "Average", stats.AveragePrice} {
		if err := write(i+1, v); err != nil {
			return nil, fmt.Errorf("writing totals: %w", err)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 14) // date
	_ = f.SetColWidth(exportSheet, "B", "C", 24) // shop, name
	_ = f.SetColWidth(exportSheet, "D", "G", 12) // price .. cup size
	_ = f.SetColWidth(exportSheet, "H", "H", 48) // notes

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("Exported records",
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
