package pipeline

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/growthsignal/attribution-cli/internal/config"
	"github.com/growthsignal/attribution-cli/internal/model"
	"github.com/growthsignal/attribution-cli/internal/store"
)

var reportHeader = []string{"channel_name", "date", "cost", "ihc", "ihc_revenue", "CPO", "ROAS"}

// BuildReport reads the channel aggregate ordered by (date, channel_name) and
// derives CPO and ROAS per row.
func BuildReport(ctx context.Context, st store.Store) ([]model.ReportRow, error) {
	daily, err := st.ListChannelDaily(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]model.ReportRow, 0, len(daily))
	for _, d := range daily {
		rows = append(rows, d.Report())
	}
	return rows, nil
}

// Export writes the channel report to cfg.OutputPath in the configured
// format (csv or xlsx).
func Export(ctx context.Context, st store.Store, cfg config.ReportConfig) error {
	rows, err := BuildReport(ctx, st)
	if err != nil {
		return err
	}

	switch cfg.Format {
	case "", "csv":
		err = ExportCSV(rows, cfg.OutputPath)
	case "xlsx":
		err = ExportXLSX(rows, cfg.OutputPath)
	default:
		return eris.Errorf("pipeline: unknown report format %q", cfg.Format)
	}
	if err != nil {
		return err
	}

	zap.L().Info("pipeline: report exported",
		zap.String("path", cfg.OutputPath),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// ExportCSV writes the report as a CSV file.
func ExportCSV(rows []model.ReportRow, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create report file %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(reportHeader); err != nil {
		return eris.Wrap(err, "pipeline: write report header")
	}
	for _, r := range rows {
		record := []string{
			r.ChannelName,
			r.Date,
			formatFloat(r.Cost),
			formatFloat(r.IHC),
			formatFloat(r.IHCRevenue),
			formatFloat(r.CPO),
			formatFloat(r.ROAS),
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "pipeline: write report row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "pipeline: flush report")
	}
	return eris.Wrap(f.Close(), "pipeline: close report file")
}

// ExportXLSX writes the report as a single-sheet spreadsheet.
func ExportXLSX(rows []model.ReportRow, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("channel_reporting")
	if err != nil {
		return eris.Wrap(err, "pipeline: add report sheet")
	}

	header := sheet.AddRow()
	for _, col := range reportHeader {
		header.AddCell().SetString(col)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ChannelName)
		row.AddCell().SetString(r.Date)
		row.AddCell().SetFloat(r.Cost)
		row.AddCell().SetFloat(r.IHC)
		row.AddCell().SetFloat(r.IHCRevenue)
		// Spreadsheets have no infinity; fall back to the text sentinel.
		if math.IsInf(r.CPO, 1) {
			row.AddCell().SetString("inf")
		} else {
			row.AddCell().SetFloat(r.CPO)
		}
		row.AddCell().SetFloat(r.ROAS)
	}

	return eris.Wrapf(file.Save(path), "pipeline: save report %s", path)
}

// formatFloat renders numeric report values in plain decimal notation; +Inf
// serializes as "inf" to match the original report artifact.
func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
