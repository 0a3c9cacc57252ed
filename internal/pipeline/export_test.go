package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/growthsignal/attribution-cli/internal/config"
	"github.com/growthsignal/attribution-cli/internal/model"
)

func sampleReport() []model.ReportRow {
	return []model.ReportRow{
		model.ChannelDaily{ChannelName: "Organic", Date: "2024-01-01", Cost: 10, IHC: 0.5, IHCRevenue: 500}.Report(),
		model.ChannelDaily{ChannelName: "Display", Date: "2024-01-01", Cost: 5, IHC: 0, IHCRevenue: 0}.Report(),
		model.ChannelDaily{ChannelName: "Referral", Date: "2024-01-02", Cost: 0, IHC: 0.2, IHCRevenue: 40}.Report(),
	}
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, ExportCSV(sampleReport(), path))

	records := readCSVFile(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, reportHeader, records[0])

	// Organic: CPO = 10/0.5, ROAS = 500/10.
	assert.Equal(t, []string{"Organic", "2024-01-01", "10", "0.5", "500", "20", "50"}, records[1])

	// Zero attributed credit serializes CPO as the "inf" sentinel.
	assert.Equal(t, "inf", records[2][5])
	assert.Equal(t, "0", records[2][6])

	// Zero cost: CPO defined, ROAS zero.
	assert.Equal(t, "0", records[3][2])
	assert.Equal(t, "0", records[3][5])
	assert.Equal(t, "0", records[3][6])
}

func TestExportCSV_LargeValuesPlainDecimal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	rows := []model.ReportRow{
		model.ChannelDaily{ChannelName: "TV", Date: "2024-01-01", Cost: 250000, IHC: 2, IHCRevenue: 1000000}.Report(),
	}
	require.NoError(t, ExportCSV(rows, path))

	records := readCSVFile(t, path)
	require.Len(t, records, 2)

	// No exponent notation for large values.
	assert.Equal(t, "250000", records[1][2])
	assert.Equal(t, "1000000", records[1][4])
	assert.Equal(t, "125000", records[1][5])
	assert.Equal(t, "4", records[1][6])
}

func TestExportCSV_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, ExportCSV(nil, path))

	records := readCSVFile(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, reportHeader, records[0])
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ExportXLSX(sampleReport(), path))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)

	sheet := file.Sheets[0]
	assert.Equal(t, "channel_reporting", sheet.Name)
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "channel_name", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Organic", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "inf", sheet.Rows[2].Cells[5].String())
}

func TestExport_UnknownFormat(t *testing.T) {
	st := newPipelineStore(t)
	err := Export(context.Background(), st, config.ReportConfig{
		OutputPath: filepath.Join(t.TempDir(), "report.bin"),
		Format:     "parquet",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown report format")
}

func TestExport_DefaultsToCSV(t *testing.T) {
	st := newPipelineStore(t)
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, Export(context.Background(), st, config.ReportConfig{OutputPath: path}))

	records := readCSVFile(t, path)
	assert.Equal(t, reportHeader, records[0])
}

func TestBuildReport_OrderPreserved(t *testing.T) {
	st := newPipelineStore(t)
	seedPipelineData(t, st)
	ctx := context.Background()

	require.NoError(t, st.RecomputeChannelDaily(ctx))
	rows, err := BuildReport(ctx, st)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Organic", rows[0].ChannelName)
	assert.Equal(t, "Paid", rows[1].ChannelName)
}
