package common_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverect-tools/catalog-importer/cmd/common"
	"deliverect-tools/catalog-importer/internal/config"
	"deliverect-tools/catalog-importer/internal/container"
	"deliverect-tools/catalog-importer/internal/importer"
	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

func newContainer(t *testing.T, format, output, errorsCSV string) *container.Container {
	t.Helper()
	cfg := &config.Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.CSV.Delimiter = ","
	cfg.Report.Format = format
	cfg.Report.Output = output
	cfg.Report.ErrorsCSV = errorsCSV
	c, err := container.NewContainerWithLogger(cfg, logging.NewMockLogger(), nil)
	require.NoError(t, err)
	return c
}

func partialReport() *models.ImportReport {
	r := models.NewImportReport()
	r.RunID = "run-1"
	r.AccountID = "acc-1"
	r.MenuName = "Summer Menu"
	r.ProductsAttached = 2
	r.RowErrors = []models.RowError{{Row: 4, Message: "empty Plu"}}
	r.Status = r.ComputeStatus()
	return r
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, common.ExitOK},
		{"usage", &common.UsageError{Msg: "--account is required"}, common.ExitUsage},
		{"partial", &common.StatusError{Status: models.StatusPartialSuccess}, common.ExitPartial},
		{"failed", &common.StatusError{Status: models.StatusFailed}, common.ExitFailure},
		{"wrapped partial", errors.Join(errors.New("x"), &common.StatusError{Status: models.StatusPartialSuccess}), common.ExitPartial},
		{"other", errors.New("boom"), common.ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, common.ExitCode(tt.err))
		})
	}
}

func TestRequireFlag(t *testing.T) {
	assert.NoError(t, common.RequireFlag("account", "acc-1"))

	err := common.RequireFlag("account", "")
	var usage *common.UsageError
	require.ErrorAs(t, err, &usage)
	assert.Equal(t, "--account is required", usage.Error())
}

func TestReadCSV(t *testing.T) {
	logger := logging.NewMockLogger()

	_, err := common.ReadCSV("", nil, logger)
	assert.EqualError(t, err, "--input is required")

	data, err := common.ReadCSV("-", strings.NewReader("Category 1,Category 2,Plu\n"), logger)
	require.NoError(t, err)
	assert.Equal(t, "Category 1,Category 2,Plu\n", string(data))
	assert.True(t, logger.HasEntry("DEBUG", "Read catalog CSV"))
}

func TestWriteReport_Stdout(t *testing.T) {
	c := newContainer(t, "text", "", "")

	var out bytes.Buffer
	require.NoError(t, common.WriteReport(c, partialReport(), &out))
	assert.Contains(t, out.String(), "Import run-1: PARTIAL_SUCCESS")
}

func TestWriteReport_FilesAndProblems(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "out", "report.json")
	problemsPath := filepath.Join(dir, "out", "problems.csv")
	c := newContainer(t, "json", reportPath, problemsPath)

	var out bytes.Buffer
	require.NoError(t, common.WriteReport(c, partialReport(), &out))
	assert.Empty(t, out.String())

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "partial_success"`)

	problems, err := os.ReadFile(problemsPath)
	require.NoError(t, err)
	assert.Equal(t, "kind,row,context,message\nrow_error,4,,empty Plu\n", string(problems))
}

func TestWriteReport_UnsupportedFormat(t *testing.T) {
	c := newContainer(t, "xml", "", "")
	err := common.WriteReport(c, partialReport(), &bytes.Buffer{})
	assert.EqualError(t, err, "unsupported report format: xml")
}

func TestResultError(t *testing.T) {
	success := models.NewImportReport()
	success.Status = models.StatusSuccess
	assert.NoError(t, common.ResultError(success, nil))

	err := common.ResultError(partialReport(), nil)
	var status *common.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, models.StatusPartialSuccess, status.Status)

	cancelled := partialReport()
	err = common.ResultError(cancelled, importerror.ErrCancelled)
	assert.ErrorIs(t, err, importerror.ErrCancelled)
	assert.Equal(t, common.ExitPartial, common.ExitCode(err))

	assert.ErrorIs(t, common.ResultError(nil, importer.ErrRunInProgress), importer.ErrRunInProgress)
}
