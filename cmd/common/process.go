// Package common contains shared functionality for command handlers
package common

import (
	"errors"
	"fmt"
	"io"

	"deliverect-tools/catalog-importer/internal/container"
	"deliverect-tools/catalog-importer/internal/fileutils"
	"deliverect-tools/catalog-importer/internal/importer"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 2
	ExitUsage   = 64
)

// UsageError marks a missing or invalid command line argument.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// StatusError is returned by commands whose import did not fully succeed.
type StatusError struct {
	Status models.ImportStatus
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import finished with status %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("import finished with status %s", e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// ExitCode maps a command error onto the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	var status *StatusError
	if errors.As(err, &status) && status.Status == models.StatusPartialSuccess {
		return ExitPartial
	}
	return ExitFailure
}

// RequireFlag fails with a UsageError when value is empty.
func RequireFlag(name, value string) error {
	if value == "" {
		return &UsageError{Msg: fmt.Sprintf("--%s is required", name)}
	}
	return nil
}

// ReadCSV reads the CSV named by --input, or stdin for "-".
func ReadCSV(path string, stdin io.Reader, log logging.Logger) ([]byte, error) {
	if err := RequireFlag("input", path); err != nil {
		return nil, err
	}
	data, err := fileutils.ReadInput(path, stdin)
	if err != nil {
		return nil, err
	}
	log.Debug("Read catalog CSV",
		logging.F(logging.FieldFile, path),
		logging.F("bytes", len(data)))
	return data, nil
}

// WriteReport renders r in the configured format to the configured output,
// or stdout, and exports its problems when an errors CSV is configured.
func WriteReport(c *container.Container, r *models.ImportReport, stdout io.Writer) error {
	cfg := c.GetConfig()
	generator := c.GetReportGenerator()

	data, err := generator.GenerateReport(r, cfg.Report.Format)
	if err != nil {
		return err
	}
	if err := fileutils.WriteOutput(cfg.Report.Output, data, stdout); err != nil {
		return err
	}
	if cfg.Report.Output != "" && cfg.Report.Output != fileutils.Stdio {
		c.GetLogger().Info("Report written", logging.F(logging.FieldOutputFile, cfg.Report.Output))
	}

	if cfg.Report.ErrorsCSV == "" {
		return nil
	}
	file, err := fileutils.CreateFile(cfg.Report.ErrorsCSV)
	if err != nil {
		return err
	}
	if err := generator.WriteProblemsCSV(file, r); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", cfg.Report.ErrorsCSV, err)
	}
	c.GetLogger().Info("Problems written", logging.F(logging.FieldOutputFile, cfg.Report.ErrorsCSV))
	return nil
}

// ResultError turns the outcome of a run into the command's error.
func ResultError(r *models.ImportReport, runErr error) error {
	if r == nil {
		return runErr
	}
	if errors.Is(runErr, importer.ErrRunInProgress) {
		return runErr
	}
	if r.Status == models.StatusSuccess && runErr == nil {
		return nil
	}
	return &StatusError{Status: r.Status, Err: runErr}
}
