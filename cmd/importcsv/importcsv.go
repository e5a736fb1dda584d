// Package importcsv implements the import command, which builds a menu in a
// Deliverect account from a catalog CSV.
package importcsv

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deliverect-tools/catalog-importer/cmd/common"
	"deliverect-tools/catalog-importer/cmd/root"
	"deliverect-tools/catalog-importer/internal/importer"
	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/report"
)

var (
	concurrency int
	errorsCSV   string
)

// Cmd represents the import command
var Cmd = &cobra.Command{
	Use:   "import",
	Short: "Import a catalog CSV into a Deliverect menu",
	Long: `Import a catalog CSV into a Deliverect menu.

The account is checked first. The menu is reused when one with the same name
exists, otherwise it is created. Categories and subcategories are created or
reused by name and every PLU is attached to its subcategory. A failed category,
subcategory or product does not stop the rest of the import.

Interrupting the command (Ctrl+C) lets the request in flight finish and reports
what was done so far.`,
	Example: `  catalog-importer import -a 5f1e0c... -m "Summer Menu" -i catalog.csv
  catalog-importer import -a 5f1e0c... -m "Summer Menu" -i catalog.csv --format json -o report.json --errors-csv problems.csv`,
	RunE: importFunc,
}

func init() {
	Cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of categories imported in parallel (default from config)")
	Cmd.Flags().StringVar(&errorsCSV, "errors-csv", "", "Write rejected rows, duplicates and failed operations to this CSV file")
}

func importFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	log := c.GetLogger()

	if err := common.RequireFlag("account", root.SharedFlags.Account); err != nil {
		return err
	}
	if err := common.RequireFlag("menu", root.SharedFlags.Menu); err != nil {
		return err
	}
	data, err := common.ReadCSV(root.SharedFlags.Input, cmd.InOrStdin(), log)
	if err != nil {
		return err
	}

	cfg := c.GetConfig()
	if cmd.Flags().Changed("concurrency") {
		if concurrency < 1 {
			return &common.UsageError{Msg: "--concurrency must be at least 1"}
		}
		cfg.Import.Concurrency = concurrency
	}
	if errorsCSV != "" {
		cfg.Report.ErrorsCSV = errorsCSV
	}

	reporter := report.NewReporter()
	imp, err := c.NewImporter(reporter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting import",
		logging.F(logging.FieldAccountID, root.SharedFlags.Account),
		logging.F(logging.FieldMenu, root.SharedFlags.Menu),
		logging.F(logging.FieldFile, root.SharedFlags.Input))

	result, runErr := imp.Run(ctx, importer.Request{
		AccountID: root.SharedFlags.Account,
		MenuName:  root.SharedFlags.Menu,
		CSV:       data,
	})
	if result == nil {
		return runErr
	}
	if errors.Is(runErr, importerror.ErrCancelled) {
		log.Warn("Import interrupted, reporting partial results")
	}

	if err := common.WriteReport(c, result, cmd.OutOrStdout()); err != nil {
		return err
	}
	return common.ResultError(result, runErr)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
