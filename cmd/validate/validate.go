// Package validate implements the offline dry run of an import.
package validate

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"deliverect-tools/catalog-importer/cmd/common"
	"deliverect-tools/catalog-importer/cmd/root"
	"deliverect-tools/catalog-importer/internal/catalog"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

// Cmd represents the validate command
var Cmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a catalog CSV without contacting Deliverect",
	Long: `Check a catalog CSV without contacting Deliverect.

The file is parsed and folded into the menu that import would create. Rejected
rows and duplicate PLUs are listed, followed by an outline of the menu.`,
	RunE: validateFunc,
}

func validateFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	log := c.GetLogger()

	data, err := common.ReadCSV(root.SharedFlags.Input, cmd.InOrStdin(), log)
	if err != nil {
		return err
	}

	rows, rowErrs, err := c.GetParser().ParseBytes(data)
	if err != nil {
		return err
	}

	menu := strings.TrimSpace(root.SharedFlags.Menu)
	if menu == "" {
		menu = "(unnamed menu)"
	}
	cat, err := catalog.Build(menu, rows)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, pe := range rowErrs {
		fmt.Fprintf(out, "rejected %s\n", pe.Error())
	}
	for _, d := range cat.Duplicates {
		fmt.Fprintf(out, "duplicate row %d: %s / %s / %s\n", d.Row, d.Category, d.Subcategory, d.Plu)
	}
	if err := catalog.Describe(out, cat); err != nil {
		return err
	}

	log.Info("Validation finished",
		logging.F(logging.FieldCount, len(rows)),
		logging.F("rejected", len(rowErrs)),
		logging.F("duplicates", cat.DuplicatesSkipped))

	if len(rows) == 0 {
		return &common.StatusError{Status: models.StatusFailed, Err: fmt.Errorf("CSV contains no valid rows")}
	}
	if len(rowErrs) > 0 {
		return &common.StatusError{Status: models.StatusPartialSuccess, Err: fmt.Errorf("%d rows rejected", len(rowErrs))}
	}
	return nil
}
