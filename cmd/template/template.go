// Package template writes an example catalog CSV.
package template

import (
	"bytes"

	"github.com/spf13/cobra"

	"deliverect-tools/catalog-importer/cmd/root"
	"deliverect-tools/catalog-importer/internal/fileutils"
	"deliverect-tools/catalog-importer/internal/logging"
)

// Cmd represents the template command
var Cmd = &cobra.Command{
	Use:   "template",
	Short: "Write an example catalog CSV",
	Long: `Write an example catalog CSV with the Category 1, Category 2 and Plu
columns to --output, or to stdout. The configured delimiter is used.`,
	RunE: templateFunc,
}

func templateFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := c.GetParser().WriteTemplate(&buf); err != nil {
		return err
	}

	output := root.SharedFlags.Output
	if err := fileutils.WriteOutput(output, buf.Bytes(), cmd.OutOrStdout()); err != nil {
		return err
	}
	if output != "" && output != fileutils.Stdio {
		c.GetLogger().Info("Template written", logging.F(logging.FieldOutputFile, output))
	}
	return nil
}
