package main

import (
	"fmt"
	"os"

	"deliverect-tools/catalog-importer/cmd/access"
	"deliverect-tools/catalog-importer/cmd/common"
	"deliverect-tools/catalog-importer/cmd/importcsv"
	"deliverect-tools/catalog-importer/cmd/root"
	"deliverect-tools/catalog-importer/cmd/template"
	"deliverect-tools/catalog-importer/cmd/validate"
	"deliverect-tools/catalog-importer/internal/config"
	"deliverect-tools/catalog-importer/internal/logging"
)

func init() {
	// 1. Load .env first so CLIENT_ID and CLIENT_SECRET are visible to viper
	config.LoadEnv()

	// 2. Loggers created before the configuration is read follow LOG_LEVEL
	logging.SetAllLogLevels(config.LevelFromEnv())

	// 3. Initialize root command
	root.Init()

	// 4. Add all subcommands
	root.Cmd.AddCommand(importcsv.Cmd)
	root.Cmd.AddCommand(validate.Cmd)
	root.Cmd.AddCommand(access.Cmd)
	root.Cmd.AddCommand(template.Cmd)
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(common.ExitCode(err))
	}
}
