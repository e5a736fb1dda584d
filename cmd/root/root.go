// Package root contains the root command for the application
package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"deliverect-tools/catalog-importer/internal/config"
	"deliverect-tools/catalog-importer/internal/container"
	"deliverect-tools/catalog-importer/internal/logging"
)

// CommonFlags represents the flags that are common to multiple commands
type CommonFlags struct {
	Config  string
	Account string
	Menu    string
	Input   string
	Output  string
	Format  string
}

var (
	// Log is the shared logger instance for commands
	Log logging.Logger = logging.NewLogrusAdapter("info", "text")

	// AppContainer is built from the configuration before any subcommand runs.
	AppContainer *container.Container

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "catalog-importer",
		Short: "A CLI tool to import catalog CSV files into Deliverect menus.",
		Long: `catalog-importer reads a CSV of Category 1, Category 2 and Plu columns and
builds the matching menu in a Deliverect account: it creates the menu, its
categories and subcategories, and attaches the existing products by PLU.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to catalog-importer!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return Setup()
		},
	}

	// Common flags accessible to all commands
	SharedFlags = CommonFlags{}
)

// Init initializes the root command and all flags
func Init() {
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Config, "config", "c", "", "Config file (default: config.yaml in $HOME/.catalog-importer, .catalog-importer or .)")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Account, "account", "a", "", "Deliverect account id")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Menu, "menu", "m", "", "Menu name")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Input, "input", "i", "", "Input CSV file, - for stdin")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Output, "output", "o", "", "Report output file (default: stdout)")
	Cmd.PersistentFlags().StringVar(&SharedFlags.Format, "format", "", "Report format: text, json or yaml")
}

// Setup loads the configuration and builds AppContainer.
// Flags given on the command line win over the configuration.
func Setup() error {
	cfg, err := config.InitializeConfigFile(SharedFlags.Config)
	if err != nil {
		return err
	}
	if SharedFlags.Format != "" {
		cfg.Report.Format = SharedFlags.Format
	}
	if SharedFlags.Output != "" {
		cfg.Report.Output = SharedFlags.Output
	}

	c, err := container.NewContainer(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	AppContainer = c
	Log = c.GetLogger()
	return nil
}

// GetContainer returns AppContainer or an error when Setup has not run.
func GetContainer() (*container.Container, error) {
	if AppContainer == nil {
		return nil, fmt.Errorf("application is not initialized")
	}
	return AppContainer, nil
}
