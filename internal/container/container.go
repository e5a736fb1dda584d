// Package container provides dependency injection for the catalog importer.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"fmt"
	"net/http"

	"deliverect-tools/catalog-importer/internal/config"
	"deliverect-tools/catalog-importer/internal/csvparser"
	"deliverect-tools/catalog-importer/internal/deliverect"
	"deliverect-tools/catalog-importer/internal/importer"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/report"
)

// Container holds all application dependencies and provides methods to access them.
//
// The remote client is only built when credentials are configured, so
// offline commands such as validate work without them.
type Container struct {
	logger    logging.Logger
	config    *config.Config
	parser    *csvparser.Parser
	generator *report.ReportGenerator

	client    *deliverect.Client
	clientErr error
}

// NewContainer creates and wires all application dependencies.
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	logger := logging.NewLogrusAdapterFromLogger(config.ConfigureLoggingFromConfig(cfg))
	return NewContainerWithLogger(cfg, logger, nil)
}

// NewContainerWithLogger is NewContainer with an explicit logger and,
// optionally, the HTTP client the remote client sends through.
func NewContainerWithLogger(cfg *config.Config, logger logging.Logger, httpClient *http.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.CSV.Delimiter == "" {
		return nil, fmt.Errorf("CSV delimiter must be configured")
	}

	c := &Container{
		logger:    logger,
		config:    cfg,
		parser:    csvparser.NewParser(logger, cfg.DelimiterRune()),
		generator: report.NewReportGenerator(logger),
	}

	if err := cfg.ValidateCredentials(); err != nil {
		c.clientErr = err
	} else {
		opts := ClientOptions(cfg)
		opts.HTTPClient = httpClient
		client, err := deliverect.NewClient(opts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Deliverect client: %w", err)
		}
		c.client = client
	}

	logger.Debug("Container initialized",
		logging.F("remote_client", c.client != nil),
		logging.F("concurrency", cfg.Import.Concurrency))

	return c, nil
}

// ClientOptions maps the deliverect section of cfg onto client options.
func ClientOptions(cfg *config.Config) deliverect.Options {
	return deliverect.Options{
		BaseURL:            cfg.Deliverect.BaseURL,
		AuthURL:            cfg.Deliverect.AuthURL,
		Audience:           cfg.Deliverect.Audience,
		ClientID:           cfg.Deliverect.ClientID,
		ClientSecret:       cfg.Deliverect.ClientSecret,
		DeveloperAccountID: cfg.Deliverect.DeveloperAccountID,
		Timeout:            cfg.Timeout(),
		RequestsPerSecond:  float64(cfg.Deliverect.RequestsPerSecond),
		ProductPageSize:    cfg.Deliverect.ProductPageSize,
	}
}

// ImporterOptions maps the import section of cfg onto run options.
func ImporterOptions(cfg *config.Config) importer.Options {
	retry := importer.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Import.MaxAttempts
	retry.InitialBackoff = cfg.InitialBackoff()
	retry.MaxBackoff = cfg.MaxBackoff()
	return importer.Options{
		Concurrency: cfg.Import.Concurrency,
		Retry:       retry,
	}
}

// NewImporter builds an Importer reporting to reporter and to the log.
// It fails when no remote client could be configured.
func (c *Container) NewImporter(reporter *report.Reporter) (*importer.Importer, error) {
	client, err := c.GetClient()
	if err != nil {
		return nil, err
	}
	observer := report.MultiObserver{report.NewLogObserver(c.logger)}
	if reporter != nil {
		observer = append(observer, reporter)
	}
	return importer.New(client, c.parser, observer, c.logger, ImporterOptions(c.config)), nil
}

// GetClient returns the remote client, or why there is none.
func (c *Container) GetClient() (*deliverect.Client, error) {
	if c.client == nil {
		return nil, c.clientErr
	}
	return c.client, nil
}

// GetParser returns the CSV parser.
func (c *Container) GetParser() *csvparser.Parser {
	return c.parser
}

// GetReportGenerator returns the report renderer.
func (c *Container) GetReportGenerator() *report.ReportGenerator {
	return c.generator
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}
