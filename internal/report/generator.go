package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the values GenerateReport accepts.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// ReportGenerator renders import reports in various formats.
type ReportGenerator struct {
	logger logging.Logger
}

// NewReportGenerator creates a new instance of ReportGenerator.
func NewReportGenerator(logger logging.Logger) *ReportGenerator {
	return &ReportGenerator{
		logger: logger.WithField("component", "ReportGenerator"),
	}
}

// GenerateReport renders report in the given format (text, json or yaml).
func (g *ReportGenerator) GenerateReport(report *models.ImportReport, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return g.generateTextReport(report)
	case FormatJSON:
		return g.generateJSONReport(report)
	case FormatYAML, "yml":
		return g.generateYAMLReport(report)
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

func (g *ReportGenerator) generateJSONReport(report *models.ImportReport) ([]byte, error) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		g.logger.WithError(err).Error("Failed to marshal JSON report")
		return nil, fmt.Errorf("failed to marshal JSON report: %w", err)
	}
	return append(out, '\n'), nil
}

func (g *ReportGenerator) generateYAMLReport(report *models.ImportReport) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		g.logger.WithError(err).Error("Failed to marshal YAML report")
		return nil, fmt.Errorf("failed to marshal YAML report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal YAML report: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *ReportGenerator) generateTextReport(r *models.ImportReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Import %s: %s\n", r.RunID, strings.ToUpper(string(r.Status)))
	if r.Cancelled {
		buf.WriteString("The run was cancelled before it finished.\n")
	}
	if r.FatalError != "" {
		fmt.Fprintf(&buf, "Fatal error: %s\n", r.FatalError)
	}
	buf.WriteString("\n")

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	account := r.AccountID
	if r.AccountName != "" {
		account = fmt.Sprintf("%s (%s)", r.AccountName, r.AccountID)
	}
	menu := r.MenuName
	if r.MenuID != "" {
		state := "created"
		if r.MenuReused {
			state = "reused"
		}
		menu = fmt.Sprintf("%s (%s, %s)", r.MenuName, r.MenuID, state)
	}
	fmt.Fprintf(tw, "Account\t%s\n", account)
	fmt.Fprintf(tw, "Menu\t%s\n", menu)
	fmt.Fprintf(tw, "Categories\t%d created, %d reused\n", r.CategoriesCreated, r.CategoriesReused)
	fmt.Fprintf(tw, "Subcategories\t%d created, %d reused\n", r.SubcategoriesCreated, r.SubcategoriesReused)
	fmt.Fprintf(tw, "Products attached\t%d\n", r.ProductsAttached)
	fmt.Fprintf(tw, "Duplicates skipped\t%d\n", r.DuplicatesSkipped)
	fmt.Fprintf(tw, "Row errors\t%d\n", len(r.RowErrors))
	fmt.Fprintf(tw, "API errors\t%d\n", len(r.APIErrors))
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(tw, "Duration\t%s\n", d.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to render text report: %w", err)
	}

	if len(r.RowErrors) > 0 {
		buf.WriteString("\nRejected rows:\n")
		for _, e := range r.RowErrors {
			fmt.Fprintf(&buf, "  row %d: %s\n", e.Row, e.Message)
		}
	}
	if len(r.Duplicates) > 0 {
		buf.WriteString("\nSkipped duplicates:\n")
		for _, d := range r.Duplicates {
			fmt.Fprintf(&buf, "  row %d: %s / %s / %s\n", d.Row, d.Category, d.Subcategory, d.Plu)
		}
	}
	if len(r.APIErrors) > 0 {
		buf.WriteString("\nFailed operations:\n")
		for _, e := range r.APIErrors {
			fmt.Fprintf(&buf, "  %s: %s\n", e.Context, e.Message)
		}
	}
	return buf.Bytes(), nil
}

// Problem is one inspectable issue of a run, as exported to CSV.
type Problem struct {
	Kind    string `csv:"kind"`
	Row     string `csv:"row"`
	Context string `csv:"context"`
	Message string `csv:"message"`
}

// Problems flattens row errors, duplicates and API errors in that order.
func Problems(r *models.ImportReport) []Problem {
	var out []Problem
	for _, e := range r.RowErrors {
		out = append(out, Problem{Kind: "row_error", Row: strconv.Itoa(e.Row), Message: e.Message})
	}
	for _, d := range r.Duplicates {
		out = append(out, Problem{
			Kind:    "duplicate",
			Row:     strconv.Itoa(d.Row),
			Context: fmt.Sprintf("%s / %s", d.Category, d.Subcategory),
			Message: fmt.Sprintf("PLU %s already listed", d.Plu),
		})
	}
	for _, e := range r.APIErrors {
		out = append(out, Problem{Kind: "api_error", Context: e.Context, Message: e.Message})
	}
	if r.FatalError != "" {
		out = append(out, Problem{Kind: "fatal", Message: r.FatalError})
	}
	return out
}

// WriteProblemsCSV writes every problem of r as CSV with a header row.
// Nothing but the header is written when the run had no problem.
func (g *ReportGenerator) WriteProblemsCSV(w io.Writer, r *models.ImportReport) error {
	problems := Problems(r)
	if len(problems) == 0 {
		_, err := io.WriteString(w, "kind,row,context,message\n")
		return err
	}
	if err := gocsv.Marshal(problems, w); err != nil {
		g.logger.WithError(err).Error("Failed to write problems CSV")
		return fmt.Errorf("failed to write problems CSV: %w", err)
	}
	g.logger.Debug("Wrote problems CSV", logging.F(logging.FieldCount, len(problems)))
	return nil
}
