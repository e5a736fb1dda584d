// Package csvparser reads the catalog CSV (Category 1, Category 2, Plu) and
// turns it into validated rows. Bad rows are reported individually; only a
// missing required header aborts the parse.
package csvparser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Required column names, matched case-sensitively.
const (
	ColumnCategory1 = "Category 1"
	ColumnCategory2 = "Category 2"
	ColumnPlu       = "Plu"
)

// RequiredColumns lists the header columns every catalog CSV must carry.
var RequiredColumns = []string{ColumnCategory1, ColumnCategory2, ColumnPlu}

// catalogCSVRow maps one CSV record; extra columns are ignored.
type catalogCSVRow struct {
	Category1 string `csv:"Category 1"`
	Category2 string `csv:"Category 2"`
	Plu       string `csv:"Plu"`
}

// Parser parses catalog CSV files.
type Parser struct {
	logger    logging.Logger
	delimiter rune
}

// NewParser creates a Parser. A zero delimiter means comma.
func NewParser(logger logging.Logger, delimiter rune) *Parser {
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}
	if delimiter == 0 {
		delimiter = ','
	}
	return &Parser{logger: logger, delimiter: delimiter}
}

// ParseFile parses the CSV file at path.
func (p *Parser) ParseFile(path string) ([]models.CsvRow, []importerror.ParseError, error) {
	p.logger.Info("Reading catalog CSV file", logging.F(logging.FieldFile, path))

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			p.logger.WithError(err).Warn("Failed to close file")
		}
	}()

	return p.Parse(file)
}

// ParseBytes parses raw CSV content.
func (p *Parser) ParseBytes(raw []byte) ([]models.CsvRow, []importerror.ParseError, error) {
	return p.Parse(bytes.NewReader(raw))
}

// Parse reads the whole input. It returns the valid rows in input order, one
// ParseError per rejected row, and a non-nil error only when the input cannot
// be read or a required header column is absent (*importerror.HeaderError).
func (p *Parser) Parse(r io.Reader) ([]models.CsvRow, []importerror.ParseError, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.Comma = p.delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, &importerror.HeaderError{Missing: append([]string{}, RequiredColumns...)}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error reading CSV header: %w", err)
	}
	header = normalizeHeader(header)

	if missing := missingColumns(header); len(missing) > 0 {
		p.logger.Warn("Catalog CSV is missing required columns",
			logging.F("missing", strings.Join(missing, ", ")),
			logging.F("found", strings.Join(header, ", ")))
		return nil, nil, &importerror.HeaderError{Missing: missing, Found: header}
	}

	records := [][]string{header}
	var lines []int
	var parseErrors []importerror.ParseError

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				parseErrors = append(parseErrors, importerror.ParseError{
					Row:    csvErr.Line,
					Reason: fmt.Sprintf("malformed record: %v", csvErr.Err),
				})
				continue
			}
			return nil, nil, fmt.Errorf("error reading CSV record: %w", err)
		}
		line, _ := reader.FieldPos(0)
		lines = append(lines, line)
		records = append(records, padRecord(record, len(header)))
	}

	if len(records) == 1 {
		p.logger.Info("Catalog CSV has no data rows", logging.F("rejected", len(parseErrors)))
		return []models.CsvRow{}, parseErrors, nil
	}

	var parsed []catalogCSVRow
	if err := gocsv.UnmarshalCSV(&recordReader{records: records}, &parsed); err != nil {
		return nil, nil, fmt.Errorf("error mapping CSV records: %w", err)
	}

	rows := make([]models.CsvRow, 0, len(parsed))
	for i, raw := range parsed {
		row := models.CsvRow{
			Row:       lines[i],
			Category1: strings.TrimSpace(raw.Category1),
			Category2: strings.TrimSpace(raw.Category2),
			Plu:       strings.TrimSpace(raw.Plu),
		}
		if reason := validateRow(row); reason != "" {
			parseErrors = append(parseErrors, importerror.ParseError{Row: row.Row, Reason: reason})
			p.logger.Debug("Rejected CSV row",
				logging.F(logging.FieldRow, row.Row),
				logging.F(logging.FieldReason, reason))
			continue
		}
		rows = append(rows, row)
	}

	sortParseErrors(parseErrors)

	p.logger.Info("Parsed catalog CSV",
		logging.F(logging.FieldCount, len(rows)),
		logging.F("rejected", len(parseErrors)))

	return rows, parseErrors, nil
}

func validateRow(row models.CsvRow) string {
	var empty []string
	if row.Category1 == "" {
		empty = append(empty, ColumnCategory1)
	}
	if row.Category2 == "" {
		empty = append(empty, ColumnCategory2)
	}
	if row.Plu == "" {
		empty = append(empty, ColumnPlu)
	}
	if len(empty) == 0 {
		return ""
	}
	return "empty " + strings.Join(empty, ", ")
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

func padRecord(record []string, n int) []string {
	if len(record) >= n {
		return record
	}
	padded := make([]string, n)
	copy(padded, record)
	return padded
}

func sortParseErrors(errs []importerror.ParseError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Row < errs[j].Row })
}

// recordReader replays already-read records to gocsv.
type recordReader struct {
	records [][]string
	pos     int
}

func (r *recordReader) Read() ([]string, error) {
	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

func (r *recordReader) ReadAll() ([][]string, error) {
	rest := r.records[r.pos:]
	r.pos = len(r.records)
	return rest, nil
}
