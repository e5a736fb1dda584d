package csvparser

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// TemplateRows are the example rows written by WriteTemplate.
var TemplateRows = []catalogCSVRow{
	{Category1: "Drinks", Category2: "Soft Drinks", Plu: "COLA-330"},
	{Category1: "Drinks", Category2: "Soft Drinks", Plu: "LEMONADE-330"},
	{Category1: "Drinks", Category2: "Hot Drinks", Plu: "ESPRESSO"},
	{Category1: "Food", Category2: "Burgers", Plu: "BURGER-CLASSIC"},
	{Category1: "Food", Category2: "Sides", Plu: "FRIES-M"},
}

// WriteTemplate writes a catalog CSV template with the expected headers and
// example rows.
func (p *Parser) WriteTemplate(w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = p.delimiter

	if err := gocsv.MarshalCSV(TemplateRows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("error writing CSV template: %w", err)
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
