// Package catalog folds validated CSV rows into the hierarchical catalog
// (category -> subcategory -> PLU set) that an import run creates remotely.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"deliverect-tools/catalog-importer/internal/models"
)

// ErrEmptyMenuName is returned when no menu name is given.
var ErrEmptyMenuName = errors.New("menu name must not be empty")

// Build folds rows into a Catalog named menuName.
//
// Categories and subcategories are matched by exact name and keep the order in
// which they were first seen. A PLU already present in its subcategory is not
// inserted again; it is counted in DuplicatesSkipped and listed in Duplicates.
// Build does no I/O and always yields the same Catalog for the same rows.
func Build(menuName string, rows []models.CsvRow) (*models.Catalog, error) {
	menuName = strings.TrimSpace(menuName)
	if menuName == "" {
		return nil, ErrEmptyMenuName
	}

	cat := models.NewCatalog(menuName)
	for _, row := range rows {
		category, _ := cat.FindOrAddCategory(row.Category1)
		sub, _ := category.FindOrAddSubcategory(row.Category2)
		if !sub.AddPLU(row.Plu) {
			cat.RecordDuplicate(models.Duplicate{
				Row:         row.Row,
				Category:    row.Category1,
				Subcategory: row.Category2,
				Plu:         row.Plu,
			})
		}
	}
	return cat, nil
}

// Describe writes an indented outline of c.
func Describe(w io.Writer, c *models.Catalog) error {
	stats := c.Stats()
	if _, err := fmt.Fprintf(w, "%s (%d categories, %d subcategories, %d products, %d duplicates skipped)\n",
		c.MenuName, stats.Categories, stats.Subcategories, stats.Products, c.DuplicatesSkipped); err != nil {
		return err
	}
	for _, category := range c.Categories {
		if _, err := fmt.Fprintf(w, "  %s\n", category.Name); err != nil {
			return err
		}
		for _, sub := range category.Subcategories {
			if _, err := fmt.Fprintf(w, "    %s: %s\n", sub.Name, strings.Join(sub.PLUs, ", ")); err != nil {
				return err
			}
		}
	}
	return nil
}
