package models

import (
	"fmt"
	"time"

	"deliverect-tools/catalog-importer/internal/logging"
)

// ImportStatus is the overall outcome of an import run.
type ImportStatus string

const (
	StatusSuccess        ImportStatus = "success"
	StatusPartialSuccess ImportStatus = "partial_success"
	StatusFailed         ImportStatus = "failed"
)

// RowError is a rejected CSV row.
type RowError struct {
	Row     int    `json:"row" yaml:"row"`
	Message string `json:"message" yaml:"message"`
}

// APIErrorEntry is a failed remote operation. Context names the entity,
// e.g. `category "Drinks"` or `product "PLU100" in "Drinks" / "Soda"`.
type APIErrorEntry struct {
	Context string `json:"context" yaml:"context"`
	Message string `json:"message" yaml:"message"`
}

// ImportReport accumulates the outcome of one import run.
type ImportReport struct {
	RunID       string `json:"run_id" yaml:"run_id"`
	AccountID   string `json:"account_id" yaml:"account_id"`
	AccountName string `json:"account_name,omitempty" yaml:"account_name,omitempty"`
	MenuName    string `json:"menu_name" yaml:"menu_name"`
	MenuID      string `json:"menu_id,omitempty" yaml:"menu_id,omitempty"`
	MenuReused  bool   `json:"menu_reused" yaml:"menu_reused"`

	CategoriesCreated    int `json:"categories_created" yaml:"categories_created"`
	CategoriesReused     int `json:"categories_reused" yaml:"categories_reused"`
	SubcategoriesCreated int `json:"subcategories_created" yaml:"subcategories_created"`
	SubcategoriesReused  int `json:"subcategories_reused" yaml:"subcategories_reused"`
	ProductsAttached     int `json:"products_attached" yaml:"products_attached"`
	DuplicatesSkipped    int `json:"duplicates_skipped" yaml:"duplicates_skipped"`

	Duplicates []Duplicate     `json:"duplicates" yaml:"duplicates"`
	RowErrors  []RowError      `json:"row_errors" yaml:"row_errors"`
	APIErrors  []APIErrorEntry `json:"api_errors" yaml:"api_errors"`
	FatalError string          `json:"fatal_error,omitempty" yaml:"fatal_error,omitempty"`
	Status     ImportStatus    `json:"status" yaml:"status"`
	Cancelled  bool            `json:"cancelled" yaml:"cancelled"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
}

// NewImportReport returns an empty report with non-nil lists.
func NewImportReport() *ImportReport {
	return &ImportReport{
		Duplicates: []Duplicate{},
		RowErrors:  []RowError{},
		APIErrors:  []APIErrorEntry{},
	}
}

// ErrorCount is the number of individually recorded problems.
func (r *ImportReport) ErrorCount() int {
	n := len(r.RowErrors) + len(r.APIErrors)
	if r.FatalError != "" {
		n++
	}
	return n
}

// ComputeStatus derives the status from the counters:
// no errors and not cancelled is a success, anything attached is a partial
// success, otherwise the run failed.
func (r *ImportReport) ComputeStatus() ImportStatus {
	switch {
	case r.FatalError == "" && r.ErrorCount() == 0 && !r.Cancelled:
		return StatusSuccess
	case r.ProductsAttached > 0:
		return StatusPartialSuccess
	default:
		return StatusFailed
	}
}

// Clone returns a deep copy of the report.
func (r *ImportReport) Clone() *ImportReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Duplicates = append([]Duplicate{}, r.Duplicates...)
	c.RowErrors = append([]RowError{}, r.RowErrors...)
	c.APIErrors = append([]APIErrorEntry{}, r.APIErrors...)
	return &c
}

// Duration is the wall time of the run, zero while it is still running.
func (r *ImportReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// LogSummary logs the report counters.
func (r *ImportReport) LogSummary(logger logging.Logger) {
	if logger == nil {
		return
	}

	logger.Info("Import summary",
		logging.F(logging.FieldRunID, r.RunID),
		logging.F(logging.FieldAccountID, r.AccountID),
		logging.F(logging.FieldMenu, r.MenuName),
		logging.F(logging.FieldStatus, string(r.Status)),
		logging.F("categories_created", r.CategoriesCreated),
		logging.F("subcategories_created", r.SubcategoriesCreated),
		logging.F("products_attached", r.ProductsAttached),
		logging.F("duplicates_skipped", r.DuplicatesSkipped),
		logging.F("row_errors", len(r.RowErrors)),
		logging.F("api_errors", len(r.APIErrors)),
		logging.F(logging.FieldDuration, r.Duration().Milliseconds()),
	)
}

// CategoryContext labels an API error raised while creating a category.
func CategoryContext(category string) string {
	return fmt.Sprintf("category %q", category)
}

// SubcategoryContext labels an API error raised while creating a subcategory.
func SubcategoryContext(category, subcategory string) string {
	return fmt.Sprintf("subcategory %q / %q", category, subcategory)
}

// ProductContext labels an API error raised while attaching a product.
func ProductContext(plu, category, subcategory string) string {
	return fmt.Sprintf("product %q in %q / %q", plu, category, subcategory)
}
