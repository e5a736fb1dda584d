package logging

// Standardized field names for structured logging.
// Every component logs with these keys so an import run can be followed
// across the parser, the remote client and the orchestrator.
const (
	FieldFile        = "file_path"
	FieldAccountID   = "account_id"
	FieldAccountName = "account_name"
	FieldMenu        = "menu"
	FieldMenuID      = "menu_id"
	FieldCategory    = "category"
	FieldSubcategory = "subcategory"
	FieldPLU         = "plu"
	FieldRow         = "row"
	FieldReason      = "reason"
	FieldOperation   = "operation"
	FieldStatus      = "status"
	FieldStatusCode  = "status_code"
	FieldError       = "error"
	FieldDuration    = "duration_ms"
	FieldCount       = "count"
	FieldAttempt     = "attempt"
	FieldRunID       = "run_id"
	FieldState       = "state"
	FieldDelimiter   = "delimiter"
	FieldOutputFile  = "output_file"
)
