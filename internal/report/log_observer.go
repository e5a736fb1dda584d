package report

import (
	"fmt"

	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

// LogObserver writes each event as one log line. It is the live log of the CLI.
type LogObserver struct {
	logger logging.Logger
}

// NewLogObserver returns an Observer logging through logger.
func NewLogObserver(logger logging.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func position(e models.Event) string {
	if e.Total == 0 {
		return ""
	}
	return fmt.Sprintf("[%d/%d] ", e.Index, e.Total)
}

// OnEvent implements Observer.
func (o *LogObserver) OnEvent(e models.Event) {
	pos := position(e)
	switch e.Kind {
	case models.EventStarted:
		o.logger.Info("Import started",
			logging.F(logging.FieldRunID, e.RunID),
			logging.F(logging.FieldAccountID, e.AccountID),
			logging.F(logging.FieldMenu, e.MenuName),
			logging.F("rows", e.Rows),
			logging.F("categories", e.Categories))
	case models.EventAccountValidated:
		o.logger.Info("Account access confirmed",
			logging.F(logging.FieldAccountID, e.AccountID),
			logging.F(logging.FieldAccountName, e.AccountName))
	case models.EventMenuResolved:
		msg := "Menu created"
		if e.MenuReused {
			msg = "Reusing existing menu"
		}
		o.logger.Info(msg,
			logging.F(logging.FieldMenu, e.MenuName),
			logging.F(logging.FieldMenuID, e.MenuID))
	case models.EventCategoryCreated, models.EventCategoryReused:
		o.logger.Info(pos+verb(e.Kind)+" category "+e.Category,
			logging.F(logging.FieldCategory, e.Category),
			logging.F("remote_id", e.RemoteID))
	case models.EventCategoryFailed:
		o.logger.Error(pos+"Category "+e.Category+" failed",
			logging.F(logging.FieldCategory, e.Category),
			logging.F(logging.FieldReason, e.Reason))
	case models.EventSubcategoryCreated, models.EventSubcategoryReused:
		o.logger.Info("  "+pos+verb(e.Kind)+" subcategory "+e.Subcategory,
			logging.F(logging.FieldCategory, e.Category),
			logging.F(logging.FieldSubcategory, e.Subcategory),
			logging.F("remote_id", e.RemoteID))
	case models.EventSubcategoryFailed:
		o.logger.Error("  "+pos+"Subcategory "+e.Subcategory+" failed",
			logging.F(logging.FieldCategory, e.Category),
			logging.F(logging.FieldSubcategory, e.Subcategory),
			logging.F(logging.FieldReason, e.Reason))
	case models.EventProductAssigned:
		o.logger.Debug("    "+pos+"Attached "+e.PLU,
			logging.F(logging.FieldSubcategory, e.Subcategory),
			logging.F(logging.FieldPLU, e.PLU))
	case models.EventProductFailed:
		o.logger.Warn("    "+pos+"Product "+e.PLU+" not attached",
			logging.F(logging.FieldCategory, e.Category),
			logging.F(logging.FieldSubcategory, e.Subcategory),
			logging.F(logging.FieldPLU, e.PLU),
			logging.F(logging.FieldReason, e.Reason))
	case models.EventFinished:
		if e.Report != nil {
			e.Report.LogSummary(o.logger)
		}
	case models.EventCancelled:
		o.logger.Warn("Import cancelled, partial results kept")
		if e.Report != nil {
			e.Report.LogSummary(o.logger)
		}
	case models.EventRunFailed:
		o.logger.Error("Import failed", logging.F(logging.FieldReason, e.Reason))
	}
}

func verb(k models.EventKind) string {
	switch k {
	case models.EventCategoryReused, models.EventSubcategoryReused:
		return "Reused"
	default:
		return "Created"
	}
}
