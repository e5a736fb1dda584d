package models

import "time"

// EventKind tags a progress event.
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventAccountValidated
	EventMenuResolved
	EventCategoryCreated
	EventCategoryReused
	EventCategoryFailed
	EventSubcategoryCreated
	EventSubcategoryReused
	EventSubcategoryFailed
	EventProductAssigned
	EventProductFailed
	EventFinished
	EventCancelled
	EventRunFailed
)

var eventKindNames = map[EventKind]string{
	EventStarted:            "started",
	EventAccountValidated:   "account_validated",
	EventMenuResolved:       "menu_resolved",
	EventCategoryCreated:    "category_created",
	EventCategoryReused:     "category_reused",
	EventCategoryFailed:     "category_failed",
	EventSubcategoryCreated: "subcategory_created",
	EventSubcategoryReused:  "subcategory_reused",
	EventSubcategoryFailed:  "subcategory_failed",
	EventProductAssigned:    "product_assigned",
	EventProductFailed:      "product_failed",
	EventFinished:           "finished",
	EventCancelled:          "cancelled",
	EventRunFailed:          "run_failed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no event follows this one in a run.
func (k EventKind) Terminal() bool {
	return k == EventFinished || k == EventCancelled || k == EventRunFailed
}

// Event is a progress notification emitted by the orchestrator.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind  EventKind
	RunID string
	Time  time.Time

	AccountID   string
	AccountName string

	MenuName   string
	MenuID     string
	MenuReused bool

	Category    string
	Subcategory string
	PLU         string
	RemoteID    string
	Reason      string

	// Index/Total locate the entity among its siblings (1-based).
	Index int
	Total int

	// Rows/Categories are set on Started.
	Rows       int
	Categories int

	// Report is set on terminal events.
	Report *ImportReport
}
