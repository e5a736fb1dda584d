package report

import (
	"sync"

	"deliverect-tools/catalog-importer/internal/models"
)

// Snapshot is the live view of a run while it progresses.
type Snapshot struct {
	RunID                string
	Running              bool
	Done                 bool
	LastEvent            models.EventKind
	TotalCategories      int
	CategoriesProcessed  int
	CategoriesCreated    int
	CategoriesReused     int
	CategoriesFailed     int
	SubcategoriesCreated int
	SubcategoriesReused  int
	SubcategoriesFailed  int
	ProductsAttached     int
	ProductsFailed       int
}

// Reporter accumulates events into live counters and the final report.
// It performs no I/O and is safe for concurrent use.
type Reporter struct {
	mu       sync.RWMutex
	snapshot Snapshot
	report   *models.ImportReport
}

// NewReporter returns an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{report: models.NewImportReport()}
}

// OnEvent implements Observer.
func (r *Reporter) OnEvent(e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.snapshot
	s.LastEvent = e.Kind

	switch e.Kind {
	case models.EventStarted:
		r.snapshot = Snapshot{
			RunID:           e.RunID,
			Running:         true,
			LastEvent:       e.Kind,
			TotalCategories: e.Categories,
		}
		r.report = models.NewImportReport()
		r.report.RunID = e.RunID
		r.report.AccountID = e.AccountID
		r.report.MenuName = e.MenuName
		r.report.StartedAt = e.Time
	case models.EventAccountValidated:
		r.report.AccountName = e.AccountName
	case models.EventMenuResolved:
		r.report.MenuID = e.MenuID
		r.report.MenuReused = e.MenuReused
	case models.EventCategoryCreated:
		s.CategoriesProcessed++
		s.CategoriesCreated++
		r.report.CategoriesCreated++
	case models.EventCategoryReused:
		s.CategoriesProcessed++
		s.CategoriesReused++
		r.report.CategoriesReused++
	case models.EventCategoryFailed:
		s.CategoriesProcessed++
		s.CategoriesFailed++
		r.addAPIError(models.CategoryContext(e.Category), e.Reason)
	case models.EventSubcategoryCreated:
		s.SubcategoriesCreated++
		r.report.SubcategoriesCreated++
	case models.EventSubcategoryReused:
		s.SubcategoriesReused++
		r.report.SubcategoriesReused++
	case models.EventSubcategoryFailed:
		s.SubcategoriesFailed++
		r.addAPIError(models.SubcategoryContext(e.Category, e.Subcategory), e.Reason)
	case models.EventProductAssigned:
		s.ProductsAttached++
		r.report.ProductsAttached++
	case models.EventProductFailed:
		s.ProductsFailed++
		r.addAPIError(models.ProductContext(e.PLU, e.Category, e.Subcategory), e.Reason)
	case models.EventFinished, models.EventCancelled, models.EventRunFailed:
		s.Running = false
		s.Done = true
		if e.Report != nil {
			// the orchestrator's report is authoritative once the run ends
			r.report = e.Report.Clone()
		}
	}
}

func (r *Reporter) addAPIError(label, reason string) {
	r.report.APIErrors = append(r.report.APIErrors, models.APIErrorEntry{Context: label, Message: reason})
}

// Snapshot returns the current live counters.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Report returns a copy of the accumulated report. Before a terminal event it
// reflects the progress so far.
func (r *Reporter) Report() *models.ImportReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.report.Clone()
	if !r.snapshot.Done {
		c.Status = c.ComputeStatus()
	}
	return c
}
