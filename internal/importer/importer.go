// Package importer drives a catalog import run against the remote API.
//
// A run validates the account, resolves the menu, then walks the catalog
// tree creating categories, subcategories and product links. Account and menu
// failures are fatal. Everything below the menu is contained: a failed node
// skips its own subtree and the run moves on to the next sibling.
package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deliverect-tools/catalog-importer/internal/catalog"
	"deliverect-tools/catalog-importer/internal/csvparser"
	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
	"deliverect-tools/catalog-importer/internal/report"
)

var (
	// ErrRunInProgress is returned when Run is called while another run is active.
	ErrRunInProgress = errors.New("an import run is already in progress")
	// ErrNoRows is returned when the CSV holds no valid row to import.
	ErrNoRows = errors.New("CSV contains no valid rows")
)

// CatalogClient is the remote API as seen by the importer.
type CatalogClient interface {
	ValidateAccountAccess(ctx context.Context, accountID string) (models.Account, error)
	ListCatalogs(ctx context.Context, accountID string) ([]models.CatalogSummary, error)
	CreateCatalog(ctx context.Context, accountID, name string) (models.CatalogSummary, error)
	ListCategories(ctx context.Context, accountID, menuID string) ([]models.RemoteCategory, error)
	CreateCategory(ctx context.Context, accountID, menuID, name, parentID string) (models.RemoteCategory, error)
	AssignProduct(ctx context.Context, accountID, subcategoryID, plu string) (models.RemoteProduct, error)
}

// Options tunes a run.
type Options struct {
	// Concurrency is the number of categories imported in parallel; 1 keeps
	// every remote call sequential.
	Concurrency int
	Retry       RetryPolicy
	// CallTimeout bounds each remote call on top of the client's own timeout.
	CallTimeout time.Duration
}

// Request is one import.
type Request struct {
	AccountID string
	MenuName  string
	CSV       []byte
}

// Importer runs imports one at a time and exposes the current state.
type Importer struct {
	client   CatalogClient
	parser   *csvparser.Parser
	observer report.Observer
	logger   logging.Logger
	opts     Options

	newRunID func() string
	now      func() time.Time

	mu      sync.RWMutex
	state   State
	running bool
}

// New creates an Importer. A nil observer discards events.
func New(client CatalogClient, parser *csvparser.Parser, observer report.Observer, logger logging.Logger, opts Options) *Importer {
	if observer == nil {
		observer = report.Nop
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Importer{
		client:   client,
		parser:   parser,
		observer: observer,
		logger:   logger,
		opts:     opts,
		newRunID: uuid.NewString,
		now:      time.Now,
	}
}

// State returns the phase of the current or last run.
func (im *Importer) State() State {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.state
}

func (im *Importer) setState(s State) {
	im.mu.Lock()
	im.state = s
	im.mu.Unlock()
}

func (im *Importer) acquire() bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running {
		return false
	}
	im.running = true
	im.state = StateIdle
	return true
}

func (im *Importer) release() {
	im.mu.Lock()
	im.running = false
	im.mu.Unlock()
}

// Run parses req.CSV, builds the catalog and imports it. The report is
// returned in every case; the error is non-nil when the run failed fatally
// (the report then has FatalError set) or was cancelled (ErrCancelled).
func (im *Importer) Run(ctx context.Context, req Request) (*models.ImportReport, error) {
	if !im.acquire() {
		return nil, ErrRunInProgress
	}
	defer im.release()

	r := im.newRun(req.AccountID, strings.TrimSpace(req.MenuName))

	rows, rowErrs, err := im.parser.ParseBytes(req.CSV)
	for _, pe := range rowErrs {
		r.report.RowErrors = append(r.report.RowErrors, models.RowError{Row: pe.Row, Message: pe.Reason})
	}
	if err != nil {
		r.start(len(rows), 0)
		return r.fail(err)
	}

	cat, err := catalog.Build(r.report.MenuName, rows)
	if err != nil {
		r.start(len(rows), 0)
		return r.fail(err)
	}
	return r.execute(ctx, cat, len(rows))
}

// RunCatalog imports an already built catalog.
func (im *Importer) RunCatalog(ctx context.Context, accountID string, cat *models.Catalog) (*models.ImportReport, error) {
	if !im.acquire() {
		return nil, ErrRunInProgress
	}
	defer im.release()

	r := im.newRun(accountID, strings.TrimSpace(cat.MenuName))
	if r.report.MenuName == "" {
		r.start(0, len(cat.Categories))
		return r.fail(catalog.ErrEmptyMenuName)
	}
	return r.execute(ctx, cat, cat.Stats().Products)
}

func (im *Importer) newRun(accountID, menuName string) *run {
	rep := models.NewImportReport()
	rep.RunID = im.newRunID()
	rep.AccountID = strings.TrimSpace(accountID)
	rep.MenuName = menuName
	rep.StartedAt = im.now()

	return &run{
		im:     im,
		report: rep,
		logger: im.logger.WithFields(
			logging.F(logging.FieldRunID, rep.RunID),
			logging.F(logging.FieldAccountID, rep.AccountID),
		),
	}
}

// run holds the mutable state of one import.
type run struct {
	im     *Importer
	report *models.ImportReport
	logger logging.Logger

	emitMu sync.Mutex

	menuID string
	// remote is the listing of an existing menu; nil when the menu was just created.
	remote *remoteIndex
}

func (r *run) emit(e models.Event) {
	e.RunID = r.report.RunID
	e.Time = r.im.now()
	if e.AccountID == "" {
		e.AccountID = r.report.AccountID
	}
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.im.observer.OnEvent(e)
}

func (r *run) start(rows, categories int) {
	r.emit(models.Event{
		Kind:       models.EventStarted,
		MenuName:   r.report.MenuName,
		Rows:       rows,
		Categories: categories,
	})
}

func (r *run) fail(err error) (*models.ImportReport, error) {
	r.report.FatalError = err.Error()
	r.report.FinishedAt = r.im.now()
	r.report.Status = r.report.ComputeStatus()
	r.im.setState(StateFailed)
	r.logger.WithError(err).Error("Import failed")
	r.emit(models.Event{Kind: models.EventRunFailed, Reason: err.Error(), Report: r.report.Clone()})
	return r.report, err
}

func (r *run) cancel() (*models.ImportReport, error) {
	r.report.Cancelled = true
	r.report.FinishedAt = r.im.now()
	r.report.Status = r.report.ComputeStatus()
	r.im.setState(StateCancelled)
	r.logger.Warn("Import cancelled")
	r.emit(models.Event{Kind: models.EventCancelled, Report: r.report.Clone()})
	return r.report, importerror.ErrCancelled
}

func (r *run) complete() (*models.ImportReport, error) {
	r.report.FinishedAt = r.im.now()
	r.report.Status = r.report.ComputeStatus()
	r.im.setState(StateCompleted)
	r.emit(models.Event{Kind: models.EventFinished, Report: r.report.Clone()})
	return r.report, nil
}

// execute walks the state machine for a built catalog.
func (r *run) execute(ctx context.Context, cat *models.Catalog, rows int) (*models.ImportReport, error) {
	r.report.DuplicatesSkipped = cat.DuplicatesSkipped
	r.report.Duplicates = append(r.report.Duplicates, cat.Duplicates...)
	r.start(rows, len(cat.Categories))

	if r.report.AccountID == "" {
		return r.fail(&importerror.AccessError{
			Kind: importerror.AccessNotFound,
			Err:  errors.New("account id is required"),
		})
	}
	if len(cat.Categories) == 0 {
		return r.fail(ErrNoRows)
	}

	r.im.setState(StateValidatingAccount)
	var account models.Account
	err := r.call(ctx, "validate account", func(ctx context.Context) error {
		var err error
		account, err = r.im.client.ValidateAccountAccess(ctx, r.report.AccountID)
		return err
	})
	if errors.Is(err, importerror.ErrCancelled) {
		return r.cancel()
	}
	if err != nil {
		return r.fail(err)
	}
	r.report.AccountName = account.Name
	r.logger.Info("Account validated", logging.F(logging.FieldAccountName, account.Name))
	r.emit(models.Event{Kind: models.EventAccountValidated, AccountName: account.Name})

	r.im.setState(StateResolvingMenu)
	if err := r.resolveMenu(ctx); err != nil {
		if errors.Is(err, importerror.ErrCancelled) {
			return r.cancel()
		}
		return r.fail(err)
	}

	r.importCategories(ctx, cat.Categories)
	if ctx.Err() != nil {
		return r.cancel()
	}
	return r.complete()
}

// resolveMenu reuses a menu with the exact same name or creates it.
func (r *run) resolveMenu(ctx context.Context) error {
	var menus []models.CatalogSummary
	err := r.call(ctx, "list catalogs", func(ctx context.Context) error {
		var err error
		menus, err = r.im.client.ListCatalogs(ctx, r.report.AccountID)
		return err
	})
	if err != nil {
		return err
	}

	for _, m := range menus {
		if m.Name == r.report.MenuName {
			r.menuID = m.ID
			break
		}
	}

	if r.menuID != "" {
		var existing []models.RemoteCategory
		err := r.call(ctx, "list categories", func(ctx context.Context) error {
			var err error
			existing, err = r.im.client.ListCategories(ctx, r.report.AccountID, r.menuID)
			return err
		})
		if err != nil {
			return err
		}
		r.remote = newRemoteIndex(existing)
		r.report.MenuReused = true
	} else {
		var created models.CatalogSummary
		err := r.call(ctx, "create catalog", func(ctx context.Context) error {
			var err error
			created, err = r.im.client.CreateCatalog(ctx, r.report.AccountID, r.report.MenuName)
			return err
		})
		if err != nil {
			return err
		}
		r.menuID = created.ID
	}

	r.report.MenuID = r.menuID
	r.logger.Info("Menu resolved",
		logging.F(logging.FieldMenu, r.report.MenuName),
		logging.F(logging.FieldMenuID, r.menuID),
		logging.F("reused", r.report.MenuReused))
	r.emit(models.Event{
		Kind:       models.EventMenuResolved,
		MenuName:   r.report.MenuName,
		MenuID:     r.menuID,
		MenuReused: r.report.MenuReused,
	})
	return nil
}

// call runs fn under the retry policy. fn gets a context that survives the
// caller's cancellation so an operation already started can finish; once ctx
// is done no new attempt starts and ErrCancelled is returned.
func (r *run) call(ctx context.Context, op string, fn func(context.Context) error) error {
	policy := r.im.opts.Retry.normalized()

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return importerror.ErrCancelled
		}

		err := r.attempt(ctx, op, fn)
		if err == nil {
			return nil
		}
		if !importerror.IsRetryable(err) || attempt+1 >= policy.MaxAttempts {
			return err
		}

		delay := policy.Backoff(attempt, importerror.RetryAfter(err))
		r.logger.WithError(err).Warn("Retrying remote operation",
			logging.F(logging.FieldOperation, op),
			logging.F(logging.FieldAttempt, attempt+1),
			logging.F("delay_ms", delay.Milliseconds()))
		if sleep(ctx, delay) != nil {
			return importerror.ErrCancelled
		}
	}
}

func (r *run) attempt(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx := context.WithoutCancel(ctx)
	if r.im.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, r.im.opts.CallTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	var apiErr *importerror.APIError
	var accessErr *importerror.AccessError
	if !errors.As(err, &apiErr) && !errors.As(err, &accessErr) && importerror.IsTimeout(err) {
		return &importerror.APIError{Kind: importerror.APITimeout, Operation: op, Err: err}
	}
	return err
}
