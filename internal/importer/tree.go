package importer

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

// remoteIndex resolves existing categories of a reused menu by name.
type remoteIndex struct {
	categories    map[string]models.RemoteCategory
	subcategories map[subKey]models.RemoteCategory
}

type subKey struct {
	parentID string
	name     string
}

func newRemoteIndex(existing []models.RemoteCategory) *remoteIndex {
	idx := &remoteIndex{
		categories:    make(map[string]models.RemoteCategory),
		subcategories: make(map[subKey]models.RemoteCategory),
	}
	// first listed wins when the backend already holds duplicates
	for _, c := range existing {
		if c.ParentID == "" {
			if _, ok := idx.categories[c.Name]; !ok {
				idx.categories[c.Name] = c
			}
			continue
		}
		key := subKey{parentID: c.ParentID, name: c.Name}
		if _, ok := idx.subcategories[key]; !ok {
			idx.subcategories[key] = c
		}
	}
	return idx
}

// subtreeResult is what importing one category contributed to the report.
type subtreeResult struct {
	categoriesCreated    int
	categoriesReused     int
	subcategoriesCreated int
	subcategoriesReused  int
	productsAttached     int
	apiErrors            []models.APIErrorEntry
}

func (s *subtreeResult) addError(label string, err error) {
	s.apiErrors = append(s.apiErrors, models.APIErrorEntry{Context: label, Message: err.Error()})
}

// importCategories imports every category subtree, in parallel when configured,
// and merges the results in catalog order so the report does not depend on
// completion order.
func (r *run) importCategories(ctx context.Context, categories []*models.Category) {
	results := make([]subtreeResult, len(categories))
	total := len(categories)

	if r.im.opts.Concurrency <= 1 {
		for i, cat := range categories {
			if ctx.Err() != nil {
				break
			}
			results[i] = r.importCategory(ctx, i+1, total, cat)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(r.im.opts.Concurrency)
		for i, cat := range categories {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results[i] = r.importCategory(ctx, i+1, total, cat)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, res := range results {
		r.report.CategoriesCreated += res.categoriesCreated
		r.report.CategoriesReused += res.categoriesReused
		r.report.SubcategoriesCreated += res.subcategoriesCreated
		r.report.SubcategoriesReused += res.subcategoriesReused
		r.report.ProductsAttached += res.productsAttached
		r.report.APIErrors = append(r.report.APIErrors, res.apiErrors...)
	}
}

// importCategory creates one category, then its subcategories and products.
// A failure skips the failed node's subtree only.
func (r *run) importCategory(ctx context.Context, index, total int, cat *models.Category) subtreeResult {
	var res subtreeResult
	if ctx.Err() != nil {
		return res
	}

	r.im.setState(StateCreatingCategories)
	remote, reused, err := r.resolveCategory(ctx, cat.Name, "")
	if errors.Is(err, importerror.ErrCancelled) {
		return res
	}
	if err != nil {
		res.addError(models.CategoryContext(cat.Name), err)
		r.logger.WithError(err).Warn("Category failed",
			logging.F(logging.FieldCategory, cat.Name))
		r.emit(models.Event{
			Kind:     models.EventCategoryFailed,
			Category: cat.Name,
			Reason:   err.Error(),
			Index:    index,
			Total:    total,
		})
		return res
	}

	kind := models.EventCategoryCreated
	if reused {
		kind = models.EventCategoryReused
		res.categoriesReused++
	} else {
		res.categoriesCreated++
	}
	r.emit(models.Event{Kind: kind, Category: cat.Name, RemoteID: remote.ID, Index: index, Total: total})

	for j, sub := range cat.Subcategories {
		if ctx.Err() != nil {
			return res
		}
		if !r.importSubcategory(ctx, &res, cat.Name, remote.ID, sub, j+1, len(cat.Subcategories)) {
			return res
		}
	}
	return res
}

// importSubcategory returns false when the run was cancelled.
func (r *run) importSubcategory(ctx context.Context, res *subtreeResult, category, parentID string, sub *models.Subcategory, index, total int) bool {
	r.im.setState(StateCreatingSubcategories)
	remote, reused, err := r.resolveCategory(ctx, sub.Name, parentID)
	if errors.Is(err, importerror.ErrCancelled) {
		return false
	}
	if err != nil {
		res.addError(models.SubcategoryContext(category, sub.Name), err)
		r.logger.WithError(err).Warn("Subcategory failed",
			logging.F(logging.FieldCategory, category),
			logging.F(logging.FieldSubcategory, sub.Name))
		r.emit(models.Event{
			Kind:        models.EventSubcategoryFailed,
			Category:    category,
			Subcategory: sub.Name,
			Reason:      err.Error(),
			Index:       index,
			Total:       total,
		})
		return true
	}

	kind := models.EventSubcategoryCreated
	if reused {
		kind = models.EventSubcategoryReused
		res.subcategoriesReused++
	} else {
		res.subcategoriesCreated++
	}
	r.emit(models.Event{
		Kind:        kind,
		Category:    category,
		Subcategory: sub.Name,
		RemoteID:    remote.ID,
		Index:       index,
		Total:       total,
	})

	r.im.setState(StateAssigningProducts)
	for k, plu := range sub.PLUs {
		if ctx.Err() != nil {
			return false
		}
		var product models.RemoteProduct
		err := r.call(ctx, "assign product", func(ctx context.Context) error {
			var err error
			product, err = r.im.client.AssignProduct(ctx, r.report.AccountID, remote.ID, plu)
			return err
		})
		if errors.Is(err, importerror.ErrCancelled) {
			return false
		}
		if err != nil {
			res.addError(models.ProductContext(plu, category, sub.Name), err)
			r.emit(models.Event{
				Kind:        models.EventProductFailed,
				Category:    category,
				Subcategory: sub.Name,
				PLU:         plu,
				Reason:      err.Error(),
				Index:       k + 1,
				Total:       len(sub.PLUs),
			})
			continue
		}
		res.productsAttached++
		r.emit(models.Event{
			Kind:        models.EventProductAssigned,
			Category:    category,
			Subcategory: sub.Name,
			PLU:         plu,
			RemoteID:    product.ID,
			Index:       k + 1,
			Total:       len(sub.PLUs),
		})
	}
	return true
}

// resolveCategory finds a category (parentID empty) or subcategory by name in
// a reused menu, creating it when absent.
func (r *run) resolveCategory(ctx context.Context, name, parentID string) (models.RemoteCategory, bool, error) {
	if r.remote != nil {
		var existing models.RemoteCategory
		var ok bool
		if parentID == "" {
			existing, ok = r.remote.categories[name]
		} else {
			existing, ok = r.remote.subcategories[subKey{parentID: parentID, name: name}]
		}
		if ok {
			return existing, true, nil
		}
	}

	op := "create category"
	if parentID != "" {
		op = "create subcategory"
	}
	var created models.RemoteCategory
	err := r.call(ctx, op, func(ctx context.Context) error {
		var err error
		created, err = r.im.client.CreateCategory(ctx, r.report.AccountID, r.menuID, name, parentID)
		return err
	})
	return created, false, err
}
