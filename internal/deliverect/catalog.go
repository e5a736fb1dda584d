package deliverect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/models"
)

const (
	accountPath      = "/accounts/%s"
	menusPath        = "/catalog/accounts/%s/menus"
	categoriesPath   = "/catalog/accounts/%s/categories"
	itemsPath        = "/catalog/accounts/%s/items"
	categoryPath     = "/catalog/categories/%s"
	listPageSize     = 100
	maxPages         = 1000
	menuTypeDelivery = 0
)

// Eve style collection envelope used by the catalog endpoints.
type page[T any] struct {
	Items []T      `json:"_items"`
	Meta  pageMeta `json:"_meta"`
}

type pageMeta struct {
	Page       int `json:"page"`
	MaxResults int `json:"max_results"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// last reports whether p is the final page given the requested page size.
func (m pageMeta) last(pageNum, itemCount, pageSize int) bool {
	if itemCount == 0 || itemCount < pageSize {
		return true
	}
	if m.TotalPages > 0 && pageNum >= m.TotalPages {
		return true
	}
	if m.Total > 0 && m.MaxResults > 0 && pageNum*m.MaxResults >= m.Total {
		return true
	}
	return false
}

// collectPages calls fetch for pages 1..n until the API reports the last page.
func collectPages[T any](ctx context.Context, pageSize int, fetch func(ctx context.Context, pageNum int) (page[T], error)) ([]T, error) {
	var all []T
	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		p, err := fetch(ctx, pageNum)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if p.Meta.last(pageNum, len(p.Items), pageSize) {
			return all, nil
		}
	}
	return nil, fmt.Errorf("pagination did not terminate after %d pages", maxPages)
}

type accountResponse struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type menuResponse struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type categoryResponse struct {
	ID             string   `json:"_id"`
	Name           string   `json:"name"`
	Menu           string   `json:"menu"`
	ParentCategory string   `json:"parentCategory,omitempty"`
	Products       []string `json:"products,omitempty"`
	ETag           string   `json:"_etag,omitempty"`
}

// ValidateAccountAccess checks that accountID exists and is linked to the
// developer account. Its failures are always *importerror.AccessError except
// for transient errors (timeouts, 5xx), which are returned unchanged.
func (c *Client) ValidateAccountAccess(ctx context.Context, accountID string) (models.Account, error) {
	if accountID == "" {
		return models.Account{}, &importerror.AccessError{
			Kind:               importerror.AccessNotFound,
			AccountID:          accountID,
			DeveloperAccountID: c.opts.DeveloperAccountID,
			Err:                errors.New("empty account id"),
		}
	}

	var acc accountResponse
	_, err := c.do(ctx, request{
		op:     "get account",
		method: http.MethodGet,
		path:   fmt.Sprintf(accountPath, url.PathEscape(accountID)),
	}, &acc)
	if err != nil {
		return models.Account{}, c.accessError(accountID, err)
	}

	if acc.ID == "" {
		acc.ID = accountID
	}
	return models.Account{ID: acc.ID, Name: acc.Name}, nil
}

func (c *Client) accessError(accountID string, err error) error {
	var apiErr *importerror.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	accessErr := &importerror.AccessError{
		AccountID:          accountID,
		DeveloperAccountID: c.opts.DeveloperAccountID,
		Err:                err,
	}
	switch {
	case apiErr.Kind == importerror.APIAuthFailed:
		accessErr.Kind = importerror.AccessAuthFailed
	case apiErr.StatusCode == http.StatusForbidden:
		accessErr.Kind = importerror.AccessUnlinked
	case apiErr.StatusCode == http.StatusNotFound:
		accessErr.Kind = importerror.AccessNotFound
	default:
		return err
	}
	return accessErr
}

// ListCatalogs returns every menu of the account.
func (c *Client) ListCatalogs(ctx context.Context, accountID string) ([]models.CatalogSummary, error) {
	menus, err := collectPages(ctx, listPageSize, func(ctx context.Context, pageNum int) (page[menuResponse], error) {
		var p page[menuResponse]
		_, err := c.do(ctx, request{
			op:     "list catalogs",
			method: http.MethodGet,
			path:   fmt.Sprintf(menusPath, url.PathEscape(accountID)),
			query:  pageQuery(pageNum, listPageSize),
		}, &p)
		return p, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.CatalogSummary, 0, len(menus))
	for _, m := range menus {
		out = append(out, models.CatalogSummary{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

// CreateCatalog creates an empty menu named name.
func (c *Client) CreateCatalog(ctx context.Context, accountID, name string) (models.CatalogSummary, error) {
	var created menuResponse
	_, err := c.do(ctx, request{
		op:     "create catalog",
		method: http.MethodPost,
		path:   fmt.Sprintf(menusPath, url.PathEscape(accountID)),
		body: map[string]interface{}{
			"name":     name,
			"menuType": menuTypeDelivery,
		},
	}, &created)
	if err != nil {
		return models.CatalogSummary{}, err
	}
	if created.ID == "" {
		return models.CatalogSummary{}, missingID("create catalog")
	}
	if created.Name == "" {
		created.Name = name
	}
	return models.CatalogSummary{ID: created.ID, Name: created.Name}, nil
}

// ListCategories returns every category and subcategory of a menu.
func (c *Client) ListCategories(ctx context.Context, accountID, menuID string) ([]models.RemoteCategory, error) {
	where := fmt.Sprintf(`{"menu":%s}`, strconv.Quote(menuID))
	cats, err := collectPages(ctx, listPageSize, func(ctx context.Context, pageNum int) (page[categoryResponse], error) {
		q := pageQuery(pageNum, listPageSize)
		q.Set("where", where)
		var p page[categoryResponse]
		_, err := c.do(ctx, request{
			op:     "list categories",
			method: http.MethodGet,
			path:   fmt.Sprintf(categoriesPath, url.PathEscape(accountID)),
			query:  q,
		}, &p)
		return p, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.RemoteCategory, 0, len(cats))
	for _, cat := range cats {
		menu := cat.Menu
		if menu == "" {
			menu = menuID
		}
		out = append(out, models.RemoteCategory{
			ID:       cat.ID,
			Name:     cat.Name,
			MenuID:   menu,
			ParentID: cat.ParentCategory,
		})
	}
	return out, nil
}

// CreateCategory creates a category in menuID. A non-empty parentID makes it
// a subcategory of that category.
func (c *Client) CreateCategory(ctx context.Context, accountID, menuID, name, parentID string) (models.RemoteCategory, error) {
	op := "create category"
	body := map[string]interface{}{
		"name":    name,
		"menu":    menuID,
		"account": accountID,
	}
	if parentID != "" {
		op = "create subcategory"
		body["parentCategory"] = parentID
	}

	var created categoryResponse
	_, err := c.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   fmt.Sprintf(categoriesPath, url.PathEscape(accountID)),
		body:   body,
	}, &created)
	if err != nil {
		return models.RemoteCategory{}, err
	}
	if created.ID == "" {
		return models.RemoteCategory{}, missingID(op)
	}
	return models.RemoteCategory{ID: created.ID, Name: name, MenuID: menuID, ParentID: parentID}, nil
}

func pageQuery(pageNum, size int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(pageNum))
	q.Set("max_results", strconv.Itoa(size))
	return q
}

func missingID(op string) error {
	return &importerror.APIError{
		Kind:       importerror.APIRejected,
		Operation:  op,
		StatusCode: http.StatusOK,
		Err:        errors.New("response carries no _id"),
	}
}
