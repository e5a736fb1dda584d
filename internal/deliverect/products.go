package deliverect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

// maxETagConflicts bounds how often a subcategory patch is re-read after a 412.
const maxETagConflicts = 2

type productResponse struct {
	ID   string `json:"_id"`
	PLU  string `json:"plu"`
	Name string `json:"name"`
}

type productIndex map[string]productResponse

type itemsQuery struct {
	Page       int    `json:"page"`
	Visible    bool   `json:"visible"`
	MaxResults int    `json:"max_results"`
	Sort       string `json:"sort"`
}

// productsFor returns the PLU index of an account, loading it on first use.
// A failed load is not cached.
func (c *Client) productsFor(ctx context.Context, accountID string) (productIndex, error) {
	c.productsMu.Lock()
	defer c.productsMu.Unlock()

	if idx, ok := c.products[accountID]; ok {
		return idx, nil
	}

	pageSize := c.opts.ProductPageSize
	items, err := collectPages(ctx, pageSize, func(ctx context.Context, pageNum int) (page[productResponse], error) {
		var p page[productResponse]
		_, err := c.do(ctx, request{
			op:     "list products",
			method: http.MethodPost,
			path:   fmt.Sprintf(itemsPath, url.PathEscape(accountID)),
			body: itemsQuery{
				Page:       pageNum,
				Visible:    true,
				MaxResults: pageSize,
				Sort:       "-_id",
			},
		}, &p)
		if err == nil {
			c.logger.Debug("Loaded product page",
				logging.F(logging.FieldAccountID, accountID),
				logging.F("page", pageNum),
				logging.F("total_pages", p.Meta.TotalPages),
				logging.F(logging.FieldCount, len(p.Items)))
		}
		return p, err
	})
	if err != nil {
		return nil, err
	}

	idx := make(productIndex, len(items))
	for _, item := range items {
		if item.PLU == "" {
			continue
		}
		// first match wins, the listing is sorted newest first
		if _, seen := idx[item.PLU]; !seen {
			idx[item.PLU] = item
		}
	}
	c.products[accountID] = idx

	c.logger.Info("Loaded product index",
		logging.F(logging.FieldAccountID, accountID),
		logging.F(logging.FieldCount, len(idx)))
	return idx, nil
}

// AssignProduct attaches the existing product with the given PLU to a subcategory.
// Attaching a product that is already present is a no-op.
func (c *Client) AssignProduct(ctx context.Context, accountID, subcategoryID, plu string) (models.RemoteProduct, error) {
	const op = "assign product"

	idx, err := c.productsFor(ctx, accountID)
	if err != nil {
		return models.RemoteProduct{}, err
	}
	product, ok := idx[plu]
	if !ok {
		return models.RemoteProduct{}, &importerror.APIError{
			Kind:      importerror.APINotFound,
			Operation: op,
			Err:       fmt.Errorf("no product with PLU %q in account %s", plu, accountID),
		}
	}
	assigned := models.RemoteProduct{
		ID:            product.ID,
		PLU:           plu,
		Name:          product.Name,
		SubcategoryID: subcategoryID,
	}

	for conflicts := 0; ; conflicts++ {
		sub, err := c.getCategory(ctx, subcategoryID)
		if err != nil {
			return models.RemoteProduct{}, err
		}
		for _, id := range sub.Products {
			if id == product.ID {
				return assigned, nil
			}
		}

		products := append(append([]string(nil), sub.Products...), product.ID)
		err = c.patchCategoryProducts(ctx, subcategoryID, sub.ETag, products)
		if err == nil {
			return assigned, nil
		}

		var apiErr *importerror.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusPreconditionFailed && conflicts < maxETagConflicts {
			c.logger.Debug("Subcategory changed concurrently, re-reading",
				logging.F(logging.FieldSubcategory, subcategoryID),
				logging.F(logging.FieldPLU, plu))
			continue
		}
		return models.RemoteProduct{}, err
	}
}

func (c *Client) getCategory(ctx context.Context, categoryID string) (categoryResponse, error) {
	var cat categoryResponse
	hdr, err := c.do(ctx, request{
		op:     "get subcategory",
		method: http.MethodGet,
		path:   fmt.Sprintf(categoryPath, url.PathEscape(categoryID)),
	}, &cat)
	if err != nil {
		return categoryResponse{}, err
	}
	if cat.ETag == "" {
		cat.ETag = hdr.Get("ETag")
	}
	return cat, nil
}

func (c *Client) patchCategoryProducts(ctx context.Context, categoryID, etag string, products []string) error {
	headers := map[string]string{}
	if etag != "" {
		headers["If-Match"] = etag
	}
	_, err := c.do(ctx, request{
		op:      "update subcategory products",
		method:  http.MethodPatch,
		path:    fmt.Sprintf(categoryPath, url.PathEscape(categoryID)),
		body:    map[string]interface{}{"products": products},
		headers: headers,
	}, nil)
	return err
}
