package models

// Account is the remote account an import targets.
type Account struct {
	ID   string
	Name string
}

// CatalogSummary identifies a remote catalog (menu).
type CatalogSummary struct {
	ID   string
	Name string
}

// RemoteCategory is a category or subcategory created on the remote backend.
// ParentID is empty for top-level categories.
type RemoteCategory struct {
	ID       string
	Name     string
	MenuID   string
	ParentID string
}

// RemoteProduct is a product attached to a remote subcategory.
type RemoteProduct struct {
	ID            string
	PLU           string
	Name          string
	SubcategoryID string
}
