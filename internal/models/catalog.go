// Package models provides the data structures used throughout the application.
package models

// CsvRow is one validated input line. All fields are non-empty and trimmed.
type CsvRow struct {
	Row       int // line number in the source file
	Category1 string
	Category2 string
	Plu       string
}

// Catalog is the hierarchical structure built for one import run.
// Categories keep first-seen order.
type Catalog struct {
	MenuName          string
	Categories        []*Category
	DuplicatesSkipped int
	Duplicates        []Duplicate

	index map[string]*Category
}

// Category is a top-level catalog node. Names are unique within a Catalog
// (exact, case-sensitive match).
type Category struct {
	Name          string
	Subcategories []*Subcategory

	index map[string]*Subcategory
}

// Subcategory owns an ordered set of PLU codes.
type Subcategory struct {
	Name string
	PLUs []string

	set map[string]struct{}
}

// Duplicate records a PLU that was already present in its subcategory.
type Duplicate struct {
	Row         int    `json:"row" yaml:"row"`
	Category    string `json:"category" yaml:"category"`
	Subcategory string `json:"subcategory" yaml:"subcategory"`
	Plu         string `json:"plu" yaml:"plu"`
}

// CatalogStats summarizes the size of a Catalog.
type CatalogStats struct {
	Categories    int
	Subcategories int
	Products      int
}

// NewCatalog returns an empty catalog for menuName.
func NewCatalog(menuName string) *Catalog {
	return &Catalog{
		MenuName:   menuName,
		Categories: []*Category{},
		Duplicates: []Duplicate{},
		index:      map[string]*Category{},
	}
}

// Category returns the category called name.
func (c *Catalog) Category(name string) (*Category, bool) {
	cat, ok := c.index[name]
	return cat, ok
}

// FindOrAddCategory returns the category called name, appending it when absent.
// The boolean is true when the category was created.
func (c *Catalog) FindOrAddCategory(name string) (*Category, bool) {
	if c.index == nil {
		c.index = map[string]*Category{}
	}
	if cat, ok := c.index[name]; ok {
		return cat, false
	}
	cat := &Category{
		Name:          name,
		Subcategories: []*Subcategory{},
		index:         map[string]*Subcategory{},
	}
	c.index[name] = cat
	c.Categories = append(c.Categories, cat)
	return cat, true
}

// RecordDuplicate counts a skipped duplicate PLU.
func (c *Catalog) RecordDuplicate(d Duplicate) {
	c.DuplicatesSkipped++
	c.Duplicates = append(c.Duplicates, d)
}

// Stats counts categories, subcategories and distinct PLU placements.
func (c *Catalog) Stats() CatalogStats {
	var s CatalogStats
	s.Categories = len(c.Categories)
	for _, cat := range c.Categories {
		s.Subcategories += len(cat.Subcategories)
		for _, sub := range cat.Subcategories {
			s.Products += len(sub.PLUs)
		}
	}
	return s
}

// Subcategory returns the subcategory called name.
func (c *Category) Subcategory(name string) (*Subcategory, bool) {
	sub, ok := c.index[name]
	return sub, ok
}

// FindOrAddSubcategory returns the subcategory called name, appending it when absent.
func (c *Category) FindOrAddSubcategory(name string) (*Subcategory, bool) {
	if c.index == nil {
		c.index = map[string]*Subcategory{}
	}
	if sub, ok := c.index[name]; ok {
		return sub, false
	}
	sub := &Subcategory{
		Name: name,
		PLUs: []string{},
		set:  map[string]struct{}{},
	}
	c.index[name] = sub
	c.Subcategories = append(c.Subcategories, sub)
	return sub, true
}

// ProductCount is the number of PLUs below the category.
func (c *Category) ProductCount() int {
	n := 0
	for _, sub := range c.Subcategories {
		n += len(sub.PLUs)
	}
	return n
}

// AddPLU inserts plu and reports whether it was new.
func (s *Subcategory) AddPLU(plu string) bool {
	if s.set == nil {
		s.set = map[string]struct{}{}
	}
	if _, ok := s.set[plu]; ok {
		return false
	}
	s.set[plu] = struct{}{}
	s.PLUs = append(s.PLUs, plu)
	return true
}

// Has reports whether plu is in the subcategory.
func (s *Subcategory) Has(plu string) bool {
	_, ok := s.set[plu]
	return ok
}
