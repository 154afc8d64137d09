package checkout

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/orderimages/models"
)

// ErrProductNotFound is returned by a Catalog for unknown product ids.
var ErrProductNotFound = errors.New("product not found")

// Category is a product category as seen by the gate.
type Category struct {
	ID   int
	Name string
}

// Product is the slice of catalog data the gate needs.
type Product struct {
	ID         int
	Name       string
	Categories []Category
}

// Catalog resolves products and their categories.
type Catalog interface {
	Product(ctx context.Context, id int) (Product, error)
}

// CatalogDB reads the host catalog tables.
type CatalogDB struct {
	db *gorm.DB
}

// NewCatalogDB returns a Catalog over db.
func NewCatalogDB(db *gorm.DB) *CatalogDB {
	return &CatalogDB{db: db}
}

// Product loads a product with its categories.
func (c *CatalogDB) Product(ctx context.Context, id int) (Product, error) {
	if id <= 0 {
		return Product{}, ErrProductNotFound
	}
	var p models.Product
	err := c.db.WithContext(ctx).Preload("Categories").Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("load product %d: %w", id, err)
	}
	out := Product{ID: int(p.ID), Name: p.Name, Categories: make([]Category, 0, len(p.Categories))}
	for _, cat := range p.Categories {
		out.Categories = append(out.Categories, Category{ID: int(cat.ID), Name: cat.Name})
	}
	return out, nil
}

// ProductName returns a product's display name.
func (c *CatalogDB) ProductName(ctx context.Context, id int) (string, error) {
	var p models.Product
	err := c.db.WithContext(ctx).Select("id", "name").Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrProductNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load product %d: %w", id, err)
	}
	return p.Name, nil
}
