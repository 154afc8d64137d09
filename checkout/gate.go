// Package checkout decides which cart lines need an image and validates a submission against that.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/cppla/orderimages/orders"
	"github.com/cppla/orderimages/settings"
)

// CartItem is one line of the cart being checked out.
type CartItem struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// RequiredItem is a cart line that must carry an image. Index names its form fields.
type RequiredItem struct {
	Index     int    `json:"index"`
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
}

// ImageField is the form field carrying the uploaded image URL.
func (r RequiredItem) ImageField() string { return ImageField(r.Index) }

// ProductField is the form field carrying the product id.
func (r RequiredItem) ProductField() string { return ProductField(r.Index) }

// ImageField returns the image form field name for slot i.
func ImageField(i int) string { return fmt.Sprintf("image_%d", i) }

// ProductField returns the product id form field name for slot i.
func ProductField(i int) string { return fmt.Sprintf("product_id_%d", i) }

// Violation is a missing image reported back to the customer.
type Violation struct {
	Index     int    `json:"index"`
	ProductID int    `json:"product_id"`
	Message   string `json:"message"`
}

// Gate evaluates carts against the category rules.
type Gate struct {
	catalog Catalog
}

// NewGate returns a gate backed by catalog.
func NewGate(catalog Catalog) *Gate {
	return &Gate{catalog: catalog}
}

// Required lists the cart lines needing an image, in cart order. Products unknown to the
// catalog are skipped.
func (g *Gate) Required(ctx context.Context, cart []CartItem, s settings.Settings) ([]RequiredItem, error) {
	if len(s.Categories) == 0 {
		return nil, nil
	}
	var out []RequiredItem
	for _, item := range cart {
		p, err := g.catalog.Product(ctx, item.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, c := range p.Categories {
			if s.HasCategory(c.ID) {
				out = append(out, RequiredItem{
					Index:     len(out),
					ProductID: p.ID,
					Name:      p.Name,
					Category:  c.Name,
				})
				break
			}
		}
	}
	return out, nil
}

// Validate reports every required slot whose image field is blank or does not hold a URL the
// order recorder would keep.
func (g *Gate) Validate(required []RequiredItem, fields map[string]string, s settings.Settings) []Violation {
	var out []Violation
	msg := s.RequiredText()
	for _, r := range required {
		if _, ok := orders.CleanImageURL(fields[r.ImageField()]); ok {
			continue
		}
		out = append(out, Violation{
			Index:     r.Index,
			ProductID: r.ProductID,
			Message:   r.Name + " " + msg,
		})
	}
	return out
}

// Check runs Required then Validate.
func (g *Gate) Check(ctx context.Context, cart []CartItem, fields map[string]string, s settings.Settings) ([]Violation, error) {
	required, err := g.Required(ctx, cart, s)
	if err != nil {
		return nil, err
	}
	return g.Validate(required, fields, s), nil
}
