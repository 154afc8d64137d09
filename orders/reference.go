package orders

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/orderimages/models"
)

// LIKE patterns with '!' as the escape character so '_' matches literally.
const (
	likeImageKeys = "!_aiep!_image!_%"
	likeMediaKeys = "!_aiep!_media!_id!_%"
)

// ReferenceChecker tells whether any order still points at a stored object.
type ReferenceChecker struct {
	db   *gorm.DB
	hpos bool
}

// NewReferenceChecker returns a checker. With hpos set the dedicated order meta table is searched
// as well, provided it exists.
func NewReferenceChecker(db *gorm.DB, hpos bool) *ReferenceChecker {
	return &ReferenceChecker{db: db, hpos: hpos}
}

// IsReferenced reports whether m is attached to any order, by media id or by any spelling of its URL.
func (c *ReferenceChecker) IsReferenced(ctx context.Context, m models.MediaFile) (bool, error) {
	variants := URLVariants(m.URL)
	mediaID := strconv.FormatUint(uint64(m.ID), 10)

	found, err := c.search(ctx, &models.PostMeta{}, variants, mediaID)
	if err != nil || found {
		return found, err
	}
	if !c.hpos || !c.db.WithContext(ctx).Migrator().HasTable(&models.OrderMeta{}) {
		return false, nil
	}
	return c.search(ctx, &models.OrderMeta{}, variants, mediaID)
}

func (c *ReferenceChecker) search(ctx context.Context, table interface{}, variants []string, mediaID string) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(table).
		Where("(meta_key LIKE ? ESCAPE '!' AND meta_key <> ? AND meta_value IN ?) OR (meta_key LIKE ? ESCAPE '!' AND meta_value = ?)",
			likeImageKeys, KeyImageCount, variants, likeMediaKeys, mediaID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("reference lookup: %w", err)
	}
	return n > 0, nil
}

// URLVariants lists the spellings under which u may have been recorded: as-is, HTML-escaped and
// with the scheme swapped between http and https.
func URLVariants(u string) []string {
	candidates := []string{u, html.EscapeString(u)}
	switch {
	case strings.HasPrefix(u, "https://"):
		candidates = append(candidates, "http://"+strings.TrimPrefix(u, "https://"))
	case strings.HasPrefix(u, "http://"):
		candidates = append(candidates, "https://"+strings.TrimPrefix(u, "http://"))
	}
	out := make([]string, 0, len(candidates))
	seen := map[string]bool{}
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
