package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/orderimages/models"
)

// Storage modes reported by the host.
const (
	ModeLegacy = "legacy"
	ModeHPOS   = "hpos"
)

// Backend reads and writes custom fields on an order.
type Backend interface {
	// GetAttachmentField returns the field value, or "" when the field is absent.
	GetAttachmentField(ctx context.Context, orderID uint, key string) (string, error)
	// SetAttachmentField creates or replaces the field.
	SetAttachmentField(ctx context.Context, orderID uint, key, value string) error
}

// NewBackend returns the backend matching the host storage mode.
func NewBackend(mode string, db *gorm.DB) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeLegacy, "":
		return PostMetaBackend{db: db}, nil
	case ModeHPOS:
		return OrderMetaBackend{db: db}, nil
	default:
		return nil, fmt.Errorf("unknown order storage mode %q", mode)
	}
}

// PostMetaBackend stores fields in the legacy postmeta table, keyed by the order's post id.
type PostMetaBackend struct {
	db *gorm.DB
}

// NewPostMetaBackend returns a legacy backend.
func NewPostMetaBackend(db *gorm.DB) PostMetaBackend { return PostMetaBackend{db: db} }

func (b PostMetaBackend) GetAttachmentField(ctx context.Context, orderID uint, key string) (string, error) {
	var row models.PostMeta
	err := b.db.WithContext(ctx).Where("post_id = ? AND meta_key = ?", orderID, key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read postmeta %s: %w", key, err)
	}
	return row.MetaValue, nil
}

func (b PostMetaBackend) SetAttachmentField(ctx context.Context, orderID uint, key, value string) error {
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
	}).Create(&models.PostMeta{PostID: orderID, MetaKey: key, MetaValue: value}).Error
	if err != nil {
		return fmt.Errorf("write postmeta %s: %w", key, err)
	}
	return nil
}

// OrderMetaBackend stores fields in the dedicated wc_order_meta table.
type OrderMetaBackend struct {
	db *gorm.DB
}

// NewOrderMetaBackend returns an HPOS backend.
func NewOrderMetaBackend(db *gorm.DB) OrderMetaBackend { return OrderMetaBackend{db: db} }

func (b OrderMetaBackend) GetAttachmentField(ctx context.Context, orderID uint, key string) (string, error) {
	var row models.OrderMeta
	err := b.db.WithContext(ctx).Where("order_id = ? AND meta_key = ?", orderID, key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read order meta %s: %w", key, err)
	}
	return row.MetaValue, nil
}

func (b OrderMetaBackend) SetAttachmentField(ctx context.Context, orderID uint, key, value string) error {
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
	}).Create(&models.OrderMeta{OrderID: orderID, MetaKey: key, MetaValue: value}).Error
	if err != nil {
		return fmt.Errorf("write order meta %s: %w", key, err)
	}
	return nil
}
