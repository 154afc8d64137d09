package models

import "time"

// Order is a placed shop order.
type Order struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	CustomerEmail string      `gorm:"size:255" json:"customer_email"`
	Status        string      `gorm:"size:32;not null;default:'processing'" json:"status"`
	Items         []OrderItem `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderItem is one cart line captured on an order.
type OrderItem struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	OrderID   uint `gorm:"index;not null" json:"order_id"`
	ProductID uint `gorm:"index;not null" json:"product_id"`
	Quantity  int  `gorm:"not null;default:1" json:"quantity"`
}

// PostMeta is the legacy meta table where orders stored as posts keep their custom fields.
type PostMeta struct {
	MetaID    uint   `gorm:"primaryKey;column:meta_id" json:"meta_id"`
	PostID    uint   `gorm:"column:post_id;not null;uniqueIndex:idx_postmeta_post_key" json:"post_id"`
	MetaKey   string `gorm:"column:meta_key;size:191;not null;uniqueIndex:idx_postmeta_post_key;index" json:"meta_key"`
	MetaValue string `gorm:"column:meta_value;type:text" json:"meta_value"`
}

// TableName keeps the host's table name.
func (PostMeta) TableName() string { return "postmeta" }

// OrderMeta is the meta table used by the dedicated order storage.
type OrderMeta struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	OrderID   uint   `gorm:"column:order_id;not null;uniqueIndex:idx_order_meta_order_key" json:"order_id"`
	MetaKey   string `gorm:"column:meta_key;size:191;not null;uniqueIndex:idx_order_meta_order_key;index" json:"meta_key"`
	MetaValue string `gorm:"column:meta_value;type:text" json:"meta_value"`
}

// TableName keeps the host's table name.
func (OrderMeta) TableName() string { return "wc_order_meta" }
