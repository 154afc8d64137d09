package models

import "time"

// MediaFile is a stored object in the media library. Rows created by the upload endpoint carry
// PluginOwned so the orphan cleanup never touches anything else.
type MediaFile struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"size:255" json:"title"`
	FileName        string    `gorm:"size:255;not null" json:"file_name"`
	StorageKey      string    `gorm:"size:512;not null" json:"storage_key"` // key inside the blob store, e.g. 2024/05/uuid_photo.jpg
	URL             string    `gorm:"size:1024;not null" json:"url"`
	MimeType        string    `gorm:"size:128" json:"mime_type"`
	Size            int64     `gorm:"not null;default:0" json:"size"`
	PluginOwned     bool      `gorm:"index;not null;default:false" json:"plugin_owned"`
	ParentProductID *uint     `gorm:"index" json:"parent_product_id,omitempty"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
