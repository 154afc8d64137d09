package models

import "time"

// Option is a named key/value record in the host's options table. Values are JSON documents.
type Option struct {
	Name      string    `gorm:"primaryKey;size:191" json:"name"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the host's table name.
func (Option) TableName() string { return "options" }
