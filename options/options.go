// Package options reads and writes JSON documents in the host's key/value options table.
package options

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/orderimages/models"
)

// Get decodes the option called name into out. It reports false when the option does not exist.
func Get(ctx context.Context, db *gorm.DB, name string, out any) (bool, error) {
	var opt models.Option
	err := db.WithContext(ctx).Where("name = ?", name).Take(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load option %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(opt.Value), out); err != nil {
		return false, fmt.Errorf("decode option %s: %w", name, err)
	}
	return true, nil
}

// Put stores v under name, replacing any previous value.
func Put(ctx context.Context, db *gorm.DB, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode option %s: %w", name, err)
	}
	now := time.Now()
	// Atomic upsert so concurrent writers never hit duplicate key errors
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": string(raw), "updated_at": now}),
	}).Create(&models.Option{Name: name, Value: string(raw), UpdatedAt: now}).Error
	if err != nil {
		return fmt.Errorf("save option %s: %w", name, err)
	}
	return nil
}

// Add stores v under name only when the option is absent. It reports whether a row was written.
func Add(ctx context.Context, db *gorm.DB, name string, v any) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode option %s: %w", name, err)
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Option{Name: name, Value: string(raw), UpdatedAt: time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("add option %s: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the option. Deleting a missing option is not an error.
func Delete(ctx context.Context, db *gorm.DB, name string) error {
	if err := db.WithContext(ctx).Where("name = ?", name).Delete(&models.Option{}).Error; err != nil {
		return fmt.Errorf("delete option %s: %w", name, err)
	}
	return nil
}
