package settings

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/cppla/orderimages/options"
	"github.com/cppla/orderimages/utils"
)

const (
	// OptionName is the options row holding the settings document.
	OptionName = "aiep_settings"
	cacheKey   = "aiep:settings"
	cacheTTL   = 10 * time.Minute
)

// Store persists the settings singleton.
type Store struct {
	db *gorm.DB
	rc *redis.Client
}

// NewStore returns a store backed by db. rc may be nil, which disables caching.
func NewStore(db *gorm.DB, rc *redis.Client) *Store {
	return &Store{db: db, rc: rc}
}

// Load returns the current settings, or the defaults when none were ever saved.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	var cached Settings
	if utils.CacheGetJSON(ctx, s.rc, cacheKey, &cached) {
		return cached, nil
	}
	out := Defaults()
	found, err := options.Get(ctx, s.db, OptionName, &out)
	if err != nil {
		return Settings{}, err
	}
	if !found {
		return Defaults(), nil
	}
	if out.Categories == nil {
		out.Categories = []int{}
	}
	utils.CacheSetJSON(ctx, s.rc, cacheKey, out, cacheTTL)
	return out, nil
}

// Save replaces the stored settings.
func (s *Store) Save(ctx context.Context, v Settings) error {
	if err := options.Put(ctx, s.db, OptionName, v); err != nil {
		return err
	}
	utils.CacheDelete(ctx, s.rc, cacheKey)
	return nil
}

// Install writes the defaults unless settings already exist.
func (s *Store) Install(ctx context.Context) error {
	added, err := options.Add(ctx, s.db, OptionName, Defaults())
	if err != nil {
		return err
	}
	if added {
		utils.CacheDelete(ctx, s.rc, cacheKey)
	}
	return nil
}
