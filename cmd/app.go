package cmd

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orderimages/cleanup"
	"github.com/cppla/orderimages/config"
	"github.com/cppla/orderimages/media"
	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/orders"
	"github.com/cppla/orderimages/utils"
)

// app holds the services shared by the subcommands.
type app struct {
	cfg     config.AppConfig
	db      *gorm.DB
	redis   *redis.Client
	logger  *zap.Logger
	library *media.Library
	reaper  *cleanup.Reaper
}

func bootstrap() (*app, error) {
	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger := utils.L()

	db := config.InitDatabase()
	if err := migrate(db, cfg); err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return nil, err
	}

	rc := utils.GetRedis()
	library := media.NewLibrary(db, blobs, logger)
	reaper := cleanup.NewReaper(library, orders.NewReferenceChecker(db, cfg.HPOS()), cleanup.NewLogStore(db), rc, logger)

	return &app{cfg: cfg, db: db, redis: rc, logger: logger, library: library, reaper: reaper}, nil
}

// migrate creates the tables this service owns and, when missing, the shop tables it reads.
func migrate(db *gorm.DB, cfg config.AppConfig) error {
	if err := config.Migrate(db, &models.Option{}, &models.MediaFile{}); err != nil {
		return err
	}
	host := []interface{}{&models.Category{}, &models.Product{}, &models.Order{}, &models.OrderItem{}, &models.PostMeta{}}
	if cfg.HPOS() {
		host = append(host, &models.OrderMeta{})
	}
	return config.MigrateIfMissing(db, host...)
}

func newBlobStore(cfg config.AppConfig) (media.BlobStore, error) {
	switch strings.ToLower(cfg.MediaDriver) {
	case "", "local":
		store, err := media.NewLocalStore(cfg.MediaLocalDir, cfg.MediaBaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "minio", "s3":
		store, err := media.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MinioPublicURL)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown media driver %q", cfg.MediaDriver)
	}
}
