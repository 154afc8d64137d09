package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orderimages/checkout"
	"github.com/cppla/orderimages/cleanup"
	"github.com/cppla/orderimages/config"
	"github.com/cppla/orderimages/controllers"
	"github.com/cppla/orderimages/media"
	"github.com/cppla/orderimages/metrics"
	"github.com/cppla/orderimages/middleware"
	"github.com/cppla/orderimages/settings"
	"github.com/cppla/orderimages/upload"
	"github.com/cppla/orderimages/utils"
)

// Dependencies are the long-lived services the router hands to controllers.
type Dependencies struct {
	Config  config.AppConfig
	DB      *gorm.DB
	Redis   *redis.Client
	Library *media.Library
	Reaper  *cleanup.Reaper
	Mailer  controllers.MailSender
	Logger  *zap.Logger

	// GinLogger overrides the rolling gin access log, mainly for tests.
	GinLogger *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	gl := deps.GinLogger
	if gl == nil {
		var err error
		gl, err = utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
		if err != nil {
			logger.Warn("gin file logger unavailable", zap.Error(err))
		}
	}
	if gl != nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", controllers.NonceHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if strings.EqualFold(cfg.MediaDriver, "local") && cfg.MediaLocalDir != "" && strings.HasPrefix(cfg.MediaBaseURL, "/") {
		r.Static(cfg.MediaBaseURL, cfg.MediaLocalDir)
	}

	metrics.Init()
	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	settingsStore := settings.NewStore(deps.DB, deps.Redis)
	catalog := checkout.NewCatalogDB(deps.DB)
	nonces := utils.NewNonceSigner(cfg.NonceSecret, time.Duration(cfg.NonceTTLHours)*time.Hour)
	issuer := utils.NewTokenIssuer(cfg.JWTSecret)
	blacklist := utils.NewTokenBlacklist(deps.Redis)

	uploadController := controllers.NewUploadController(
		settingsStore,
		upload.NewIngestor(nonces, catalog, deps.Library, logger),
		cfg.UploadMaxBodyMB,
		logger,
	)
	checkoutController := controllers.NewCheckoutController(controllers.CheckoutOptions{
		DB:           deps.DB,
		Settings:     settingsStore,
		Catalog:      catalog,
		Library:      deps.Library,
		Nonces:       nonces,
		Mailer:       deps.Mailer,
		OrderStorage: cfg.OrderStorage,
		PlainEmails:  cfg.EmailPlainText,
		Logger:       logger,
	})
	adminController := controllers.NewAdminController(controllers.AdminOptions{
		DB:        deps.DB,
		Config:    cfg,
		Settings:  settingsStore,
		Catalog:   catalog,
		Issuer:    issuer,
		Blacklist: blacklist,
		Reaper:    deps.Reaper,
		CleanLog:  cleanup.NewLogStore(deps.DB),
		Logger:    logger,
	})

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMinute)
	auth := middleware.AuthRequired(issuer, blacklist, cfg.IsAdmin)

	api := r.Group("/api/v1")

	storefront := api.Group("")
	storefront.Use(limiter.Middleware())
	storefront.POST("/upload", uploadController.Upload)
	storefront.POST("/checkout/fields", checkoutController.Fields)
	storefront.POST("/checkout", checkoutController.Submit)

	api.POST("/admin/login", limiter.Middleware(), adminController.Login)

	admin := api.Group("/admin")
	admin.Use(auth)
	admin.POST("/logout", adminController.Logout)
	admin.GET("/settings", adminController.GetSettings)
	admin.PUT("/settings", adminController.UpdateSettings)
	admin.GET("/orders/:id/images", adminController.OrderImages)
	admin.GET("/cleanup/log", adminController.CleanupLog)
	admin.POST("/cleanup/run", adminController.RunCleanup)

	r.GET("/admin/orders/:id/images", auth, adminController.OrderImagesHTML)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40401, "not found")
	})

	return r
}
