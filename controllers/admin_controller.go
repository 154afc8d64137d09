package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orderimages/checkout"
	"github.com/cppla/orderimages/cleanup"
	"github.com/cppla/orderimages/config"
	"github.com/cppla/orderimages/middleware"
	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/orders"
	"github.com/cppla/orderimages/presenter"
	"github.com/cppla/orderimages/settings"
	"github.com/cppla/orderimages/utils"
)

const adminTokenTTL = 72 * time.Hour

// AdminOptions groups the collaborators of AdminController.
type AdminOptions struct {
	DB        *gorm.DB
	Config    config.AppConfig
	Settings  *settings.Store
	Catalog   *checkout.CatalogDB
	Issuer    *utils.TokenIssuer
	Blacklist *utils.TokenBlacklist
	Reaper    *cleanup.Reaper
	CleanLog  *cleanup.LogStore
	Logger    *zap.Logger
}

// AdminController serves the shop administrator endpoints.
type AdminController struct {
	opts AdminOptions
}

// NewAdminController creates a new AdminController.
func NewAdminController(opts AdminOptions) *AdminController {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &AdminController{opts: opts}
}

// Login authenticates a configured administrator and returns a JWT.
func (a *AdminController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	admin, ok := a.opts.Config.Admin(req.Username)
	if !ok || !utils.CheckPassword(admin.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	token, err := a.opts.Issuer.GenerateToken(admin.Username, adminTokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}
	a.opts.Logger.Info("admin login", zap.String("username", admin.Username), zap.String("ip", ctx.ClientIP()))
	utils.Success(ctx, gin.H{"token": token, "expires_in": int(adminTokenTTL.Seconds())})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AdminController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	expiresAt := time.Now().Add(adminTokenTTL)
	if v, ok := ctx.Get(middleware.ContextClaimsKey); ok {
		if claims, ok := v.(*utils.Claims); ok && claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}
	a.opts.Blacklist.Revoke(ctx.Request.Context(), token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// GetSettings returns the stored settings with defaults filled in.
func (a *AdminController) GetSettings(ctx *gin.Context) {
	s, err := a.opts.Settings.Load(ctx.Request.Context())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load settings")
		return
	}
	utils.Success(ctx, gin.H{"settings": s})
}

// UpdateSettings sanitizes and stores a settings submission.
func (a *AdminController) UpdateSettings(ctx *gin.Context) {
	var form settings.Form
	if err := ctx.ShouldBindJSON(&form); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}
	s := settings.Sanitize(form)
	if err := a.opts.Settings.Save(ctx.Request.Context(), s); err != nil {
		a.opts.Logger.Error("save settings failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to save settings")
		return
	}
	a.opts.Logger.Info("settings updated", zap.String("by", ctx.GetString(middleware.ContextUsernameKey)))
	utils.Success(ctx, gin.H{"settings": s})
}

// OrderImages returns the images recorded on an order as JSON.
func (a *AdminController) OrderImages(ctx *gin.Context) {
	adapter, orderID, ok := a.orderAdapter(ctx)
	if !ok {
		return
	}
	images, count, err := adapter.AdminData(ctx.Request.Context(), orderID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to read order images")
		return
	}
	if images == nil {
		images = []orders.Attachment{}
	}
	utils.Success(ctx, gin.H{"order_id": orderID, "count": count, "images": images})
}

// OrderImagesHTML renders the admin order screen fragment.
func (a *AdminController) OrderImagesHTML(ctx *gin.Context) {
	adapter, orderID, ok := a.orderAdapter(ctx)
	if !ok {
		return
	}
	fragment, err := adapter.AdminHTML(ctx.Request.Context(), orderID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to read order images")
		return
	}
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fragment))
}

// CleanupLog lists the most recent cleanup runs that deleted something.
func (a *AdminController) CleanupLog(ctx *gin.Context) {
	entries, err := a.opts.CleanLog.Entries(ctx.Request.Context())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to read cleanup log")
		return
	}
	utils.Success(ctx, gin.H{"entries": entries})
}

// RunCleanup triggers one reaper pass synchronously.
func (a *AdminController) RunCleanup(ctx *gin.Context) {
	report, err := a.opts.Reaper.Run(ctx.Request.Context())
	if errors.Is(err, cleanup.ErrAlreadyRunning) {
		utils.Error(ctx, http.StatusConflict, 40970, "cleanup already running")
		return
	}
	if err != nil {
		a.opts.Logger.Error("manual cleanup failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50071, "cleanup failed")
		return
	}
	utils.Success(ctx, gin.H{"report": report})
}

func (a *AdminController) orderAdapter(ctx *gin.Context) (*presenter.Adapter, uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid order id")
		return nil, 0, false
	}
	db := a.opts.DB.WithContext(ctx.Request.Context())
	if err := db.Select("id").Take(&models.Order{}, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40460, "order not found")
		} else {
			utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to load order")
		}
		return nil, 0, false
	}
	backend, err := orders.NewBackend(a.opts.Config.OrderStorage, a.opts.DB)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50062, "order storage misconfigured")
		return nil, 0, false
	}
	return presenter.NewAdapter(backend, a.opts.Catalog), uint(id), true
}
