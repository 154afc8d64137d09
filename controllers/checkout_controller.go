package controllers

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orderimages/checkout"
	"github.com/cppla/orderimages/media"
	"github.com/cppla/orderimages/metrics"
	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/orders"
	"github.com/cppla/orderimages/presenter"
	"github.com/cppla/orderimages/settings"
	"github.com/cppla/orderimages/utils"
)

const mailTimeout = 30 * time.Second

// MailSender delivers order confirmations. *utils.Mailer satisfies it.
type MailSender interface {
	Configured() bool
	Send(msg utils.Mail) error
}

// CheckoutOptions groups the collaborators of CheckoutController.
type CheckoutOptions struct {
	DB           *gorm.DB
	Settings     *settings.Store
	Catalog      *checkout.CatalogDB
	Library      *media.Library
	Nonces       *utils.NonceSigner
	Mailer       MailSender
	OrderStorage string
	PlainEmails  bool
	Logger       *zap.Logger
}

// CheckoutController gates and records checkouts.
type CheckoutController struct {
	opts CheckoutOptions
	gate *checkout.Gate
}

// NewCheckoutController creates a new CheckoutController.
func NewCheckoutController(opts CheckoutOptions) *CheckoutController {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &CheckoutController{opts: opts, gate: checkout.NewGate(opts.Catalog)}
}

type cartRequest struct {
	Items []checkout.CartItem `json:"items" binding:"required"`
}

type requiredSlot struct {
	checkout.RequiredItem
	ImageField   string `json:"image_field"`
	ProductField string `json:"product_field"`
}

// Fields tells the storefront which cart lines need an image and how to upload it.
func (c *CheckoutController) Fields(ctx *gin.Context) {
	var req cartRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}

	s, err := c.opts.Settings.Load(ctx.Request.Context())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load settings")
		return
	}

	required, err := c.gate.Required(ctx.Request.Context(), req.Items, s)
	if err != nil {
		c.opts.Logger.Error("resolve required items failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to check cart")
		return
	}

	slots := make([]requiredSlot, 0, len(required))
	for _, r := range required {
		slots = append(slots, requiredSlot{RequiredItem: r, ImageField: r.ImageField(), ProductField: r.ProductField()})
	}

	nonce, err := c.opts.Nonces.Issue(utils.UploadNonceAction)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to issue upload nonce")
		return
	}

	utils.Success(ctx, gin.H{
		"required":           slots,
		"instruction":        s.InstructionMessage,
		"nonce":              nonce,
		"max_file_size_mb":   s.MaxFileSizeMB,
		"allowed_extensions": s.AllowedExtensions,
	})
}

// Submit validates the checkout and, when every required image is present, creates the order
// and records its images.
func (c *CheckoutController) Submit(ctx *gin.Context) {
	var req struct {
		Items         []checkout.CartItem `json:"items" binding:"required,min=1"`
		Fields        map[string]string   `json:"fields"`
		CustomerEmail string              `json:"customer_email"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40041, "invalid request payload")
		return
	}
	if req.Fields == nil {
		req.Fields = map[string]string{}
	}

	rctx := ctx.Request.Context()
	s, err := c.opts.Settings.Load(rctx)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load settings")
		return
	}

	violations, err := c.gate.Check(rctx, req.Items, req.Fields, s)
	if err != nil {
		c.opts.Logger.Error("checkout gate failed", zap.Error(err))
		metrics.IncCheckout("error")
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to check cart")
		return
	}
	if len(violations) > 0 {
		metrics.IncCheckout("rejected")
		utils.Fail(ctx, http.StatusUnprocessableEntity, 42240, "missing required images", gin.H{"violations": violations})
		return
	}

	order := models.Order{CustomerEmail: strings.TrimSpace(req.CustomerEmail)}
	for _, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{ProductID: uint(max(item.ProductID, 0)), Quantity: max(item.Quantity, 1)})
	}

	var attachments []orders.Attachment
	err = c.opts.DB.WithContext(rctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		backend, err := orders.NewBackend(c.opts.OrderStorage, tx)
		if err != nil {
			return err
		}
		var resolver orders.MediaResolver
		if c.opts.Library != nil {
			resolver = c.opts.Library.WithDB(tx)
		}
		attachments, err = orders.NewRecorder(backend, resolver, c.opts.Logger).Record(rctx, order.ID, req.Fields)
		return err
	})
	if err != nil {
		c.opts.Logger.Error("checkout failed", zap.Error(err))
		metrics.IncCheckout("error")
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to create order")
		return
	}

	metrics.IncCheckout("accepted")
	if order.CustomerEmail != "" && c.opts.Mailer != nil && c.opts.Mailer.Configured() {
		go c.sendConfirmation(order, s)
	}

	utils.Success(ctx, gin.H{"order_id": order.ID, "images": attachments})
}

func (c *CheckoutController) sendConfirmation(order models.Order, s settings.Settings) {
	ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
	defer cancel()

	backend, err := orders.NewBackend(c.opts.OrderStorage, c.opts.DB)
	if err != nil {
		c.opts.Logger.Error("order backend unavailable", zap.Error(err))
		return
	}
	section, err := presenter.NewAdapter(backend, c.opts.Catalog).Email(ctx, order.ID, s, c.opts.PlainEmails)
	if err != nil {
		c.opts.Logger.Warn("render order images failed", zap.Uint("order_id", order.ID), zap.Error(err))
	}

	body := fmt.Sprintf("Thank you for your order #%d.", order.ID)
	if !c.opts.PlainEmails {
		body = "<p>" + html.EscapeString(body) + "</p>"
	}
	msg := utils.Mail{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Your order #%d", order.ID),
		Body:    body + section,
		HTML:    !c.opts.PlainEmails,
	}
	if err := c.opts.Mailer.Send(msg); err != nil {
		c.opts.Logger.Warn("send order email failed", zap.Uint("order_id", order.ID), zap.Error(err))
		return
	}
	c.opts.Logger.Info("order email sent", zap.Uint("order_id", order.ID))
}
