package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/orderimages/metrics"
	"github.com/cppla/orderimages/settings"
	"github.com/cppla/orderimages/upload"
	"github.com/cppla/orderimages/utils"
)

// NonceHeader lets script clients send the upload nonce without a form field.
const NonceHeader = "X-AIEP-Nonce"

// UploadController accepts storefront image uploads.
type UploadController struct {
	settings     *settings.Store
	ingestor     *upload.Ingestor
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewUploadController creates a new UploadController. maxBodyMB bounds the whole request body.
func NewUploadController(store *settings.Store, ingestor *upload.Ingestor, maxBodyMB int, logger *zap.Logger) *UploadController {
	if maxBodyMB <= 0 {
		maxBodyMB = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadController{
		settings:     store,
		ingestor:     ingestor,
		maxBodyBytes: int64(maxBodyMB) << 20,
		logger:       logger,
	}
}

// multipartSlack covers boundaries, part headers and the small text fields around the file.
const multipartSlack = 1 << 20

// Upload handles one multipart image upload. The body keeps the storefront contract:
// {"success":true,"url":...,"id":...} or {"error":"..."}.
func (u *UploadController) Upload(ctx *gin.Context) {
	rctx := ctx.Request.Context()
	s, err := u.settings.Load(rctx)
	if err != nil {
		u.logger.Error("load settings failed", zap.Error(err))
		s = settings.Defaults()
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, u.bodyLimit(s))
	form, parseErr := readUploadForm(ctx.Request, "file", "aiep_image")
	defer form.Close()

	req := upload.Request{Nonce: strings.TrimSpace(ctx.GetHeader(NonceHeader))}
	if req.Nonce == "" {
		req.Nonce = form.values["nonce"]
	}
	if id, err := strconv.Atoi(utils.SanitizeText(form.values["product_id"])); err == nil && id > 0 {
		req.ProductID = id
	}

	switch {
	case parseErr != nil && !errors.Is(parseErr, http.ErrNotMultipart):
		req.File = &upload.File{Filename: form.name, Size: form.size, Fault: upload.ClassifyTransfer(parseErr)}
	case form.file != nil:
		req.File = &upload.File{Filename: form.name, Size: form.size, Body: form.file}
	}

	res, err := u.ingestor.Handle(rctx, s, req)
	if err != nil {
		status, result := uploadStatus(err)
		if req.File != nil && (req.File.Fault == upload.FaultIniSize || req.File.Fault == upload.FaultFormSize) {
			status = http.StatusRequestEntityTooLarge
		}
		metrics.IncUpload(result)
		ctx.JSON(status, gin.H{"error": upload.Message(err)})
		return
	}
	metrics.IncUpload("ok")
	ctx.JSON(http.StatusOK, gin.H{"success": true, "url": res.URL, "id": res.ID})
}

// bodyLimit never cuts off a file the settings allow, whatever the configured request cap.
func (u *UploadController) bodyLimit(s settings.Settings) int64 {
	return max(u.maxBodyBytes, s.MaxFileSizeBytes()+multipartSlack)
}

func uploadStatus(err error) (int, string) {
	switch {
	case errors.Is(err, upload.ErrSecurity):
		return http.StatusForbidden, "security"
	case errors.Is(err, upload.ErrSizeLimit):
		return http.StatusRequestEntityTooLarge, "size"
	case errors.Is(err, upload.ErrTypeNotAllowed):
		return http.StatusBadRequest, "type"
	case errors.Is(err, upload.ErrMissingFile):
		return http.StatusBadRequest, "missing"
	case errors.Is(err, upload.ErrTransfer):
		return http.StatusBadRequest, "transfer"
	default:
		return http.StatusInternalServerError, "storage"
	}
}
