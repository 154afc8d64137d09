// Package upload validates a single image upload and stores it in the media library.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/orderimages/media"
	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/settings"
)

const (
	msgSecurity    = "Security check failed. Please reload the page and try again."
	msgMissingFile = "No image was uploaded."
	msgStorage     = "The image could not be saved. Please try again."
	titleGeneric   = "Order image"
)

// File is the uploaded part as received by the HTTP layer.
type File struct {
	Filename string
	Size     int64
	Fault    Fault
	Body     io.Reader
}

// Request is one upload attempt.
type Request struct {
	Nonce     string
	ProductID int
	File      *File
}

// Result identifies the stored object.
type Result struct {
	ID  uint   `json:"id"`
	URL string `json:"url"`
}

// NonceVerifier checks the anti-forgery token.
type NonceVerifier interface {
	VerifyNonce(ctx context.Context, token string) bool
}

// ProductNamer resolves product display names.
type ProductNamer interface {
	ProductName(ctx context.Context, id int) (string, error)
}

// MediaLibrary stores objects.
type MediaLibrary interface {
	Add(ctx context.Context, obj media.NewObject) (models.MediaFile, error)
}

// Ingestor runs the upload checks and stores accepted files.
type Ingestor struct {
	nonces  NonceVerifier
	names   ProductNamer
	library MediaLibrary
	logger  *zap.Logger
}

// NewIngestor wires an Ingestor.
func NewIngestor(nonces NonceVerifier, names ProductNamer, library MediaLibrary, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{nonces: nonces, names: names, library: library, logger: logger}
}

// Handle validates req against s and stores the file. The first failing check wins; nothing
// is stored unless every check passes.
func (in *Ingestor) Handle(ctx context.Context, s settings.Settings, req Request) (Result, error) {
	if !in.nonces.VerifyNonce(ctx, req.Nonce) {
		return Result{}, &Error{Kind: ErrSecurity, Message: msgSecurity}
	}
	if req.File == nil {
		return Result{}, &Error{Kind: ErrMissingFile, Message: msgMissingFile}
	}
	f := req.File
	if f.Fault != FaultNone {
		return Result{}, &Error{Kind: ErrTransfer, Message: f.Fault.Message()}
	}
	if f.Size > s.MaxFileSizeBytes() {
		return Result{}, &Error{
			Kind:    ErrSizeLimit,
			Message: fmt.Sprintf("The file is too large. The maximum allowed size is %d MB.", s.MaxFileSizeMB),
		}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Filename), "."))
	if !s.AllowsExtension(ext) {
		return Result{}, &Error{
			Kind:    ErrTypeNotAllowed,
			Message: fmt.Sprintf("File type not allowed. Please upload an image in %s format.", s.ExtensionsLabel()),
		}
	}

	row, err := in.library.Add(ctx, media.NewObject{
		Title:           in.title(ctx, req.ProductID),
		FileName:        f.Filename,
		Size:            f.Size,
		Body:            f.Body,
		PluginOwned:     true,
		ParentProductID: req.ProductID,
	})
	if err != nil {
		in.logger.Error("store upload failed", zap.String("file", f.Filename), zap.Error(err))
		return Result{}, &Error{Kind: ErrStorage, Message: msgStorage, Err: err}
	}
	in.logger.Info("image uploaded", zap.Uint("media_id", row.ID), zap.Int("product_id", req.ProductID), zap.Int64("size", f.Size))
	return Result{ID: row.ID, URL: row.URL}, nil
}

func (in *Ingestor) title(ctx context.Context, productID int) string {
	if productID <= 0 || in.names == nil {
		return titleGeneric
	}
	name, err := in.names.ProductName(ctx, productID)
	if err != nil || strings.TrimSpace(name) == "" {
		return titleGeneric
	}
	return titleGeneric + " - " + name
}

// Message extracts the customer-facing text from err.
func Message(err error) string {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Message
	}
	return msgStorage
}
