package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orderimages/models"
)

// ErrNotFound is returned when no media row matches.
var ErrNotFound = errors.New("media not found")

// sniffLen matches what mimetype reads by default.
const sniffLen = 3072

// NewObject describes a file about to be stored.
type NewObject struct {
	Title           string
	FileName        string
	Size            int64
	Body            io.Reader
	PluginOwned     bool
	ParentProductID int
}

// Library ties blobs to media_files rows.
type Library struct {
	db     *gorm.DB
	blobs  BlobStore
	logger *zap.Logger
	now    func() time.Time
}

// NewLibrary returns a library over db and blobs.
func NewLibrary(db *gorm.DB, blobs BlobStore, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{db: db, blobs: blobs, logger: logger, now: time.Now}
}

// WithDB returns a copy of the library bound to db, typically an open transaction.
func (l *Library) WithDB(db *gorm.DB) *Library {
	cp := *l
	cp.db = db
	return &cp
}

// Blobs exposes the underlying blob store.
func (l *Library) Blobs() BlobStore { return l.blobs }

// Add stores obj and records it. If the row cannot be written the blob is removed again, so a
// failed Add leaves nothing behind.
func (l *Library) Add(ctx context.Context, obj NewObject) (models.MediaFile, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(obj.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return models.MediaFile{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mime := mimetype.Detect(head).String()

	now := l.now().UTC()
	key := l.objectKey(now, obj.FileName)
	body := io.MultiReader(bytes.NewReader(head), obj.Body)
	if err := l.blobs.Put(ctx, key, body, obj.Size, mime); err != nil {
		return models.MediaFile{}, err
	}

	row := models.MediaFile{
		Title:       obj.Title,
		FileName:    obj.FileName,
		StorageKey:  key,
		URL:         l.blobs.URL(key),
		MimeType:    mime,
		Size:        obj.Size,
		PluginOwned: obj.PluginOwned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if obj.ParentProductID > 0 {
		parent := uint(obj.ParentProductID)
		row.ParentProductID = &parent
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		if delErr := l.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			l.logger.Error("media rollback failed", zap.String("key", key), zap.Error(delErr))
		}
		return models.MediaFile{}, fmt.Errorf("record media: %w", err)
	}
	return row, nil
}

// Candidates returns plugin-owned rows created strictly before cutoff, oldest first.
func (l *Library) Candidates(ctx context.Context, cutoff time.Time) ([]models.MediaFile, error) {
	var rows []models.MediaFile
	err := l.db.WithContext(ctx).
		Where("plugin_owned = ? AND created_at < ?", true, cutoff.UTC()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list cleanup candidates: %w", err)
	}
	return rows, nil
}

// Remove deletes the blob and then the row.
func (l *Library) Remove(ctx context.Context, m models.MediaFile) error {
	if err := l.blobs.Delete(ctx, m.StorageKey); err != nil {
		return err
	}
	if err := l.db.WithContext(ctx).Delete(&models.MediaFile{}, m.ID).Error; err != nil {
		return fmt.Errorf("delete media row %d: %w", m.ID, err)
	}
	return nil
}

// Path is the storage location of m, for logs.
func (l *Library) Path(m models.MediaFile) string {
	return l.blobs.Path(m.StorageKey)
}

// FindOwnedByURL returns the plugin-owned row whose URL equals u.
func (l *Library) FindOwnedByURL(ctx context.Context, u string) (models.MediaFile, error) {
	var row models.MediaFile
	err := l.db.WithContext(ctx).Where("url = ? AND plugin_owned = ?", u, true).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.MediaFile{}, ErrNotFound
	}
	if err != nil {
		return models.MediaFile{}, fmt.Errorf("find media: %w", err)
	}
	return row, nil
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// objectKey builds YYYY/MM/<uuid>_<safe name>.
func (l *Library) objectKey(now time.Time, fileName string) string {
	base := filepath.Base(fileName)
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Trim(unsafeName.ReplaceAllString(stem, "-"), "-.")
	if len(stem) > 64 {
		stem = stem[:64]
	}
	if stem == "" {
		stem = "image"
	}
	return fmt.Sprintf("%04d/%02d/%s_%s%s", now.Year(), int(now.Month()), uuid.NewString(), stem, ext)
}
