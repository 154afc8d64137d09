// Package orders records image attachments on orders and reads them back.
package orders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/cppla/orderimages/media"
	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/utils"
)

// Field keys written on orders.
const (
	KeyImageCount    = "_aiep_image_count"
	keyImagePrefix   = "_aiep_image_"
	keyProductPrefix = "_aiep_product_id_"
	keyMediaPrefix   = "_aiep_media_id_"

	formImagePrefix   = "image_"
	formProductPrefix = "product_id_"
)

// ImageKey is the URL field for output index i.
func ImageKey(i int) string { return keyImagePrefix + strconv.Itoa(i) }

// ProductKey is the product id field for output index i.
func ProductKey(i int) string { return keyProductPrefix + strconv.Itoa(i) }

// MediaKey is the media id field for output index i.
func MediaKey(i int) string { return keyMediaPrefix + strconv.Itoa(i) }

// Attachment is one image recorded on an order.
type Attachment struct {
	Index       int    `json:"index"`
	URL         string `json:"url"`
	ProductID   int    `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	MediaID     uint   `json:"media_id,omitempty"`
}

// Submitted is an image field found in a checkout form.
type Submitted struct {
	InputIndex int
	URL        string
	ProductID  int
}

// CollectFields extracts image_<i> entries from form, ordered by i. Blank values and values that
// are not http(s) or site-relative URLs are dropped.
func CollectFields(form map[string]string) []Submitted {
	var out []Submitted
	for key, raw := range form {
		if !strings.HasPrefix(key, formImagePrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(key, formImagePrefix))
		if err != nil || idx < 0 {
			continue
		}
		u, ok := CleanImageURL(raw)
		if !ok {
			continue
		}
		out = append(out, Submitted{
			InputIndex: idx,
			URL:        u,
			ProductID:  cleanProductID(form[formProductPrefix+strconv.Itoa(idx)]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InputIndex < out[j].InputIndex })
	return out
}

// CleanImageURL strips whitespace and control characters from raw and reports whether the result
// is an http(s) URL with a host or a site-relative path. Only such values are recorded on orders.
func CleanImageURL(raw string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", false
		}
	case strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//"):
		if _, err := url.Parse(s); err != nil {
			return "", false
		}
	default:
		return "", false
	}
	if strings.ContainsAny(s, `<>"'`) {
		return "", false
	}
	return s, true
}

func cleanProductID(raw string) int {
	id, err := strconv.Atoi(utils.SanitizeText(raw))
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// MediaResolver finds the plugin-owned object behind an uploaded URL.
type MediaResolver interface {
	FindOwnedByURL(ctx context.Context, u string) (models.MediaFile, error)
}

// Recorder writes submitted images onto an order.
type Recorder struct {
	backend Backend
	media   MediaResolver
	logger  *zap.Logger
}

// NewRecorder returns a recorder. resolver may be nil, in which case no media ids are stored.
func NewRecorder(backend Backend, resolver MediaResolver, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{backend: backend, media: resolver, logger: logger}
}

// Record stores every submitted image under dense indices 0..n-1 and then the count.
// Nothing, not even the count, is written when no image was submitted.
func (r *Recorder) Record(ctx context.Context, orderID uint, form map[string]string) ([]Attachment, error) {
	fields := CollectFields(form)
	out := make([]Attachment, 0, len(fields))
	for i, f := range fields {
		if err := r.backend.SetAttachmentField(ctx, orderID, ImageKey(i), f.URL); err != nil {
			return nil, err
		}
		a := Attachment{Index: i, URL: f.URL, ProductID: f.ProductID}
		if f.ProductID > 0 {
			if err := r.backend.SetAttachmentField(ctx, orderID, ProductKey(i), strconv.Itoa(f.ProductID)); err != nil {
				return nil, err
			}
		}
		if id, err := r.mediaID(ctx, f.URL); err != nil {
			return nil, err
		} else if id > 0 {
			if err := r.backend.SetAttachmentField(ctx, orderID, MediaKey(i), strconv.FormatUint(uint64(id), 10)); err != nil {
				return nil, err
			}
			a.MediaID = id
		}
		out = append(out, a)
	}
	if len(out) > 0 {
		if err := r.backend.SetAttachmentField(ctx, orderID, KeyImageCount, strconv.Itoa(len(out))); err != nil {
			return nil, err
		}
		r.logger.Info("order images recorded", zap.Uint("order_id", orderID), zap.Int("count", len(out)))
	}
	return out, nil
}

func (r *Recorder) mediaID(ctx context.Context, u string) (uint, error) {
	if r.media == nil {
		return 0, nil
	}
	m, err := r.media.FindOwnedByURL(ctx, u)
	if errors.Is(err, media.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve media for %s: %w", u, err)
	}
	return m.ID, nil
}

// ProductNamer resolves product display names.
type ProductNamer interface {
	ProductName(ctx context.Context, id int) (string, error)
}

// ReadAttachments returns the images recorded on an order, at most limit of them (all when
// limit <= 0), together with the recorded count. Slots with an empty URL are skipped and a failed
// name lookup only drops the name.
func ReadAttachments(ctx context.Context, b Backend, orderID uint, names ProductNamer, limit int) ([]Attachment, int, error) {
	raw, err := b.GetAttachmentField(ctx, orderID, KeyImageCount)
	if err != nil {
		return nil, 0, err
	}
	total, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || total <= 0 {
		return nil, 0, nil
	}
	n := total
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Attachment, 0, n)
	for i := 0; i < n; i++ {
		u, err := b.GetAttachmentField(ctx, orderID, ImageKey(i))
		if err != nil {
			return nil, 0, err
		}
		if u == "" {
			continue
		}
		a := Attachment{Index: i, URL: u}
		if pid, err := b.GetAttachmentField(ctx, orderID, ProductKey(i)); err != nil {
			return nil, 0, err
		} else if id, convErr := strconv.Atoi(pid); convErr == nil && id > 0 {
			a.ProductID = id
			if names != nil {
				if name, err := names.ProductName(ctx, id); err == nil {
					a.ProductName = name
				}
			}
		}
		if mid, err := b.GetAttachmentField(ctx, orderID, MediaKey(i)); err != nil {
			return nil, 0, err
		} else if id, convErr := strconv.ParseUint(mid, 10, 64); convErr == nil {
			a.MediaID = uint(id)
		}
		out = append(out, a)
	}
	return out, total, nil
}
