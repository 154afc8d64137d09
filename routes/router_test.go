package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orderimages/cleanup"
	"github.com/cppla/orderimages/config"
	"github.com/cppla/orderimages/media"
	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/orders"
	"github.com/cppla/orderimages/settings"
	"github.com/cppla/orderimages/testutil"
	"github.com/cppla/orderimages/utils"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type fakeMailer struct{ sent chan utils.Mail }

func (f *fakeMailer) Configured() bool { return true }

func (f *fakeMailer) Send(m utils.Mail) error {
	f.sent <- m
	return nil
}

type harness struct {
	router  *gin.Engine
	db      *gorm.DB
	library *media.Library
	mailer  *fakeMailer
	cfg     config.AppConfig
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t,
		&models.Option{}, &models.MediaFile{},
		&models.Order{}, &models.OrderItem{}, &models.PostMeta{}, &models.OrderMeta{},
		&models.Category{}, &models.Product{},
	)
	require.NoError(t, db.Create(&models.Product{
		ID: 1, Name: "Poster",
		Categories: []models.Category{{ID: 7, Name: "Custom prints"}},
	}).Error)
	require.NoError(t, db.Create(&models.Product{ID: 2, Name: "Mug"}).Error)

	hash, err := utils.HashPassword("s3cret")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := config.AppConfig{
		JWTSecret:          "jwt-secret",
		NonceSecret:        "nonce-secret",
		NonceTTLHours:      24,
		GinMode:            "test",
		RateLimitPerMinute: 10000,
		AllowedOrigins:     []string{"*"},
		MediaDriver:        "local",
		MediaLocalDir:      dir,
		MediaBaseURL:       "/static/uploads",
		UploadMaxBodyMB:    8,
		OrderStorage:       orders.ModeLegacy,
		AdminUsers:         []config.AdminUser{{Username: "admin", PasswordHash: hash}},
	}

	blobs, err := media.NewLocalStore(dir, cfg.MediaBaseURL)
	require.NoError(t, err)
	library := media.NewLibrary(db, blobs, nil)
	reaper := cleanup.NewReaper(library, orders.NewReferenceChecker(db, cfg.HPOS()), cleanup.NewLogStore(db), nil, nil)

	s := settings.Defaults()
	s.Categories = []int{7}
	require.NoError(t, settings.NewStore(db, nil).Save(context.Background(), s))

	mailer := &fakeMailer{sent: make(chan utils.Mail, 4)}
	r := SetupRouter(Dependencies{
		Config:    cfg,
		DB:        db,
		Library:   library,
		Reaper:    reaper,
		Mailer:    mailer,
		GinLogger: zap.NewNop(),
	})
	return &harness{router: r, db: db, library: library, mailer: mailer, cfg: cfg}
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) upload(t *testing.T, nonce, field, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("nonce", nonce))
	require.NoError(t, mw.WriteField("product_id", "1"))
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) nonce(t *testing.T) string {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/v1/checkout/fields", gin.H{"items": []gin.H{{"product_id": 1, "quantity": 1}}}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Nonce string `json:"nonce"`
	}
	decodeData(t, w, &data)
	return data.Nonce
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{"username": "admin", "password": "s3cret"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	decodeData(t, w, &data)
	require.NotEmpty(t, data.Token)
	return data.Token
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

func TestCheckoutFields(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/v1/checkout/fields", gin.H{"items": []gin.H{
		{"product_id": 2, "quantity": 1},
		{"product_id": 1, "quantity": 3},
		{"product_id": 99, "quantity": 1},
	}}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Required []struct {
			Index        int    `json:"index"`
			ProductID    int    `json:"product_id"`
			Name         string `json:"name"`
			ImageField   string `json:"image_field"`
			ProductField string `json:"product_field"`
		} `json:"required"`
		Nonce             string   `json:"nonce"`
		MaxFileSizeMB     int      `json:"max_file_size_mb"`
		AllowedExtensions []string `json:"allowed_extensions"`
		Instruction       string   `json:"instruction"`
	}
	decodeData(t, w, &data)
	require.Len(t, data.Required, 1)
	assert.Equal(t, 1, data.Required[0].ProductID)
	assert.Equal(t, "Poster", data.Required[0].Name)
	assert.Equal(t, "image_0", data.Required[0].ImageField)
	assert.Equal(t, "product_id_0", data.Required[0].ProductField)
	assert.NotEmpty(t, data.Nonce)
	assert.Equal(t, settings.DefaultMaxFileSizeMB, data.MaxFileSizeMB)
	assert.Equal(t, settings.DefaultExtensions(), data.AllowedExtensions)
	assert.NotEmpty(t, data.Instruction)
}

func TestUploadRejections(t *testing.T) {
	h := newHarness(t)
	nonce := h.nonce(t)

	cases := []struct {
		name   string
		nonce  string
		field  string
		file   string
		body   []byte
		status int
		msg    string
	}{
		{"bad nonce", "forged", "file", "a.png", pngBytes, http.StatusForbidden, "Security check failed"},
		{"missing file", nonce, "", "", nil, http.StatusBadRequest, "No image was uploaded."},
		{"wrong type", nonce, "file", "a.gif", []byte("GIF89a"), http.StatusBadRequest, "JPG, JPEG, PNG"},
		{"too large", nonce, "aiep_image", "big.jpg", bytes.Repeat([]byte("x"), 5<<20+1), http.StatusRequestEntityTooLarge, "5 MB"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := h.upload(t, tc.nonce, tc.field, tc.file, tc.body)
			assert.Equal(t, tc.status, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tc.msg)
			assert.NotContains(t, body, "success")
		})
	}

	var n int64
	require.NoError(t, h.db.Model(&models.MediaFile{}).Count(&n).Error)
	assert.Zero(t, n, "rejected uploads must not be stored")
}

func TestCheckoutFlow(t *testing.T) {
	h := newHarness(t)
	nonce := h.nonce(t)

	w := h.upload(t, nonce, "file", "photo.png", pngBytes)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var up struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
		ID      uint   `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.True(t, up.Success)
	assert.True(t, strings.HasPrefix(up.URL, "/static/uploads/"))

	var stored models.MediaFile
	require.NoError(t, h.db.First(&stored, up.ID).Error)
	assert.Equal(t, "Order image - Poster", stored.Title)
	assert.True(t, stored.PluginOwned)

	get := httptest.NewRecorder()
	h.router.ServeHTTP(get, httptest.NewRequest(http.MethodGet, up.URL, nil))
	assert.Equal(t, http.StatusOK, get.Code)

	items := []gin.H{{"product_id": 1, "quantity": 1}, {"product_id": 2, "quantity": 1}}

	w = h.do(t, http.MethodPost, "/api/v1/checkout", gin.H{"items": items, "fields": gin.H{"image_0": "  "}}, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var rejected struct {
		Violations []struct {
			ProductID int    `json:"product_id"`
			Message   string `json:"message"`
		} `json:"violations"`
	}
	decodeData(t, w, &rejected)
	require.Len(t, rejected.Violations, 1)
	assert.Equal(t, 1, rejected.Violations[0].ProductID)
	assert.True(t, strings.HasPrefix(rejected.Violations[0].Message, "Poster "))

	var orderCount int64
	require.NoError(t, h.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	w = h.do(t, http.MethodPost, "/api/v1/checkout", gin.H{
		"items":          items,
		"fields":         gin.H{"image_0": up.URL, "product_id_0": "1"},
		"customer_email": "buyer@example.com",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var placed struct {
		OrderID uint `json:"order_id"`
	}
	decodeData(t, w, &placed)
	require.NotZero(t, placed.OrderID)

	select {
	case m := <-h.mailer.sent:
		assert.Equal(t, "buyer@example.com", m.To)
		assert.True(t, m.HTML)
		assert.Contains(t, m.Body, up.URL)
		assert.Contains(t, m.Body, "Poster")
	case <-time.After(5 * time.Second):
		t.Fatal("confirmation mail not sent")
	}

	token := h.login(t)
	w = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/orders/%d/images", placed.OrderID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		Count  int                 `json:"count"`
		Images []orders.Attachment `json:"images"`
	}
	decodeData(t, w, &view)
	assert.Equal(t, 1, view.Count)
	require.Len(t, view.Images, 1)
	assert.Equal(t, up.URL, view.Images[0].URL)
	assert.Equal(t, "Poster", view.Images[0].ProductName)
	assert.Equal(t, up.ID, view.Images[0].MediaID)

	w = h.do(t, http.MethodGet, fmt.Sprintf("/admin/orders/%d/images", placed.OrderID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), up.URL)
	assert.Contains(t, w.Body.String(), "Poster")

	w = h.do(t, http.MethodGet, "/api/v1/admin/orders/999/images", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// referenced by the order, so an aged copy survives cleanup
	require.NoError(t, h.db.Model(&models.MediaFile{}).Where("id = ?", up.ID).
		Update("created_at", time.Now().UTC().Add(-48*time.Hour)).Error)
	w = h.do(t, http.MethodPost, "/api/v1/admin/cleanup/run", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, h.db.First(&models.MediaFile{}, up.ID).Error)
}

func TestAdminEndpoints(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{"username": "admin", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = h.do(t, http.MethodGet, "/api/v1/admin/settings", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := h.login(t)

	w = h.do(t, http.MethodPut, "/api/v1/admin/settings", gin.H{
		"categories":         []any{"7", 7, -1, "x"},
		"max_file_size":      "-3",
		"allowed_file_types": []any{"PNG", " webp ", "<b>"},
		"show_in_emails":     "off",
		"required_message":   "<b>needs a photo</b>",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/api/v1/admin/settings", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Settings settings.Settings `json:"settings"`
	}
	decodeData(t, w, &got)
	assert.Equal(t, []int{7}, got.Settings.Categories)
	assert.Equal(t, 3, got.Settings.MaxFileSizeMB)
	assert.Contains(t, got.Settings.AllowedExtensions, "png")
	assert.Contains(t, got.Settings.AllowedExtensions, "webp")
	assert.False(t, got.Settings.ShowInEmails)
	assert.Equal(t, "needs a photo", got.Settings.RequiredMessage)

	w = h.do(t, http.MethodGet, "/api/v1/admin/cleanup/log", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/admin/logout", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodGet, "/api/v1/admin/settings", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestManualCleanupRemovesOrphans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	orphan, err := h.library.Add(ctx, media.NewObject{Title: "Order image", FileName: "old.png", Body: bytes.NewReader(pngBytes), PluginOwned: true})
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&models.MediaFile{}).Where("id = ?", orphan.ID).
		Update("created_at", time.Now().UTC().Add(-25*time.Hour)).Error)

	token := h.login(t)
	w := h.do(t, http.MethodPost, "/api/v1/admin/cleanup/run", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Report cleanup.Report `json:"report"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, 1, data.Report.Deleted)

	w = h.do(t, http.MethodGet, "/api/v1/admin/cleanup/log", nil, token)
	var log struct {
		Entries []cleanup.LogEntry `json:"entries"`
	}
	decodeData(t, w, &log)
	require.Len(t, log.Entries, 1)
	assert.Equal(t, 1, log.Entries[0].ImagesDeleted)
	assert.Equal(t, orphan.URL, log.Entries[0].Details[0].URL)
}

func TestHealthMetricsAndNotFound(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, decodeData(t, w, nil).Code)
}

func (h *harness) setMaxFileSize(t *testing.T, mb int) {
	t.Helper()
	s := settings.Defaults()
	s.Categories = []int{7}
	s.MaxFileSizeMB = mb
	require.NoError(t, settings.NewStore(h.db, nil).Save(context.Background(), s))
}

func uploadError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	msg, _ := body["error"].(string)
	return msg
}

func TestUploadSizeBoundary(t *testing.T) {
	for _, tc := range []struct {
		name  string
		limit int
	}{
		{"default limit", settings.DefaultMaxFileSizeMB},
		{"limit above request cap", 10},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.setMaxFileSize(t, tc.limit)
			nonce := h.nonce(t)
			limit := tc.limit << 20

			w := h.upload(t, nonce, "file", "exact.jpg", bytes.Repeat([]byte("x"), limit))
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

			w = h.upload(t, nonce, "file", "over.jpg", bytes.Repeat([]byte("x"), limit+1))
			assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
			assert.Contains(t, uploadError(t, w), fmt.Sprintf("maximum allowed size is %d MB", tc.limit))
		})
	}
}

func TestUploadUnderLimitAboveRequestCapSucceeds(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 8, h.cfg.UploadMaxBodyMB)
	h.setMaxFileSize(t, 10)

	w := h.upload(t, h.nonce(t), "file", "big.jpg", bytes.Repeat([]byte("x"), 9<<20))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUploadCutOffBodyKeepsNonce(t *testing.T) {
	h := newHarness(t)
	h.setMaxFileSize(t, 1)

	// the body cap is the configured 8 MB; a 9 MB file is cut off inside the file part
	w := h.upload(t, h.nonce(t), "file", "huge.jpg", bytes.Repeat([]byte("x"), 9<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	msg := uploadError(t, w)
	assert.Equal(t, "The file exceeds the maximum allowed size.", msg)
	assert.NotContains(t, msg, "Security")
}

func TestCheckoutRejectsImageValueThatCannotBeRecorded(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/v1/checkout", gin.H{
		"items":  []gin.H{{"product_id": 1, "quantity": 1}},
		"fields": gin.H{"image_0": "photo.jpg", "product_id_0": "1"},
	}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var orderCount, metaCount int64
	require.NoError(t, h.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, h.db.Model(&models.PostMeta{}).Count(&metaCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, metaCount)
}
