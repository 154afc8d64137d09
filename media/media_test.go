package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/testutil"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newLibrary(t *testing.T) (*Library, *LocalStore) {
	t.Helper()
	db := testutil.NewDB(t, &models.MediaFile{})
	store, err := NewLocalStore(t.TempDir(), "/static/uploads/")
	require.NoError(t, err)
	return NewLibrary(db, store, nil), store
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/static/uploads")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "2024/05/a.jpg", strings.NewReader("data"), 4, "image/jpeg"))
	b, err := os.ReadFile(store.Path("2024/05/a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
	assert.Equal(t, "/static/uploads/2024/05/a.jpg", store.URL("2024/05/a.jpg"))

	assert.Error(t, store.Put(ctx, "2024/05/a.jpg", strings.NewReader("again"), 5, ""), "existing keys are never overwritten")

	require.NoError(t, store.Delete(ctx, "2024/05/a.jpg"))
	require.NoError(t, store.Delete(ctx, "2024/05/a.jpg"), "deleting a missing object is fine")
}

func TestLibraryAdd(t *testing.T) {
	lib, store := newLibrary(t)
	lib.now = func() time.Time { return time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC) }

	content := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 5000)...)
	row, err := lib.Add(context.Background(), NewObject{
		Title:           "Order image - Cake",
		FileName:        "My Photo!.PNG",
		Size:            int64(len(content)),
		Body:            bytes.NewReader(content),
		PluginOwned:     true,
		ParentProductID: 7,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(row.StorageKey, "2024/05/"))
	assert.True(t, strings.HasSuffix(row.StorageKey, "_My-Photo.png"))
	assert.Equal(t, store.URL(row.StorageKey), row.URL)
	assert.Equal(t, "image/png", row.MimeType)
	assert.True(t, row.PluginOwned)
	require.NotNil(t, row.ParentProductID)
	assert.EqualValues(t, 7, *row.ParentProductID)

	stored, err := os.ReadFile(store.Path(row.StorageKey))
	require.NoError(t, err)
	assert.Equal(t, content, stored, "sniffed bytes must not be lost")

	found, err := lib.FindOwnedByURL(context.Background(), row.URL)
	require.NoError(t, err)
	assert.Equal(t, row.ID, found.ID)

	_, err = lib.FindOwnedByURL(context.Background(), "/nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibraryAddRollsBackBlobWhenRowFails(t *testing.T) {
	lib, store := newLibrary(t)
	require.NoError(t, lib.db.Migrator().DropTable(&models.MediaFile{}))

	_, err := lib.Add(context.Background(), NewObject{FileName: "a.jpg", Size: 3, Body: strings.NewReader("abc"), PluginOwned: true})
	require.Error(t, err)

	var files int
	require.NoError(t, filepath.WalkDir(store.root, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files++
		}
		return err
	}))
	assert.Zero(t, files)
}

type failingBlobs struct{ *LocalStore }

func (failingBlobs) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("disk full")
}

func TestLibraryAddBlobFailureWritesNoRow(t *testing.T) {
	db := testutil.NewDB(t, &models.MediaFile{})
	store, err := NewLocalStore(t.TempDir(), "/static/uploads")
	require.NoError(t, err)
	lib := NewLibrary(db, failingBlobs{store}, nil)

	_, err = lib.Add(context.Background(), NewObject{FileName: "a.jpg", Size: 3, Body: strings.NewReader("abc")})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.MediaFile{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCandidatesAndRemove(t *testing.T) {
	lib, store := newLibrary(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)

	add := func(at time.Time, owned bool) models.MediaFile {
		lib.now = func() time.Time { return at }
		row, err := lib.Add(ctx, NewObject{FileName: "x.jpg", Size: 1, Body: strings.NewReader("x"), PluginOwned: owned})
		require.NoError(t, err)
		return row
	}
	old := add(now.Add(-48*time.Hour), true)
	add(now.Add(-48*time.Hour), false)
	add(now.Add(-time.Hour), true)

	rows, err := lib.Candidates(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, old.ID, rows[0].ID)

	require.NoError(t, lib.Remove(ctx, old))
	_, err = os.Stat(store.Path(old.StorageKey))
	assert.True(t, os.IsNotExist(err))
	rows, err = lib.Candidates(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)
}
