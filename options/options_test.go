package options

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/orderimages/models"
	"github.com/cppla/orderimages/testutil"
)

type sample struct {
	A int    `json:"a"`
	B string `json:"b"`
}

func TestPutGetDelete(t *testing.T) {
	db := testutil.NewDB(t, &models.Option{})
	ctx := context.Background()

	var got sample
	ok, err := Get(ctx, db, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Put(ctx, db, "k", sample{A: 1, B: "x"}))
	require.NoError(t, Put(ctx, db, "k", sample{A: 2, B: "y"}))

	ok, err = Get(ctx, db, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sample{A: 2, B: "y"}, got)

	var count int64
	require.NoError(t, db.Model(&models.Option{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	require.NoError(t, Delete(ctx, db, "k"))
	require.NoError(t, Delete(ctx, db, "k"))
	ok, err = Get(ctx, db, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddKeepsExisting(t *testing.T) {
	db := testutil.NewDB(t, &models.Option{})
	ctx := context.Background()

	added, err := Add(ctx, db, "k", sample{A: 1})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = Add(ctx, db, "k", sample{A: 9})
	require.NoError(t, err)
	assert.False(t, added)

	var got sample
	_, err = Get(ctx, db, "k", &got)
	require.NoError(t, err)
	assert.Equal(t, 1, got.A)
}
