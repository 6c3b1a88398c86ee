package imagestore

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakka810/web-ocr/internal/apperr"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("image/png"))
	assert.True(t, Supported("image/jpeg"))
	assert.True(t, Supported("image/gif"))
	assert.True(t, Supported("image/webp"))
	assert.False(t, Supported("application/pdf"))
	assert.False(t, Supported("text/plain"))
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := encodePNG(t, 64, 48)

	img, err := store.Save(data, "image/png")
	require.NoError(t, err)
	assert.NotEmpty(t, img.ID)
	assert.Equal(t, img.ID+".png", img.Filename)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 48, img.Height)
	assert.Equal(t, int64(len(data)), img.Size)

	got, meta, err := store.Get(img.ID)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, img.ID, meta.ID)
	assert.Equal(t, 64, meta.Width)
}

func TestSaveRejectsUndecodableData(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save([]byte("not an image at all"), "image/png")

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeUploadError, appErr.Code)
}

func TestSaveRejectsUnsupportedMime(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(encodePNG(t, 10, 10), "application/pdf")
	assert.Error(t, err)
}

func TestGetUnknownID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get("does-not-exist")

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeImageNotFound, appErr.Code)
}

func TestGetRejectsPathTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"../secret", "a/b", `a\b`, "x.png", ""} {
		_, _, err := store.Get(id)
		assert.Error(t, err, "id %q should not resolve", id)
	}
}

func TestGetRecoversFromDiskAfterRestart(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir)
	require.NoError(t, err)

	img, err := first.Save(encodePNG(t, 32, 32), "image/png")
	require.NoError(t, err)

	// A new store over the same directory has an empty index but still
	// resolves previously saved ids.
	second, err := NewStore(dir)
	require.NoError(t, err)

	data, meta, err := second.Get(img.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, img.ID, meta.ID)
	assert.Equal(t, 32, meta.Width)
}
