package region

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakka810/web-ocr/internal/session"
)

func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestValidateRegionsAccepted(t *testing.T) {
	regions := []session.Region{
		{ID: "r1", X: 0, Y: 0, Width: 50, Height: 50},
		{ID: "r2", X: 50, Y: 50, Width: 50, Height: 50},
	}

	v := ValidateRegions(100, 100, regions)

	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)
}

func TestValidateRegionsMinimumSizeBoundary(t *testing.T) {
	// Exactly 10x10 is the smallest accepted region.
	v := ValidateRegions(100, 100, []session.Region{
		{ID: "edge", X: 0, Y: 0, Width: 10, Height: 10},
	})
	assert.True(t, v.Valid)

	v = ValidateRegions(100, 100, []session.Region{
		{ID: "tiny", X: 0, Y: 0, Width: 9, Height: 10},
	})
	assert.False(t, v.Valid)
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "too small")
}

func TestValidateRegionsNegativeCoordinates(t *testing.T) {
	v := ValidateRegions(100, 100, []session.Region{
		{ID: "neg", X: -5, Y: 10, Width: 20, Height: 20},
	})

	assert.False(t, v.Valid)
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "negative coordinates")
}

func TestValidateRegionsOutOfBounds(t *testing.T) {
	v := ValidateRegions(100, 80, []session.Region{
		{ID: "wide", X: 90, Y: 0, Width: 20, Height: 20},
		{ID: "tall", X: 0, Y: 70, Width: 20, Height: 20},
	})

	assert.False(t, v.Valid)
	require.Len(t, v.Errors, 2)
	assert.Contains(t, v.Errors[0], "exceeds image width")
	assert.Contains(t, v.Errors[1], "exceeds image height")
}

func TestValidateRegionsCollectsAllViolations(t *testing.T) {
	// One region violating several rules reports each of them.
	v := ValidateRegions(100, 100, []session.Region{
		{ID: "bad", X: -1, Y: -1, Width: 5, Height: 200},
	})

	assert.False(t, v.Valid)
	assert.GreaterOrEqual(t, len(v.Errors), 3)
}

func TestValidateRegionsExactFit(t *testing.T) {
	// A region covering the full image is in bounds.
	v := ValidateRegions(100, 100, []session.Region{
		{ID: "full", X: 0, Y: 0, Width: 100, Height: 100},
	})
	assert.True(t, v.Valid)
}

func TestCropRegionsProducesOneCropPerRegion(t *testing.T) {
	img := testImage(100, 100)
	regions := []session.Region{
		{ID: "a", X: 0, Y: 0, Width: 50, Height: 40},
		{ID: "b", X: 50, Y: 60, Width: 30, Height: 20},
	}

	crops, err := CropRegions(img, regions)
	require.NoError(t, err)
	require.Len(t, crops, 2)

	// Order follows the input region order.
	assert.Equal(t, "a", crops[0].RegionID)
	assert.Equal(t, "b", crops[1].RegionID)

	for _, c := range crops {
		assert.Equal(t, "image/png", c.MimeType)
		decoded, err := png.Decode(bytes.NewReader(c.Bytes))
		require.NoError(t, err)
		bounds := decoded.Bounds()
		if c.RegionID == "a" {
			assert.Equal(t, 50, bounds.Dx())
			assert.Equal(t, 40, bounds.Dy())
		} else {
			assert.Equal(t, 30, bounds.Dx())
			assert.Equal(t, 20, bounds.Dy())
		}
	}
}

func TestCropRegionsEmptyResultFails(t *testing.T) {
	img := testImage(100, 100)

	// Rectangle entirely outside the image crops to nothing.
	_, err := CropRegions(img, []session.Region{
		{ID: "outside", X: 500, Y: 500, Width: 50, Height: 50},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")
}

func TestOptimizeForOCREnhancesDecodableImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(40, 40)))

	out, enhanced := OptimizeForOCR(buf.Bytes())

	assert.True(t, enhanced)
	require.NotEmpty(t, out)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, decoded.Bounds().Dx())

	// Grayscale pass: every pixel should have equal channels.
	r, g, b, _ := decoded.At(20, 20).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestOptimizeForOCRFallsBackOnGarbage(t *testing.T) {
	garbage := []byte("definitely not an image")

	out, enhanced := OptimizeForOCR(garbage)

	assert.False(t, enhanced)
	assert.Equal(t, garbage, out)
}
