/**
 * Region processor
 *
 * Validates user-drawn regions against image bounds, crops each region to
 * its own PNG, and applies a best-effort OCR enhancement pass (grayscale,
 * contrast, sharpen).
 */

package region

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"

	"github.com/wakka810/web-ocr/internal/apperr"
	"github.com/wakka810/web-ocr/internal/session"
)

// MinRegionSize is the smallest usable region edge in pixels. Anything
// smaller produces crops Tesseract and vision models cannot read.
const MinRegionSize = 10

// Validation is the outcome of bounds-checking a region list
type Validation struct {
	Valid  bool
	Errors []string
}

// Crop is one region extracted as an encoded image
type Crop struct {
	RegionID string
	Bytes    []byte
	MimeType string
}

// ValidateRegions checks every region against the image dimensions,
// collecting all violations rather than stopping at the first.
func ValidateRegions(imgWidth, imgHeight int, regions []session.Region) Validation {
	var errs []string

	for _, r := range regions {
		if r.X < 0 || r.Y < 0 {
			errs = append(errs, fmt.Sprintf("region %s: negative coordinates (%.0f, %.0f)", r.ID, r.X, r.Y))
		}
		if r.X+r.Width > float64(imgWidth) {
			errs = append(errs, fmt.Sprintf("region %s: exceeds image width (%.0f > %d)", r.ID, r.X+r.Width, imgWidth))
		}
		if r.Y+r.Height > float64(imgHeight) {
			errs = append(errs, fmt.Sprintf("region %s: exceeds image height (%.0f > %d)", r.ID, r.Y+r.Height, imgHeight))
		}
		if r.Width < MinRegionSize || r.Height < MinRegionSize {
			errs = append(errs, fmt.Sprintf("region %s: too small (%.0fx%.0f, minimum %dx%d pixels)",
				r.ID, r.Width, r.Height, MinRegionSize, MinRegionSize))
		}
	}

	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// CropRegions extracts each region's pixel rectangle as a PNG, in input
// order. Any single extraction failure aborts the whole call.
func CropRegions(img image.Image, regions []session.Region) ([]Crop, error) {
	crops := make([]Crop, 0, len(regions))

	for _, r := range regions {
		rect := image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height))

		cropped := imaging.Crop(img, rect)
		if cropped.Bounds().Empty() {
			return nil, apperr.ProcessingError(
				fmt.Sprintf("failed to crop region %s: empty result for rect %v", r.ID, rect), nil)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, cropped); err != nil {
			return nil, apperr.ProcessingError(
				fmt.Sprintf("failed to encode region %s", r.ID), err)
		}

		crops = append(crops, Crop{
			RegionID: r.ID,
			Bytes:    buf.Bytes(),
			MimeType: "image/png",
		})
	}

	return crops, nil
}

// OptimizeForOCR improves text legibility: grayscale, then contrast boost,
// then sharpening. Enhancement is best-effort; on any failure the original
// bytes come back with enhanced=false instead of an error.
func OptimizeForOCR(data []byte) (out []byte, enhanced bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, false
	}

	gray := imaging.Grayscale(img)
	contrasted := adjust.Contrast(gray, 0.3)
	sharpened := imaging.Sharpen(contrasted, 0.8)

	var buf bytes.Buffer
	if err := png.Encode(&buf, sharpened); err != nil {
		return data, false
	}

	return buf.Bytes(), true
}
