package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// maxEdge caps the longest image edge before re-encoding.
	maxEdge = 1920

	startQuality = 85
	floorQuality = 30
	qualityStep  = 10
)

// EnsureUnder returns image bytes no larger than limit. Payloads already
// under the limit are returned unmodified. Oversized payloads are decoded,
// capped at maxEdge on the longest edge, and re-encoded as JPEG with the
// quality lowered stepwise from startQuality to floorQuality; if the floor
// still overshoots, dimensions shrink by 20% per round until the result
// fits. The returned mime type reflects the output encoding.
func EnsureUnder(data []byte, mimeType string, limit int) ([]byte, string, error) {
	if limit <= 0 || len(data) <= limit {
		return data, DetectMime(mimeType, data), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image for compression: %w", err)
	}

	img = scaleDown(img, maxEdge)
	for {
		for quality := startQuality; quality >= floorQuality; quality -= qualityStep {
			out, err := encodeJPEG(img, quality)
			if err != nil {
				return nil, "", err
			}
			if len(out) <= limit {
				return out, "image/jpeg", nil
			}
		}

		bounds := img.Bounds()
		next := max(bounds.Dx(), bounds.Dy()) * 4 / 5
		if next < 16 {
			return nil, "", fmt.Errorf("image cannot be compressed under %d bytes", limit)
		}
		img = scaleDown(img, next)
	}
}

func scaleDown(img image.Image, edge int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := max(w, h)
	if longest <= edge {
		return img
	}

	scale := float64(edge) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
