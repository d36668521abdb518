// Package media validates the optional attachment and shrinks oversized images before
// they are sent inline to the model.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/PortNumber53/techpost-ai/internal/models"
)

// MaxImageSide is the longest side, in pixels, an image keeps after Normalize.
const MaxImageSide = 2048

// MaxImagePixels caps width*height before an image is fully decoded.
const MaxImagePixels = 40_000_000

var (
	ErrUnsupportedType = errors.New("unsupported attachment type")
	ErrEmpty           = errors.New("attachment is empty")
	ErrImageTooLarge   = errors.New("image dimensions too large")
)

var allowed = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

// DetectType sniffs the content type from the bytes and falls back to the declared type
// only when sniffing is inconclusive.
func DetectType(data []byte, declared string) string {
	sniffed := http.DetectContentType(data)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	if sniffed != "application/octet-stream" {
		return sniffed
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	return declared
}

// Normalize checks the attachment type and returns a copy ready to send. Images larger
// than MaxImageSide are downscaled and re-encoded as JPEG.
func Normalize(filename, declared string, data []byte) (*models.Attachment, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	mt := DetectType(data, declared)
	if !allowed[mt] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt)
	}
	att := &models.Attachment{Filename: filename, MIMEType: mt, Data: data}
	if !strings.HasPrefix(mt, "image/") {
		return att, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	if cfg.Width <= MaxImageSide && cfg.Height <= MaxImageSide {
		return att, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	w, h := fitWithin(cfg.Width, cfg.Height, MaxImageSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	att.MIMEType = "image/jpeg"
	att.Data = buf.Bytes()
	return att, nil
}

func fitWithin(w, h, max int) (int, int) {
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
