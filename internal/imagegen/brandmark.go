package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"
)

const (
	logoWidthShare = 0.08
	logoPadShare   = 0.03
)

// BrandMark is a decoded brand logo that can be stamped onto rendered images.
type BrandMark struct {
	logo image.Image
	png  []byte
}

// LoadBrandMark reads a logo file (PNG with transparency recommended).
func LoadBrandMark(path string) (*BrandMark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	return NewBrandMark(data)
}

// NewBrandMark decodes logo bytes in any registered format.
func NewBrandMark(data []byte) (*BrandMark, error) {
	logo, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}
	encoded, err := EnsurePNG(data)
	if err != nil {
		return nil, err
	}
	return &BrandMark{logo: logo, png: encoded}, nil
}

// Reference returns the logo as PNG for model-assisted placement.
func (b *BrandMark) Reference() []byte { return b.png }

// Placement returns where a logoW x logoH logo lands on a canvas canvasW wide:
// scaled down to 8% of the canvas width when larger, top-right, 3% padding.
func Placement(canvasW, logoW, logoH int) image.Rectangle {
	w, h := logoW, logoH
	maxW := int(float64(canvasW) * logoWidthShare)
	if w > maxW && w > 0 {
		ratio := float64(maxW) / float64(w)
		w = int(float64(logoW) * ratio)
		h = int(float64(logoH) * ratio)
	}
	pad := int(float64(canvasW) * logoPadShare)
	x := canvasW - w - pad
	return image.Rect(x, pad, x+w, pad+h)
}

// Composite alpha-blends the logo onto a PNG/JPEG/WebP image and returns PNG bytes.
func (b *BrandMark) Composite(data []byte) ([]byte, error) {
	base, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := base.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(canvas, canvas.Bounds(), base, bounds.Min, xdraw.Src)

	lb := b.logo.Bounds()
	dst := Placement(canvas.Bounds().Dx(), lb.Dx(), lb.Dy())
	if dst.Dx() == lb.Dx() && dst.Dy() == lb.Dy() {
		xdraw.Draw(canvas, dst, b.logo, lb.Min, xdraw.Over)
	} else {
		xdraw.CatmullRom.Scale(canvas, dst, b.logo, lb, xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
