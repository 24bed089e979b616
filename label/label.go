// Package label renders material barcodes as scannable CODE128 images.
package label

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
)

// Default sizes match the printed labels on the order table.
const (
	DefaultWidth  = 300
	DefaultHeight = 60
)

// PNG encodes code as a CODE128 barcode scaled to width x height.
func PNG(code string, width, height int) ([]byte, error) {
	if code == "" {
		return nil, fmt.Errorf("barcode content is empty")
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	bc, err := code128.Encode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q as CODE128: %w", code, err)
	}
	// Scaling below the natural width would drop bars
	if w := bc.Bounds().Dx(); width < w {
		width = w
	}
	scaled, err := barcode.Scale(bc, width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to scale barcode: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
