// Package qrcode renders share URLs as QR codes in SVG and PNG.
package qrcode

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	qr "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered edge length in pixels
const DefaultSize = 256

// Code is an encoded QR matrix, quiet zone included
type Code struct {
	modules [][]bool
}

// Encode builds the matrix for content at medium error correction
func Encode(content string) (*Code, error) {
	q, err := qr.New(content, qr.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return &Code{modules: q.Bitmap()}, nil
}

// Modules is the matrix edge length
func (c *Code) Modules() int { return len(c.modules) }

// SVG renders the matrix as scalable markup, one path for all dark modules
func (c *Code) SVG(size int) string {
	if size <= 0 {
		size = DefaultSize
	}
	n := len(c.modules)

	var path strings.Builder
	for y, row := range c.modules {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&path, "M%d %dh1v1h-1z", x, y)
			}
		}
	}

	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`+
			`<rect width="%d" height="%d" fill="#ffffff"/><path fill="#000000" d="%s"/></svg>`,
		size, size, n, n, n, n, path.String())
}

// PNG renders the matrix one pixel per module and scales it up with nearest
// neighbour so module edges stay sharp.
func (c *Code) PNG(size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	n := len(c.modules)
	img := image.NewGray(image.Rect(0, 0, n, n))
	for y, row := range c.modules {
		for x, dark := range row {
			v := color.Gray{Y: 0xff}
			if dark {
				v = color.Gray{Y: 0x00}
			}
			img.SetGray(x, y, v)
		}
	}

	scaled := imaging.Resize(img, size, size, imaging.NearestNeighbor)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PNGDataURL is PNG wrapped as a data: URL for direct embedding
func (c *Code) PNGDataURL(size int) (string, error) {
	b, err := c.PNG(size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}
