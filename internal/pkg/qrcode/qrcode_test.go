package qrcode

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
)

func TestSVG(t *testing.T) {
	c, err := Encode("https://app.example.ph/rp/claims/0123456789abcdef")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	svg := c.SVG(0)
	if !strings.HasPrefix(svg, "<svg ") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatalf("not svg markup: %.60s", svg)
	}
	if !strings.Contains(svg, `width="256"`) {
		t.Fatalf("default size not applied")
	}
	if !strings.Contains(svg, "h1v1h-1z") {
		t.Fatalf("no dark modules rendered")
	}
}

func TestPNG(t *testing.T) {
	c, err := Encode("https://app.example.ph/rp/claims/abc")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := c.PNG(200)
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 200 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}

	url, err := c.PNGDataURL(64)
	if err != nil || !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected data url %.40s %v", url, err)
	}
}
