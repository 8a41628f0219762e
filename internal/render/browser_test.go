// internal/render/browser_test.go
package render

import (
	"image"
	"image/color"
	"strings"
	"testing"
)

func TestRenderHTML(t *testing.T) {
	doc := &Document{
		Width: 32,
		Lines: []Line{
			{Text: "       Corner Mart", Bold: true, Wide: true},
			{Text: "--------------------------------", Separator: true},
			{Text: "2x Fresh Milk 1L          900.00"},
			{Text: "TOTAL                 LKR 900.00", Bold: true},
		},
	}

	html, err := RenderHTML(doc)
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	if !strings.Contains(html, `<span class="wide">       Corner Mart</span>`) {
		t.Error("wide line not wrapped in wide span")
	}
	if !strings.Contains(html, `<span class="bold">TOTAL`) {
		t.Error("bold line not wrapped in bold span")
	}
	if !strings.Contains(html, "2x Fresh Milk 1L          900.00") {
		t.Error("plain line missing from html")
	}
	if !strings.Contains(html, "width: 256px") {
		t.Error("page width not derived from document width")
	}
}

func TestRenderHTMLEscapesContent(t *testing.T) {
	doc := &Document{Width: 32, Lines: []Line{{Text: "<script>alert(1)</script>"}}}

	html, err := RenderHTML(doc)
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	if strings.Contains(html, "<script>alert") {
		t.Error("line content not escaped")
	}
}

func TestRenderHTMLNilDocument(t *testing.T) {
	if _, err := RenderHTML(nil); err == nil {
		t.Error("expected error for nil document")
	}
}

func TestRasterCommandHeader(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 3))

	cmd := RasterCommand(img)

	wantHeader := []byte{0x1D, 0x76, 0x30, 0x00, 0x02, 0x00, 0x03, 0x00}
	if len(cmd) != len(wantHeader)+2*3 {
		t.Fatalf("command length = %d, want %d", len(cmd), len(wantHeader)+6)
	}
	for i, b := range wantHeader {
		if cmd[i] != b {
			t.Errorf("header byte %d = %#02x, want %#02x", i, cmd[i], b)
		}
	}
}

func TestRasterCommandThreshold(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 1))
	for x := 0; x < 8; x++ {
		img.SetGray(x, 0, color.Gray{Y: 0xFF})
	}
	img.SetGray(0, 0, color.Gray{Y: 0x00}) // black prints
	img.SetGray(3, 0, color.Gray{Y: 0x10})

	cmd := RasterCommand(img)

	data := cmd[8:]
	if len(data) != 1 {
		t.Fatalf("raster payload = %d bytes, want 1", len(data))
	}
	// bit 7 is the leftmost pixel
	if data[0] != 0b1001_0000 {
		t.Errorf("raster byte = %#08b, want 10010000", data[0])
	}
}

func TestRasterCommandTruncatesToByteBoundary(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 13, 2))

	cmd := RasterCommand(img)

	// 13px truncates to 8px, one byte per row
	if cmd[4] != 0x01 || cmd[5] != 0x00 {
		t.Errorf("row bytes = %#02x %#02x, want 01 00", cmd[4], cmd[5])
	}
	if len(cmd) != 8+2 {
		t.Errorf("command length = %d, want 10", len(cmd))
	}
}
