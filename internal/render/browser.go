// internal/render/browser.go
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"image"
	_ "image/png"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"hardware-service/internal/model"
)

// receiptHTML mirrors the plain-text layout in a monospace page so the
// rasterized receipt matches the character printout line for line.
const receiptHTML = `<!DOCTYPE html>
<html>
<head><style>
body { margin: 0; padding: 8px; background: #fff; width: {{.PixelWidth}}px; }
pre  { font-family: "Courier New", monospace; font-size: 14px; line-height: 1.2; margin: 0; }
.bold { font-weight: bold; }
.wide { font-size: 24px; font-weight: bold; }
</style></head>
<body><pre>{{range .Lines}}{{if .Wide}}<span class="wide">{{.Text}}</span>{{else if .Bold}}<span class="bold">{{.Text}}</span>{{else}}{{.Text}}{{end}}
{{end}}</pre></body>
</html>`

var receiptTemplate = template.Must(template.New("receipt").Parse(receiptHTML))

// RenderHTML renders the laid-out document as a standalone HTML page.
func RenderHTML(doc *Document) (string, error) {
	if doc == nil {
		return "", &model.EncodingError{Reason: "nil document"}
	}

	// ~8px per character cell at 14px Courier.
	data := struct {
		PixelWidth int
		Lines      []Line
	}{
		PixelWidth: doc.Width * 8,
		Lines:      doc.Lines,
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render receipt html: %w", err)
	}
	return buf.String(), nil
}

// BrowserPrinter rasterizes receipts through headless Chrome for printers
// that take raster images instead of line text, and for customer-facing
// display targets.
type BrowserPrinter struct {
	logger     *zap.Logger
	execPath   string
	settleTime time.Duration
}

// BrowserOption adjusts the browser printer.
type BrowserOption func(*BrowserPrinter)

// WithExecPath pins the Chrome binary location.
func WithExecPath(path string) BrowserOption {
	return func(b *BrowserPrinter) { b.execPath = path }
}

// NewBrowserPrinter creates a browser-backed rasterizer.
func NewBrowserPrinter(logger *zap.Logger, opts ...BrowserOption) *BrowserPrinter {
	b := &BrowserPrinter{
		logger:     logger.With(zap.String("component", "browser_printer")),
		settleTime: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Screenshot renders the document to a full-page PNG.
func (b *BrowserPrinter) Screenshot(ctx context.Context, doc *Document) ([]byte, error) {
	html, err := RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	var cdpCtx context.Context
	var cancel context.CancelFunc

	if b.execPath != "" {
		opts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(b.execPath),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-gpu", true),
		)
		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
		defer allocCancel()
		cdpCtx, cancel = chromedp.NewContext(allocCtx)
	} else {
		cdpCtx, cancel = chromedp.NewContext(ctx)
	}
	defer cancel()

	var pngBytes []byte
	err = chromedp.Run(cdpCtx,
		chromedp.Navigate("data:text/html,"+urlEncode(html)),
		chromedp.Sleep(b.settleTime),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, err := page.CaptureScreenshot().
				WithCaptureBeyondViewport(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pngBytes = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed rasterizing receipt: %w", err)
	}

	b.logger.Debug("Receipt rasterized", zap.Int("png_bytes", len(pngBytes)))
	return pngBytes, nil
}

// PrintRaster rasterizes the document and converts it to an ESC/POS raster
// image command stream.
func (b *BrowserPrinter) PrintRaster(ctx context.Context, doc *Document) ([]byte, error) {
	pngBytes, err := b.Screenshot(ctx, doc)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("failed decoding raster: %w", err)
	}
	return RasterCommand(img), nil
}

// urlEncode encodes HTML into a data URL fragment.
func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// RasterCommand converts an image to the GS v 0 raster bit image command.
// Width is truncated to a byte boundary; pixels darker than mid-gray print.
func RasterCommand(img image.Image) []byte {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width%8 != 0 {
		width = width - (width % 8)
	}

	rowBytes := width / 8
	raster := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray := (r + g + b) / 3
			if gray < 0x8000 {
				raster[y*rowBytes+x/8] |= 1 << (7 - x%8)
			}
		}
	}

	header := []byte{
		0x1D, 0x76, 0x30, 0x00,
		byte(rowBytes), byte(rowBytes >> 8),
		byte(height), byte(height >> 8),
	}
	return append(header, raster...)
}
