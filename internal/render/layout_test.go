// internal/render/layout_test.go
package render

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hardware-service/internal/model"
)

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleData() *model.ReceiptData {
	return &model.ReceiptData{
		BusinessName:    "Corner Mart",
		BusinessAddress: "12 Galle Road, Colombo 03",
		BusinessContact: "+94 11 234 5678",
		Items: []model.ReceiptItem{
			{SKU: "MLK-1L", Name: "Fresh Milk 1L", Quantity: 2, UnitPrice: amount("450.00")},
			{SKU: "BRD-W", Name: "White Bread", Quantity: 1, UnitPrice: amount("220.00"), Discount: amount("20.00")},
		},
		Subtotal:      amount("1100.00"),
		Discount:      amount("20.00"),
		Tax:           amount("86.40"),
		Total:         amount("1166.40"),
		Paid:          amount("1200.00"),
		Change:        amount("33.60"),
		TransactionID: "TX-1001",
		Cashier:       "Nadeesha",
		Timestamp:     time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC),
	}
}

func TestLayoutIsDeterministic(t *testing.T) {
	tmpl := model.DefaultReceiptTemplate()
	data := sampleData()

	first, err := Layout(tmpl, data)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	second, err := Layout(tmpl, data)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}

	if first.Text() != second.Text() {
		t.Error("same template and data produced different output")
	}
}

func TestLayoutRespectsPaperWidth(t *testing.T) {
	tests := []struct {
		paperWidth int
		wantCols   int
	}{
		{paperWidth: 80, wantCols: 48},
		{paperWidth: 58, wantCols: 32},
	}

	for _, tt := range tests {
		tmpl := model.DefaultReceiptTemplate()
		tmpl.PaperWidth = tt.paperWidth

		doc, err := Layout(tmpl, sampleData())
		if err != nil {
			t.Fatalf("Layout(%dmm) failed: %v", tt.paperWidth, err)
		}
		if doc.Width != tt.wantCols {
			t.Errorf("Layout(%dmm) width = %d, want %d", tt.paperWidth, doc.Width, tt.wantCols)
		}
		for i, line := range doc.Lines {
			if len(line.Text) > tt.wantCols {
				t.Errorf("line %d exceeds %d columns: %q", i, tt.wantCols, line.Text)
			}
		}
	}
}

func TestLayoutRejectsUnknownPaperWidth(t *testing.T) {
	tmpl := model.DefaultReceiptTemplate()
	tmpl.PaperWidth = 76

	if _, err := Layout(tmpl, sampleData()); err == nil {
		t.Error("expected error for unsupported paper width")
	}
}

func TestLayoutRejectsNonPositiveQuantity(t *testing.T) {
	data := sampleData()
	data.Items[0].Quantity = 0

	if _, err := Layout(model.DefaultReceiptTemplate(), data); err == nil {
		t.Error("expected error for zero quantity item")
	}
}

func TestTotalRightAligned(t *testing.T) {
	doc, err := Layout(model.DefaultReceiptTemplate(), sampleData())
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}

	var totalLine *Line
	for i := range doc.Lines {
		if strings.HasPrefix(doc.Lines[i].Text, "TOTAL") {
			totalLine = &doc.Lines[i]
			break
		}
	}
	if totalLine == nil {
		t.Fatal("no TOTAL line in document")
	}
	if len(totalLine.Text) != doc.Width {
		t.Errorf("TOTAL line is %d columns, want amount flush at column %d: %q",
			len(totalLine.Text), doc.Width, totalLine.Text)
	}
	if !strings.HasSuffix(totalLine.Text, "LKR 1166.40") {
		t.Errorf("TOTAL line = %q, want LKR 1166.40 at the right edge", totalLine.Text)
	}
	if !totalLine.Bold || !totalLine.Wide {
		t.Error("grand total should be emphasized when bold_total is set")
	}
}

func TestTotalsArithmetic(t *testing.T) {
	data := sampleData()
	sum := data.Subtotal.Sub(data.Discount).Add(data.Tax)
	if !sum.Equal(data.Total) {
		t.Fatalf("fixture inconsistent: subtotal-discount+tax = %s, total = %s", sum, data.Total)
	}

	doc, err := Layout(model.DefaultReceiptTemplate(), data)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	text := doc.Text()
	for _, want := range []string{"LKR 1100.00", "LKR 20.00", "LKR 86.40", "LKR 1166.40"} {
		if !strings.Contains(text, want) {
			t.Errorf("receipt missing amount %q", want)
		}
	}
}

func TestDisabledSectionsAreOmitted(t *testing.T) {
	tmpl := model.DefaultReceiptTemplate()
	tmpl.Sections.Header.Enabled = false
	tmpl.Sections.Footer.Enabled = false

	doc, err := Layout(tmpl, sampleData())
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	text := doc.Text()
	if strings.Contains(text, "Corner Mart") {
		t.Error("disabled header still rendered business name")
	}
	if strings.Contains(text, "Thank you") {
		t.Error("disabled footer still rendered thank-you text")
	}
	if !strings.Contains(text, "Fresh Milk 1L") {
		t.Error("items section missing")
	}
}

func TestFooterBarcodeAndQRLines(t *testing.T) {
	tmpl := model.DefaultReceiptTemplate()
	tmpl.Sections.Footer.ShowBarcode = true
	tmpl.Sections.Footer.ShowQRCode = true

	doc, err := Layout(tmpl, sampleData())
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}

	var barcode, qr bool
	for _, line := range doc.Lines {
		if line.Barcode == "TX-1001" {
			barcode = true
		}
		if line.QRCode == "TX-1001" {
			qr = true
		}
	}
	if !barcode {
		t.Error("no barcode line for transaction id")
	}
	if !qr {
		t.Error("no qr line for transaction id")
	}
}

func TestApplyBranding(t *testing.T) {
	doc, err := Layout(model.DefaultReceiptTemplate(), sampleData())
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	bodyLen := len(doc.Lines)

	ApplyBranding(doc, model.PrinterProfile{
		HeaderText:  "Thank you for shopping\nOpen daily 8-22",
		FooterText:  "No refunds without receipt",
		LogoEnabled: true,
	})

	// Logo, two header lines on top, one footer line at the bottom.
	if got, want := len(doc.Lines), bodyLen+4; got != want {
		t.Fatalf("line count = %d, want %d", got, want)
	}
	if !doc.Lines[0].Logo {
		t.Error("first line is not the logo slot")
	}
	header := doc.Lines[1]
	if !header.Bold || header.Alignment != model.AlignCenter {
		t.Errorf("header line = %+v, want centered bold", header)
	}
	if strings.TrimSpace(header.Text) != "Thank you for shopping" {
		t.Errorf("header text = %q", header.Text)
	}
	footer := doc.Lines[len(doc.Lines)-1]
	if strings.TrimSpace(footer.Text) != "No refunds without receipt" {
		t.Errorf("footer text = %q", footer.Text)
	}
	if len(footer.Text) > doc.Width {
		t.Errorf("footer exceeds width: %d > %d", len(footer.Text), doc.Width)
	}
}

func TestApplyBrandingEmptyProfileIsNoop(t *testing.T) {
	doc, err := Layout(model.DefaultReceiptTemplate(), sampleData())
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	before := doc.Text()

	ApplyBranding(doc, model.DefaultPrinterProfile())

	if doc.Text() != before {
		t.Error("document changed with no branding configured")
	}
}

func TestAlignText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		align model.Alignment
		want  string
	}{
		{name: "left untouched", text: "abc", width: 8, align: model.AlignLeft, want: "abc"},
		{name: "center left biased", text: "abc", width: 8, align: model.AlignCenter, want: "  abc"},
		{name: "right flush", text: "abc", width: 8, align: model.AlignRight, want: "     abc"},
		{name: "overflow untouched", text: "abcdefghij", width: 8, align: model.AlignCenter, want: "abcdefghij"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AlignText(tt.text, tt.width, tt.align); got != tt.want {
				t.Errorf("AlignText(%q, %d, %s) = %q, want %q", tt.text, tt.width, tt.align, got, tt.want)
			}
		})
	}
}
