// internal/render/layout.go
package render

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"hardware-service/internal/model"
)

// Line is one rendered row of the receipt. Styling is carried as flags, never
// as literal control characters, so the same document can feed the plain-text
// buffer, the ESC/POS encoder and the browser target.
type Line struct {
	Text      string          `json:"text"`
	Alignment model.Alignment `json:"alignment"`
	Bold      bool            `json:"bold"`
	Wide      bool            `json:"wide"` // double width/height
	Separator bool            `json:"separator"`
	Logo      bool            `json:"logo,omitempty"` // print the device's stored logo
	Barcode   string          `json:"barcode,omitempty"`
	QRCode    string          `json:"qr_code,omitempty"`
}

// Document is the layout engine output: the ordered lines plus the paper
// width they were composed for.
type Document struct {
	Width int    `json:"width"`
	Lines []Line `json:"lines"`
}

// Text returns the fixed-width plain-text buffer. Rendering is deterministic:
// the same (template, data) pair always yields byte-identical output.
func (d *Document) Text() string {
	var b strings.Builder
	for _, line := range d.Lines {
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// WidthForPaper maps paper width in millimeters to characters per line.
func WidthForPaper(paperWidth int) int {
	if paperWidth == 80 {
		return 48
	}
	return 32
}

// ApplyBranding folds the printer profile's fixed chrome into a laid-out
// document: the stored logo and header text ahead of the body, footer text
// after it. Branding lines are always centered.
func ApplyBranding(doc *Document, profile model.PrinterProfile) {
	if doc == nil {
		return
	}

	var top []Line
	if profile.LogoEnabled {
		top = append(top, Line{Logo: true, Alignment: model.AlignCenter})
	}
	for _, text := range brandingLines(profile.HeaderText) {
		top = append(top, Line{
			Text:      AlignText(text, doc.Width, model.AlignCenter),
			Alignment: model.AlignCenter,
			Bold:      true,
		})
	}
	if len(top) > 0 {
		doc.Lines = append(top, doc.Lines...)
	}

	for _, text := range brandingLines(profile.FooterText) {
		doc.Lines = append(doc.Lines, Line{
			Text:      AlignText(text, doc.Width, model.AlignCenter),
			Alignment: model.AlignCenter,
		})
	}
}

func brandingLines(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// AlignText pads text with spaces to width according to align. Centering is
// left-biased: leftPad = max(0, floor((width-len)/2)). Text longer than the
// width is left untouched.
func AlignText(text string, width int, align model.Alignment) string {
	switch align {
	case model.AlignCenter:
		pad := (width - len(text)) / 2
		if pad < 0 {
			pad = 0
		}
		return strings.Repeat(" ", pad) + text
	case model.AlignRight:
		pad := width - len(text)
		if pad < 0 {
			pad = 0
		}
		return strings.Repeat(" ", pad) + text
	default:
		return text
	}
}

// separatorChar maps the template border style to its separator character.
func separatorChar(style model.BorderStyle) string {
	if style == model.BorderDouble {
		return "="
	}
	return "-"
}

// formatAmount renders a money amount as the totals section prints it.
func formatAmount(d decimal.Decimal) string {
	return "LKR " + d.StringFixed(2)
}

// Layout renders a template plus a transaction snapshot into a Document.
// Sections are independently toggleable; a malformed combination (no items on
// an items-enabled template, unknown paper width) is an encoding error.
func Layout(tmpl *model.ReceiptTemplate, data *model.ReceiptData) (*Document, error) {
	if tmpl == nil {
		return nil, &model.EncodingError{Reason: "template is nil"}
	}
	if data == nil {
		return nil, &model.EncodingError{Reason: "receipt data is nil"}
	}
	if tmpl.PaperWidth != 58 && tmpl.PaperWidth != 80 {
		return nil, &model.EncodingError{Reason: fmt.Sprintf("unsupported paper width %dmm", tmpl.PaperWidth)}
	}

	doc := &Document{Width: WidthForPaper(tmpl.PaperWidth)}
	sep := separatorChar(tmpl.Styles.BorderStyle)

	if tmpl.Sections.Header.Enabled {
		layoutHeader(doc, tmpl, data, sep)
	}
	if tmpl.Sections.Items.Enabled {
		if err := layoutItems(doc, tmpl, data); err != nil {
			return nil, err
		}
	}
	if tmpl.Sections.Totals.Enabled {
		layoutTotals(doc, tmpl, data, sep)
	}
	if tmpl.Sections.Footer.Enabled {
		layoutFooter(doc, tmpl, data)
	}
	return doc, nil
}

func layoutHeader(doc *Document, tmpl *model.ReceiptTemplate, data *model.ReceiptData, sep string) {
	header := tmpl.Sections.Header

	if header.ShowLogo {
		doc.push(Line{Text: AlignText("[LOGO]", doc.Width, model.AlignCenter), Alignment: model.AlignCenter})
	}
	if header.ShowBusinessName && data.BusinessName != "" {
		align := header.LineAlignment(header.NameAlignment)
		doc.push(Line{Text: AlignText(data.BusinessName, doc.Width, align), Alignment: align, Bold: true, Wide: true})
	}
	if header.ShowAddress && data.BusinessAddress != "" {
		align := header.LineAlignment(header.AddressAlignment)
		doc.push(Line{Text: AlignText(data.BusinessAddress, doc.Width, align), Alignment: align})
	}
	if header.ShowContact && data.BusinessContact != "" {
		align := header.LineAlignment(header.ContactAlignment)
		doc.push(Line{Text: AlignText(data.BusinessContact, doc.Width, align), Alignment: align})
	}
	if header.CustomText != "" {
		align := header.LineAlignment("")
		for _, line := range strings.Split(header.CustomText, "\n") {
			doc.push(Line{Text: AlignText(line, doc.Width, align), Alignment: align})
		}
	}
	doc.pushSeparator(sep)
}

func layoutItems(doc *Document, tmpl *model.ReceiptTemplate, data *model.ReceiptData) error {
	items := tmpl.Sections.Items

	for _, item := range data.Items {
		if item.Quantity <= 0 {
			return &model.EncodingError{Reason: fmt.Sprintf("item %q has non-positive quantity", item.Name)}
		}
		doc.push(Line{Text: itemLine(item, doc.Width), Alignment: model.AlignLeft})

		if items.ShowUnitPrice || (items.ShowDiscount && !item.Discount.IsZero()) || (items.ShowSKU && item.SKU != "") {
			doc.push(Line{Text: itemDetailLine(item, items), Alignment: model.AlignLeft})
		}
	}
	return nil
}

// itemLine composes "{qty}x {name}{padding}{total}" right-justifying the line
// total within the paper width. Long names are truncated to keep at least one
// space of padding.
func itemLine(item model.ReceiptItem, width int) string {
	left := fmt.Sprintf("%dx %s", item.Quantity, item.Name)
	right := item.LineTotal().StringFixed(2)

	maxLeft := width - len(right) - 1
	if maxLeft < 1 {
		maxLeft = 1
	}
	if len(left) > maxLeft {
		left = left[:maxLeft]
	}

	pad := width - len(left) - len(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

// itemDetailLine is the indented second line with sku, unit price and
// discount, each behind its template flag.
func itemDetailLine(item model.ReceiptItem, section model.ItemsSection) string {
	parts := []string{}
	if section.ShowSKU && item.SKU != "" {
		parts = append(parts, item.SKU)
	}
	if section.ShowUnitPrice {
		parts = append(parts, "@ "+item.UnitPrice.StringFixed(2))
	}
	if section.ShowDiscount && !item.Discount.IsZero() {
		parts = append(parts, "-"+item.Discount.StringFixed(2))
	}
	return "   " + strings.Join(parts, "  ")
}

func layoutTotals(doc *Document, tmpl *model.ReceiptTemplate, data *model.ReceiptData, sep string) {
	totals := tmpl.Sections.Totals
	align := totals.Alignment
	if align == "" {
		align = model.AlignRight
	}

	if totals.ShowSubtotal {
		doc.push(totalsRow("Subtotal", formatAmount(data.Subtotal), doc.Width, align, false))
	}
	if totals.ShowDiscount && !data.Discount.IsZero() {
		doc.push(totalsRow("Discount", formatAmount(data.Discount), doc.Width, align, false))
	}
	if totals.ShowTax {
		doc.push(totalsRow("Tax", formatAmount(data.Tax), doc.Width, align, false))
	}

	// The grand total is always printed, preceded by a separator.
	doc.pushSeparator(sep)
	doc.push(totalsRow("TOTAL", formatAmount(data.Total), doc.Width, align, totals.BoldTotal))

	if totals.ShowPaid {
		doc.push(totalsRow("Paid", formatAmount(data.Paid), doc.Width, align, false))
	}
	if totals.ShowChange {
		doc.push(totalsRow("Change", formatAmount(data.Change), doc.Width, align, false))
	}
}

// totalsRow lays a label/amount pair across the paper. Right alignment pads
// the gap so the amount ends at the last column; left alignment keeps the
// pair compact.
func totalsRow(label, amount string, width int, align model.Alignment, bold bool) Line {
	var text string
	if align == model.AlignLeft {
		text = label + " " + amount
	} else {
		pad := width - len(label) - len(amount)
		if pad < 1 {
			pad = 1
		}
		text = label + strings.Repeat(" ", pad) + amount
	}
	return Line{Text: text, Alignment: align, Bold: bold, Wide: bold}
}

func layoutFooter(doc *Document, tmpl *model.ReceiptTemplate, data *model.ReceiptData) {
	footer := tmpl.Sections.Footer
	align := footer.Alignment
	if align == "" {
		align = model.AlignCenter
	}

	pushAligned := func(text string) {
		doc.push(Line{Text: AlignText(text, doc.Width, align), Alignment: align})
	}

	if footer.ShowTransactionID && data.TransactionID != "" {
		pushAligned("Receipt #" + data.TransactionID)
	}
	if footer.ShowCashier && data.Cashier != "" {
		pushAligned("Served by " + data.Cashier)
	}
	if footer.ShowTimestamp {
		pushAligned(data.Timestamp.Format("2006-01-02 15:04:05"))
	}
	if footer.CustomMessage != "" {
		for _, line := range strings.Split(footer.CustomMessage, "\n") {
			pushAligned(line)
		}
	}
	if footer.ShowBarcode && data.TransactionID != "" {
		doc.push(Line{
			Text:      AlignText("||"+data.TransactionID+"||", doc.Width, align),
			Alignment: align,
			Barcode:   data.TransactionID,
		})
	}
	if footer.ShowQRCode && data.TransactionID != "" {
		doc.push(Line{
			Text:      AlignText("[QR:"+data.TransactionID+"]", doc.Width, align),
			Alignment: align,
			QRCode:    data.TransactionID,
		})
	}
	if footer.ThankYouText != "" {
		pushAligned(footer.ThankYouText)
	}
	if footer.TermsText != "" {
		for _, line := range strings.Split(footer.TermsText, "\n") {
			pushAligned(line)
		}
	}
}

func (d *Document) push(line Line) {
	d.Lines = append(d.Lines, line)
}

func (d *Document) pushSeparator(char string) {
	d.Lines = append(d.Lines, Line{
		Text:      strings.Repeat(char, d.Width),
		Alignment: model.AlignLeft,
		Separator: true,
	})
}
