// internal/model/template.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Alignment of a rendered line within the paper width
type Alignment string

const (
	AlignLeft   Alignment = "LEFT"
	AlignCenter Alignment = "CENTER"
	AlignRight  Alignment = "RIGHT"
)

// BorderStyle selects the separator character between sections
type BorderStyle string

const (
	BorderSingle BorderStyle = "SINGLE"
	BorderDouble BorderStyle = "DOUBLE"
	BorderDashed BorderStyle = "DASHED"
)

// ReceiptTemplate describes what to render, never how. Templates are persisted
// externally as opaque JSON; the engine only consumes them at render time.
// Exactly one template per tenant may be the default at a time, and the
// default template must not be deleted.
type ReceiptTemplate struct {
	ID         uuid.UUID        `json:"id"`
	Name       string           `json:"name"`
	PaperWidth int              `json:"paper_width"` // 58 or 80 mm
	Sections   TemplateSections `json:"sections"`
	Styles     TemplateStyles   `json:"styles"`
	IsDefault  bool             `json:"is_default"`
}

// TemplateSections groups the four independently toggleable sections.
type TemplateSections struct {
	Header HeaderSection `json:"header"`
	Items  ItemsSection  `json:"items"`
	Totals TotalsSection `json:"totals"`
	Footer FooterSection `json:"footer"`
}

// HeaderSection configures the receipt header block. The business name,
// address and contact lines each carry their own alignment, falling back to
// the section alignment when unset.
type HeaderSection struct {
	Enabled          bool      `json:"enabled"`
	ShowLogo         bool      `json:"show_logo"`
	ShowBusinessName bool      `json:"show_business_name"`
	ShowAddress      bool      `json:"show_address"`
	ShowContact      bool      `json:"show_contact"`
	CustomText       string    `json:"custom_text,omitempty"`
	Alignment        Alignment `json:"alignment"`
	NameAlignment    Alignment `json:"name_alignment,omitempty"`
	AddressAlignment Alignment `json:"address_alignment,omitempty"`
	ContactAlignment Alignment `json:"contact_alignment,omitempty"`
}

// LineAlignment resolves a per-line alignment against the section default.
func (h HeaderSection) LineAlignment(own Alignment) Alignment {
	if own != "" {
		return own
	}
	if h.Alignment != "" {
		return h.Alignment
	}
	return AlignLeft
}

// ItemsSection configures the line-item block.
type ItemsSection struct {
	Enabled       bool `json:"enabled"`
	ShowSKU       bool `json:"show_sku"`
	ShowUnitPrice bool `json:"show_unit_price"`
	ShowDiscount  bool `json:"show_discount"`
}

// TotalsSection configures the totals block.
type TotalsSection struct {
	Enabled      bool      `json:"enabled"`
	ShowSubtotal bool      `json:"show_subtotal"`
	ShowDiscount bool      `json:"show_discount"`
	ShowTax      bool      `json:"show_tax"`
	ShowPaid     bool      `json:"show_paid"`
	ShowChange   bool      `json:"show_change"`
	BoldTotal    bool      `json:"bold_total"`
	Alignment    Alignment `json:"alignment"`
}

// FooterSection configures the receipt footer block.
type FooterSection struct {
	Enabled           bool      `json:"enabled"`
	ShowTransactionID bool      `json:"show_transaction_id"`
	ShowCashier       bool      `json:"show_cashier"`
	ShowTimestamp     bool      `json:"show_timestamp"`
	ShowBarcode       bool      `json:"show_barcode"`
	ShowQRCode        bool      `json:"show_qr_code"`
	CustomMessage     string    `json:"custom_message,omitempty"`
	ThankYouText      string    `json:"thank_you_text,omitempty"`
	TermsText         string    `json:"terms_text,omitempty"`
	Alignment         Alignment `json:"alignment"`
}

// TemplateStyles carries presentation knobs shared by all sections.
type TemplateStyles struct {
	Font           string      `json:"font"`
	LineSpacing    int         `json:"line_spacing"`
	SectionSpacing int         `json:"section_spacing"`
	BorderStyle    BorderStyle `json:"border_style"`
}

// DefaultReceiptTemplate returns the built-in 80mm template with every
// section enabled.
func DefaultReceiptTemplate() *ReceiptTemplate {
	return &ReceiptTemplate{
		ID:         uuid.New(),
		Name:       "Standard Receipt",
		PaperWidth: 80,
		IsDefault:  true,
		Sections: TemplateSections{
			Header: HeaderSection{
				Enabled:          true,
				ShowBusinessName: true,
				ShowAddress:      true,
				ShowContact:      true,
				Alignment:        AlignCenter,
			},
			Items: ItemsSection{
				Enabled:       true,
				ShowUnitPrice: true,
				ShowDiscount:  true,
			},
			Totals: TotalsSection{
				Enabled:      true,
				ShowSubtotal: true,
				ShowDiscount: true,
				ShowTax:      true,
				ShowPaid:     true,
				ShowChange:   true,
				BoldTotal:    true,
				Alignment:    AlignRight,
			},
			Footer: FooterSection{
				Enabled:           true,
				ShowTransactionID: true,
				ShowCashier:       true,
				ShowTimestamp:     true,
				ThankYouText:      "Thank you for shopping with us!",
				Alignment:         AlignCenter,
			},
		},
		Styles: TemplateStyles{
			Font:        "A",
			LineSpacing: 1,
			BorderStyle: BorderDouble,
		},
	}
}

// ReceiptItem is one line item of a transaction snapshot.
type ReceiptItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
}

// LineTotal is qty * unit price - discount.
func (i ReceiptItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.Discount)
}

// ReceiptData is the transaction snapshot rendered against a template.
type ReceiptData struct {
	BusinessName    string          `json:"business_name"`
	BusinessAddress string          `json:"business_address"`
	BusinessContact string          `json:"business_contact"`
	Items           []ReceiptItem   `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	Paid            decimal.Decimal `json:"paid"`
	Change          decimal.Decimal `json:"change"`
	TransactionID   string          `json:"transaction_id"`
	Cashier         string          `json:"cashier"`
	Timestamp       time.Time       `json:"timestamp"`
}
