// pkg/codes/card.go
package codes

import "strings"

// CardBrand represents a payment card network
type CardBrand string

const (
	BrandVisa       CardBrand = "VISA"
	BrandMastercard CardBrand = "MASTERCARD"
	BrandAmex       CardBrand = "AMEX"
	BrandDiscover   CardBrand = "DISCOVER"
	BrandDiners     CardBrand = "DINERS"
	BrandOther      CardBrand = "OTHER"
)

// stripNonDigits removes every non-digit rune from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LuhnValid reports whether cardNumber passes the Luhn checksum. Separator
// characters are ignored; any remaining non-digit makes the number invalid,
// as does a digit count outside [13,19].
func LuhnValid(cardNumber string) bool {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(cardNumber)
	if !isNumeric(cleaned) {
		return false
	}
	if len(cleaned) < 13 || len(cleaned) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(cleaned) - 1; i >= 0; i-- {
		digit := int(cleaned[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

// DetectCardBrand classifies a card number by its issuer prefix. Rules apply
// in fixed priority order; unknown prefixes map to OTHER. No checksum or
// length validation is performed here.
func DetectCardBrand(cardNumber string) CardBrand {
	digits := stripNonDigits(cardNumber)
	if digits == "" {
		return BrandOther
	}

	switch {
	case strings.HasPrefix(digits, "4"):
		return BrandVisa
	case inPrefixRange(digits, 2, 51, 55), inPrefixRange(digits, 2, 22, 27):
		return BrandMastercard
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return BrandAmex
	case strings.HasPrefix(digits, "6011"), strings.HasPrefix(digits, "65"):
		return BrandDiscover
	case inPrefixRange(digits, 3, 300, 305), strings.HasPrefix(digits, "36"), strings.HasPrefix(digits, "38"):
		return BrandDiners
	default:
		return BrandOther
	}
}

// inPrefixRange reports whether the first n digits form a number in [lo, hi].
func inPrefixRange(digits string, n, lo, hi int) bool {
	if len(digits) < n {
		return false
	}
	prefix := 0
	for i := 0; i < n; i++ {
		prefix = prefix*10 + int(digits[i]-'0')
	}
	return prefix >= lo && prefix <= hi
}

// MaskCardNumber hides all but the last four digits. Formatting only; the
// input is not validated.
func MaskCardNumber(cardNumber string) string {
	digits := stripNonDigits(cardNumber)
	if len(digits) <= 4 {
		return digits
	}
	masked := strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
	return groupDigits(masked)
}

// FormatCardNumber renders the number in groups of four digits. Formatting
// only; the input is not validated.
func FormatCardNumber(cardNumber string) string {
	return groupDigits(stripNonDigits(cardNumber))
}

func groupDigits(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Last4 returns the trailing four digits of a card number, or the full digit
// string when shorter.
func Last4(cardNumber string) string {
	digits := stripNonDigits(cardNumber)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
