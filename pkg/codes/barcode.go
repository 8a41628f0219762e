// pkg/codes/barcode.go
package codes

import "strings"

// BarcodeFormat represents a barcode symbology
type BarcodeFormat string

const (
	FormatEAN13   BarcodeFormat = "EAN_13"
	FormatEAN8    BarcodeFormat = "EAN_8"
	FormatUPCA    BarcodeFormat = "UPC_A"
	FormatUPCE    BarcodeFormat = "UPC_E"
	FormatCode39  BarcodeFormat = "CODE_39"
	FormatCode128 BarcodeFormat = "CODE_128"
	FormatQRCode  BarcodeFormat = "QR_CODE"
)

// isNumeric reports whether s is non-empty and all ASCII digits.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ClassifyBarcode applies the format detection rules in order. The rule order
// is significant: exact numeric lengths are matched before the shorter UPC-E
// fallback, so an 8-digit code is always EAN-8, never UPC-E.
func ClassifyBarcode(code string) BarcodeFormat {
	numeric := isNumeric(code)

	switch {
	case numeric && len(code) == 13:
		return FormatEAN13
	case numeric && len(code) == 8:
		return FormatEAN8
	case numeric && len(code) == 12:
		return FormatUPCA
	case numeric && len(code) >= 6 && len(code) <= 8:
		return FormatUPCE
	case strings.HasPrefix(code, "*") && strings.HasSuffix(code, "*") && len(code) >= 2:
		return FormatCode39
	case len(code) > 20:
		return FormatQRCode
	default:
		return FormatCode128
	}
}

// weightedSum sums the data digits of code (excluding the trailing check
// digit), weighting even 0-based positions with evenWeight and odd positions
// with oddWeight.
func weightedSum(code string, evenWeight, oddWeight int) int {
	sum := 0
	for i := 0; i < len(code)-1; i++ {
		digit := int(code[i] - '0')
		if i%2 == 0 {
			sum += digit * evenWeight
		} else {
			sum += digit * oddWeight
		}
	}
	return sum
}

// ValidateChecksum verifies the trailing check digit of code for the given
// format. EAN-13 weights even positions x1 and odd positions x3; EAN-8 and
// UPC-A use the opposite parity weighting (even x3, odd x1). Formats without
// a standard check digit always validate. Non-numeric input or a length that
// does not match the format is invalid.
func ValidateChecksum(code string, format BarcodeFormat) bool {
	switch format {
	case FormatEAN13:
		if !isNumeric(code) || len(code) != 13 {
			return false
		}
		return checkDigitMatches(code, weightedSum(code, 1, 3))
	case FormatEAN8:
		if !isNumeric(code) || len(code) != 8 {
			return false
		}
		return checkDigitMatches(code, weightedSum(code, 3, 1))
	case FormatUPCA:
		if !isNumeric(code) || len(code) != 12 {
			return false
		}
		return checkDigitMatches(code, weightedSum(code, 3, 1))
	default:
		// CODE_128, CODE_39, QR_CODE and UPC_E carry no standard check digit.
		return true
	}
}

func checkDigitMatches(code string, sum int) bool {
	want := (10 - sum%10) % 10
	return int(code[len(code)-1]-'0') == want
}

// EAN13CheckDigit computes the check digit for a 12-digit EAN-13 payload.
// Returns -1 for input that is not exactly 12 digits.
func EAN13CheckDigit(payload string) int {
	if !isNumeric(payload) || len(payload) != 12 {
		return -1
	}
	sum := 0
	for i := 0; i < 12; i++ {
		digit := int(payload[i] - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	return (10 - sum%10) % 10
}
