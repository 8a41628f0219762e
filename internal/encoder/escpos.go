// internal/encoder/escpos.go
package encoder

import (
	"bytes"

	"hardware-service/internal/model"
	"hardware-service/internal/render"
)

// ESC/POS command definitions. Star-type printers accept the same sequences
// for everything this encoder emits, so no divergent command set is needed.
var (
	cmdInitialize   = []byte{0x1B, 0x40}       // ESC @
	cmdCharsetPC437 = []byte{0x1B, 0x74, 0x00} // ESC t 0
	cmdLineFeed     = []byte{0x0A}             // LF

	cmdAlignLeft   = []byte{0x1B, 0x61, 0x00} // ESC a 0
	cmdAlignCenter = []byte{0x1B, 0x61, 0x01} // ESC a 1
	cmdAlignRight  = []byte{0x1B, 0x61, 0x02} // ESC a 2

	cmdBoldOn     = []byte{0x1B, 0x45, 0x01} // ESC E 1
	cmdBoldOff    = []byte{0x1B, 0x45, 0x00} // ESC E 0
	cmdSizeNormal = []byte{0x1D, 0x21, 0x00} // GS ! 0
	cmdSizeDouble = []byte{0x1D, 0x21, 0x30} // GS ! 48

	cmdWidth58mm = []byte{0x1D, 0x57, 0x40, 0x01} // GS W 320
	cmdWidth80mm = []byte{0x1D, 0x57, 0x00, 0x02} // GS W 512

	cmdCutFull   = []byte{0x1D, 0x56, 0x00} // GS V 0
	cmdPrintLogo = []byte{0x1D, 0x2F, 0x00} // GS / 0

	cmdBarcodeHeight  = []byte{0x1D, 0x68, 0x50} // GS h 80
	cmdBarcodeCode128 = []byte{0x1D, 0x6B, 0x49} // GS k I

	// GS ( k model 2
	cmdQRModel = []byte{0x1D, 0x28, 0x6B, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00}

	// DrawerKickPin2 and DrawerKickPin5 are the kick pulses for the two
	// standard drawer connector pins.
	DrawerKickPin2 = []byte{0x1B, 0x70, 0x00, 0x19, 0x19} // ESC p 0 25 25
	DrawerKickPin5 = []byte{0x1B, 0x70, 0x01, 0x19, 0x19} // ESC p 1 25 25
)

func alignCommand(align model.Alignment) []byte {
	switch align {
	case model.AlignCenter:
		return cmdAlignCenter
	case model.AlignRight:
		return cmdAlignRight
	default:
		return cmdAlignLeft
	}
}

// EncodeReceipt turns a laid-out document into the printer command stream:
// initialize, charset, paper width, the lines with their styling, a cut, and
// a drawer kick when the profile asks for one. It consumes the document's
// structured lines, not the plain-text buffer, so alignment and emphasis ride
// on printer commands rather than padding.
func EncodeReceipt(doc *render.Document, profile model.PrinterProfile) ([]byte, error) {
	if doc == nil || len(doc.Lines) == 0 {
		return nil, &model.EncodingError{Reason: "document has no lines"}
	}

	var buf bytes.Buffer
	buf.Write(cmdInitialize)
	buf.Write(cmdCharsetPC437)
	if profile.PaperWidth == 58 {
		buf.Write(cmdWidth58mm)
	} else {
		buf.Write(cmdWidth80mm)
	}

	copies := profile.Copies
	if copies < 1 {
		copies = 1
	}

	for c := 0; c < copies; c++ {
		for _, line := range doc.Lines {
			encodeLine(&buf, line)
		}
		buf.Write(cmdLineFeed)
		buf.Write(cmdLineFeed)
		buf.Write(cmdCutFull)
	}

	if profile.AutoOpenDrawer {
		buf.Write(DrawerKickPin2)
	}

	buf.Write(cmdAlignLeft)
	return buf.Bytes(), nil
}

func encodeLine(buf *bytes.Buffer, line render.Line) {
	buf.Write(alignCommand(line.Alignment))

	switch {
	case line.Logo:
		buf.Write(cmdPrintLogo)
		buf.Write(cmdLineFeed)
		return
	case line.Barcode != "":
		buf.Write(Barcode(line.Barcode))
		return
	case line.QRCode != "":
		buf.Write(QRCode(line.QRCode))
		return
	}

	if line.Bold {
		buf.Write(cmdBoldOn)
	}
	if line.Wide {
		buf.Write(cmdSizeDouble)
	}

	// Styled lines carry raw text; the printer handles alignment, so padding
	// from the plain-text buffer is not wanted here.
	text := line.Text
	if line.Alignment != model.AlignLeft && !line.Separator {
		text = trimLeadingSpaces(text)
	}
	buf.WriteString(text)

	if line.Wide {
		buf.Write(cmdSizeNormal)
	}
	if line.Bold {
		buf.Write(cmdBoldOff)
	}
	buf.Write(cmdLineFeed)
}

func trimLeadingSpaces(s string) string {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return s[i:]
}

// Barcode emits a CODE128 barcode for the given data.
func Barcode(data string) []byte {
	var buf bytes.Buffer
	buf.Write(cmdBarcodeHeight)
	buf.Write(cmdBarcodeCode128)
	buf.WriteByte(byte(len(data) + 2))
	buf.WriteString("{B") // code set B
	buf.WriteString(data)
	buf.Write(cmdLineFeed)
	return buf.Bytes()
}

// QRCode emits a QR code for the given data (model 2, store + print).
func QRCode(data string) []byte {
	var buf bytes.Buffer
	buf.Write(cmdQRModel)

	// Store data: GS ( k pL pH 1 P 0 <data>
	n := len(data) + 3
	buf.Write([]byte{0x1D, 0x28, 0x6B, byte(n & 0xFF), byte(n >> 8), 0x31, 0x50, 0x30})
	buf.WriteString(data)

	// Print: GS ( k 3 0 1 Q 0
	buf.Write([]byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x51, 0x30})
	buf.Write(cmdLineFeed)
	return buf.Bytes()
}

// DrawerKick returns the kick pulse for the given connector pin. Pins 0/2
// map to the pin-2 pulse, pins 1/5 to pin 5; anything else is an encoding
// error.
func DrawerKick(pin int) ([]byte, error) {
	switch pin {
	case 0, 2:
		return DrawerKickPin2, nil
	case 1, 5:
		return DrawerKickPin5, nil
	default:
		return nil, &model.EncodingError{Reason: "unsupported drawer pin"}
	}
}

// EncodeRaster wraps an already-built raster command stream into a complete
// print job: initialize, centered image, feed and cut.
func EncodeRaster(raster []byte) ([]byte, error) {
	if len(raster) == 0 {
		return nil, &model.EncodingError{Reason: "raster stream is empty"}
	}

	var buf bytes.Buffer
	buf.Write(cmdInitialize)
	buf.Write(cmdAlignCenter)
	buf.Write(raster)
	buf.Write(cmdLineFeed)
	buf.Write(cmdLineFeed)
	buf.Write(cmdCutFull)
	buf.Write(cmdAlignLeft)
	return buf.Bytes(), nil
}

// LogoCommand returns the stored-logo print sequence.
func LogoCommand() []byte {
	return append(append([]byte{}, cmdAlignCenter...), cmdPrintLogo...)
}
