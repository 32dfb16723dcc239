// Package escpos encodes semantic printer operations into ESC/POS byte sequences.
package escpos

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Control bytes
const (
	LF  = 0x0A
	ESC = 0x1B
	GS  = 0x1D
	DLE = 0x10
	EOT = 0x04
)

// DefaultColumns is the character width of a 58mm fixed-pitch thermal font
const DefaultColumns = 32

// CutFeedLines is the number of blank lines fed before every cut
const CutFeedLines = 3

var (
	// ErrInvalidLength is returned when a length or count argument is out of range
	ErrInvalidLength = errors.New("escpos: invalid length")
	// ErrInvalidQR is returned for an empty, oversized or badly sized QR payload
	ErrInvalidQR = errors.New("escpos: invalid qr payload")
)

// Alignment selects justification
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// ParseAlignment maps "left", "center" and "right"; anything else is left
func ParseAlignment(s string) Alignment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "center", "centre":
		return AlignCenter
	case "right":
		return AlignRight
	default:
		return AlignLeft
	}
}

// Style is a text emphasis toggle
type Style int

const (
	StyleBold Style = iota
	StyleItalic
	StyleUnderline
)

// FontSize selects character magnification
type FontSize int

const (
	SizeNormal FontSize = iota
	SizeDoubleHeight
	SizeDoubleWidth
	SizeDoubleBoth
)

// ParseFontSize maps template size names onto FontSize
func ParseFontSize(s string) FontSize {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "doubleheight", "double_height", "double-height", "tall":
		return SizeDoubleHeight
	case "doublewidth", "double_width", "double-width", "wide":
		return SizeDoubleWidth
	case "doubleboth", "double_both", "double-both", "double", "large":
		return SizeDoubleBoth
	default:
		return SizeNormal
	}
}

// CutMode selects a full or partial cut
type CutMode int

const (
	CutFull CutMode = iota
	CutPartial
)

// ParseCutMode maps "partial" to CutPartial, everything else to CutFull
func ParseCutMode(s string) CutMode {
	if strings.EqualFold(strings.TrimSpace(s), "partial") {
		return CutPartial
	}
	return CutFull
}

// Init resets the printer: ESC @
func Init() []byte {
	return []byte{ESC, 0x40}
}

// Align selects justification: ESC a n
func Align(a Alignment) []byte {
	n := byte(0)
	switch a {
	case AlignCenter:
		n = 1
	case AlignRight:
		n = 2
	}
	return []byte{ESC, 0x61, n}
}

// SetStyle switches one emphasis mode on or off.
// Bold is ESC E, underline is ESC -, italic is ESC 4.
func SetStyle(s Style, on bool) []byte {
	n := byte(0)
	if on {
		n = 1
	}
	switch s {
	case StyleBold:
		return []byte{ESC, 0x45, n}
	case StyleUnderline:
		return []byte{ESC, 0x2D, n}
	case StyleItalic:
		return []byte{ESC, 0x34, n}
	}
	return nil
}

// SetFontSize selects character size: GS ! n
func SetFontSize(size FontSize) []byte {
	n := byte(0x00)
	switch size {
	case SizeDoubleHeight:
		n = 0x01
	case SizeDoubleWidth:
		n = 0x10
	case SizeDoubleBoth:
		n = 0x11
	}
	return []byte{GS, 0x21, n}
}

// Charset selects an international character set: ESC R n
func Charset(n byte) []byte {
	return []byte{ESC, 0x52, n}
}

// CodeTable selects a character code table by number: ESC t n
func CodeTable(n byte) []byte {
	return []byte{ESC, 0x74, n}
}

// Feed emits n line feeds
func Feed(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: feed %d", ErrInvalidLength, n)
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = LF
	}
	return out, nil
}

// Cut feeds CutFeedLines blank lines then cuts.
// The partial code is model specific; nil falls back to GS V 1.
func Cut(mode CutMode, partial []byte) []byte {
	out := make([]byte, 0, CutFeedLines+4)
	for i := 0; i < CutFeedLines; i++ {
		out = append(out, LF)
	}
	if mode == CutPartial {
		if len(partial) == 0 {
			partial = []byte{GS, 0x56, 0x01}
		}
		return append(out, partial...)
	}
	return append(out, GS, 0x56, 0x00)
}

// Buzzer beeps times times for duration units of 50ms: ESC B n t
func Buzzer(times, duration int) ([]byte, error) {
	if times < 1 || times > 9 || duration < 1 || duration > 9 {
		return nil, fmt.Errorf("%w: buzzer %d/%d", ErrInvalidLength, times, duration)
	}
	return []byte{ESC, 0x42, byte(times), byte(duration)}, nil
}

// DrawerPulse kicks the cash drawer on pin 0 or 1: ESC p m t1 t2
func DrawerPulse(pin, onMs, offMs int) ([]byte, error) {
	if pin != 0 && pin != 1 {
		return nil, fmt.Errorf("%w: drawer pin %d", ErrInvalidLength, pin)
	}
	if onMs < 0 || offMs < 0 {
		return nil, fmt.Errorf("%w: drawer pulse %d/%d", ErrInvalidLength, onMs, offMs)
	}
	// t1 and t2 are in 2ms units
	return []byte{ESC, 0x70, byte(pin), clampByte(onMs / 2), clampByte(offMs / 2)}, nil
}

// Separator pads a line with the repeat character to width columns and ends it with LF
func Separator(char string, width int) ([]byte, error) {
	if width < 0 {
		return nil, fmt.Errorf("%w: separator width %d", ErrInvalidLength, width)
	}
	if width == 0 {
		width = DefaultColumns
	}
	if char == "" {
		char = "-"
	}
	r, _ := utf8.DecodeRuneInString(char)
	line := strings.Repeat(string(r), width)
	return append([]byte(line), LF), nil
}

func clampByte(v int) byte {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return byte(v)
}
