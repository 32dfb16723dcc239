package render

import (
	"errors"
	"fmt"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nixxel-company-limited/escpos-printkit/escpos"
)

var (
	// ErrUnknownElement marks an element whose type the renderer does not know
	ErrUnknownElement = errors.New("unknown element type")
	// ErrNothingRendered is returned when a non-empty template produced no element
	ErrNothingRendered = errors.New("no template element could be rendered")
)

// ElementError describes a skipped element
type ElementError struct {
	Section string
	Index   int
	Type    string
	Err     error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s[%d] %q: %v", e.Section, e.Index, e.Type, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

// Result is a finished command buffer plus the elements that were skipped
type Result struct {
	Commands []byte
	Rendered int
	Warnings []error
}

// Renderer dispatches template elements to an encoder
type Renderer struct {
	enc    *escpos.Encoder
	logger *log.Logger
}

// New creates a renderer over enc
func New(enc *escpos.Encoder) *Renderer {
	return NewWithLogger(enc, log.New(os.Stdout, "[RENDER] ", log.LstdFlags|log.Lmsgprefix))
}

// NewWithLogger creates a renderer with a custom logger
func NewWithLogger(enc *escpos.Encoder, logger *log.Logger) *Renderer {
	return &Renderer{enc: enc, logger: logger}
}

// Render walks header, body and footer in order. A bad element is logged and
// skipped; the rest of the receipt still renders.
func (r *Renderer) Render(tmpl Template, data any) Result {
	buf := escpos.NewBuffer()
	buf.Append(r.enc.Init())

	var res Result
	for _, section := range tmpl.Sections() {
		for i, el := range section.Elements {
			cmd, err := r.element(el, data)
			if err != nil {
				werr := &ElementError{Section: section.Name, Index: i, Type: el.Type, Err: err}
				r.logger.Printf("Warning: skipping element %v", werr)
				res.Warnings = append(res.Warnings, werr)
				continue
			}
			buf.Write(cmd...)
			res.Rendered++
		}
	}

	res.Commands = buf.Finalize()
	return res
}

// Commands renders and returns only the bytes, failing when every element was skipped
func (r *Renderer) Commands(tmpl Template, data any) ([]byte, error) {
	res := r.Render(tmpl, data)
	if tmpl.Len() > 0 && res.Rendered == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNothingRendered, errors.Join(res.Warnings...))
	}
	return res.Commands, nil
}

func (r *Renderer) element(el Element, data any) ([]byte, error) {
	if el.err != nil {
		return nil, el.err
	}

	switch el.Type {
	case TypeText:
		return r.enc.Text(escpos.Substitute(el.Content, data), textOptions(el)), nil

	case TypeLineSeparator:
		return r.enc.Separator(el.Char, el.Width)

	case TypeLineFeed:
		lines := el.Lines
		if lines == 0 {
			lines = 1
		}
		return escpos.Feed(lines)

	case TypeQRCode:
		return r.qrCode(el, data)

	case TypeCutPaper:
		return r.enc.Cut(escpos.ParseCutMode(el.Mode)), nil

	case TypeBuzzer:
		times, duration := el.Times, el.Duration
		if times == 0 {
			times = 1
		}
		if duration == 0 {
			duration = 3
		}
		return escpos.Buzzer(times, duration)

	case TypeDrawerPulse:
		on, off := el.On, el.Off
		if on == 0 {
			on = 100
		}
		if off == 0 {
			off = 500
		}
		return escpos.DrawerPulse(el.Pin, on, off)

	case TypeTestPrint:
		return r.testPrint(el, data)

	case TypeItemsList:
		return r.itemsList(el, data)
	}

	return nil, ErrUnknownElement
}

func textOptions(el Element) escpos.TextOptions {
	return escpos.TextOptions{
		Align:     escpos.ParseAlignment(el.Align),
		Bold:      el.Bold,
		Italic:    el.Italic,
		Underline: el.Underline,
		Size:      escpos.ParseFontSize(el.Size),
	}
}

func (r *Renderer) qrCode(el Element, data any) ([]byte, error) {
	size := 0
	if el.Size != "" {
		n, err := strconv.Atoi(el.Size)
		if err != nil {
			return nil, fmt.Errorf("qr module size %q: %w", el.Size, err)
		}
		size = n
	}
	qr, err := escpos.QRCode(escpos.Substitute(el.Data, data), size)
	if err != nil {
		return nil, err
	}
	align := escpos.AlignCenter
	if el.Align != "" {
		align = escpos.ParseAlignment(el.Align)
	}
	out := escpos.Align(align)
	out = append(out, qr...)
	return append(out, escpos.LF), nil
}

func (r *Renderer) testPrint(el Element, data any) ([]byte, error) {
	content := el.Content
	if content == "" {
		content = "ESC/POS test page"
	}
	sep, err := r.enc.Separator("=", 0)
	if err != nil {
		return nil, err
	}

	out := append([]byte{}, sep...)
	out = append(out, r.enc.Text("TEST PRINT", escpos.TextOptions{Align: escpos.AlignCenter, Bold: true, Size: escpos.SizeDoubleBoth})...)
	out = append(out, r.enc.Text(escpos.Substitute(content, data), escpos.TextOptions{Align: escpos.AlignCenter})...)
	out = append(out, r.enc.Text(fmt.Sprintf("%d columns", r.enc.Columns()), escpos.TextOptions{Align: escpos.AlignCenter})...)
	return append(out, sep...), nil
}

// itemsList prints one line per item with the price right-justified.
// Padding is computed from rune counts so multi-byte names line up.
func (r *Renderer) itemsList(el Element, data any) ([]byte, error) {
	source := el.Source
	if source == "" {
		source = "items"
	}
	nameField := defaultString(el.NameField, "name")
	qtyField := defaultString(el.QtyField, "quantity")
	priceField := defaultString(el.PriceField, "price")
	width := el.Width
	if width <= 0 {
		width = r.enc.Columns()
	}

	raw, ok := escpos.Lookup(data, source)
	if !ok {
		return nil, fmt.Errorf("items source %q not found", source)
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("items source %q is %T, not a list", source, raw)
	}

	var out []byte
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()

		name := ""
		if v, ok := escpos.Lookup(item, nameField); ok {
			name = escpos.FormatValue(v)
		}
		if v, ok := escpos.Lookup(item, qtyField); ok {
			name = escpos.FormatValue(v) + "x " + name
		}
		price := ""
		if v, ok := escpos.Lookup(item, priceField); ok {
			price = el.Currency + formatPrice(v)
		}

		out = append(out, r.enc.Text(PadLine(name, price, width), escpos.TextOptions{Align: escpos.AlignLeft})...)
	}
	return out, nil
}

// PadLine joins left and right with spaces so the result is width runes wide.
// The left side is truncated when both do not fit.
func PadLine(left, right string, width int) string {
	rightLen := utf8.RuneCountInString(right)
	room := width - rightLen - 1
	if room < 0 {
		room = 0
	}
	if utf8.RuneCountInString(left) > room {
		left = string([]rune(left)[:room])
	}
	pad := width - utf8.RuneCountInString(left) - rightLen
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

func formatPrice(v any) string {
	switch p := v.(type) {
	case float64:
		return strconv.FormatFloat(p, 'f', 2, 64)
	case float32:
		return strconv.FormatFloat(float64(p), 'f', 2, 32)
	case int:
		return strconv.Itoa(p) + ".00"
	case int64:
		return strconv.FormatInt(p, 10) + ".00"
	}
	return escpos.FormatValue(v)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
