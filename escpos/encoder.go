package escpos

// Profile carries the model-specific parts of the command set
type Profile struct {
	// Columns is the line width in characters of the default font
	Columns int
	// PartialCut is the model's partial-cut code; nil means GS V 1
	PartialCut []byte
	// Codepage, when set, transcodes text instead of sending UTF-8
	Codepage *Codepage
}

// TextOptions controls a single text line
type TextOptions struct {
	Align     Alignment
	Bold      bool
	Italic    bool
	Underline bool
	Size      FontSize
}

// Encoder renders semantic operations under a Profile
type Encoder struct {
	profile Profile
}

// NewEncoder creates an encoder for the given profile
func NewEncoder(p Profile) *Encoder {
	if p.Columns <= 0 {
		p.Columns = DefaultColumns
	}
	return &Encoder{profile: p}
}

// Profile returns the encoder's profile
func (e *Encoder) Profile() Profile {
	return e.profile
}

// Columns returns the configured line width
func (e *Encoder) Columns() int {
	return e.profile.Columns
}

// Init resets the printer and, when a codepage is configured, selects it
func (e *Encoder) Init() []byte {
	out := Init()
	if e.profile.Codepage != nil {
		out = append(out, e.profile.Codepage.Select()...)
	}
	return out
}

// Text emits align, style/size toggles, the text, inverse toggles and LF
func (e *Encoder) Text(content string, opts TextOptions) []byte {
	out := Align(opts.Align)
	if opts.Bold {
		out = append(out, SetStyle(StyleBold, true)...)
	}
	if opts.Italic {
		out = append(out, SetStyle(StyleItalic, true)...)
	}
	if opts.Underline {
		out = append(out, SetStyle(StyleUnderline, true)...)
	}
	if opts.Size != SizeNormal {
		out = append(out, SetFontSize(opts.Size)...)
	}

	out = append(out, e.EncodeString(content)...)

	if opts.Size != SizeNormal {
		out = append(out, SetFontSize(SizeNormal)...)
	}
	if opts.Underline {
		out = append(out, SetStyle(StyleUnderline, false)...)
	}
	if opts.Italic {
		out = append(out, SetStyle(StyleItalic, false)...)
	}
	if opts.Bold {
		out = append(out, SetStyle(StyleBold, false)...)
	}
	return append(out, LF)
}

// EncodeString converts text to printer bytes: UTF-8 or the profile codepage
func (e *Encoder) EncodeString(s string) []byte {
	if e.profile.Codepage != nil {
		return e.profile.Codepage.Encode(s)
	}
	return []byte(s)
}

// Cut feeds and cuts using the profile's partial code
func (e *Encoder) Cut(mode CutMode) []byte {
	return Cut(mode, e.profile.PartialCut)
}

// Separator draws a full-width line when width is zero
func (e *Encoder) Separator(char string, width int) ([]byte, error) {
	if width == 0 {
		width = e.profile.Columns
	}
	line, err := Separator(char, width)
	if err != nil {
		return nil, err
	}
	if e.profile.Codepage != nil {
		return append(e.profile.Codepage.Encode(string(line[:len(line)-1])), LF), nil
	}
	return line, nil
}
