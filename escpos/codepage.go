package escpos

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Codepage binds an ESC t table number to the matching single-byte encoding
type Codepage struct {
	Name     string
	Table    byte
	Encoding *charmap.Charmap
}

// codepages follows the Epson code table numbering shared by most clones
var codepages = map[string]Codepage{
	"cp437":      {Name: "cp437", Table: 0, Encoding: charmap.CodePage437},
	"cp850":      {Name: "cp850", Table: 2, Encoding: charmap.CodePage850},
	"cp860":      {Name: "cp860", Table: 3, Encoding: charmap.CodePage860},
	"cp863":      {Name: "cp863", Table: 4, Encoding: charmap.CodePage863},
	"cp865":      {Name: "cp865", Table: 5, Encoding: charmap.CodePage865},
	"wpc1252":    {Name: "wpc1252", Table: 16, Encoding: charmap.Windows1252},
	"cp866":      {Name: "cp866", Table: 17, Encoding: charmap.CodePage866},
	"cp852":      {Name: "cp852", Table: 18, Encoding: charmap.CodePage852},
	"cp858":      {Name: "cp858", Table: 19, Encoding: charmap.CodePage858},
	"iso8859-15": {Name: "iso8859-15", Table: 40, Encoding: charmap.ISO8859_15},
	"wpc1251":    {Name: "wpc1251", Table: 46, Encoding: charmap.Windows1251},
}

// LookupCodepage finds a codepage by name, case-insensitively
func LookupCodepage(name string) (Codepage, error) {
	cp, ok := codepages[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Codepage{}, fmt.Errorf("escpos: unknown codepage %q", name)
	}
	return cp, nil
}

// Codepages lists the supported codepage names
func Codepages() []string {
	names := make([]string, 0, len(codepages))
	for name := range codepages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the ESC t command for this codepage
func (c Codepage) Select() []byte {
	return CodeTable(c.Table)
}

// Encode transcodes UTF-8 text; unrepresentable runes become the substitute byte
func (c Codepage) Encode(s string) []byte {
	enc := encoding.ReplaceUnsupported(c.Encoding.NewEncoder())
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
