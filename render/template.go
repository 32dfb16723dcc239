// Package render turns a receipt template and receipt data into a printer command buffer.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Element types
const (
	TypeText          = "text"
	TypeLineSeparator = "line_separator"
	TypeLineFeed      = "line_feed"
	TypeQRCode        = "qr_code"
	TypeCutPaper      = "cut_paper"
	TypeBuzzer        = "buzzer"
	TypeDrawerPulse   = "drawer_pulse"
	TypeTestPrint     = "test_print"
	TypeItemsList     = "items_list"
)

// Element is one tagged template entry. Which fields apply depends on Type.
type Element struct {
	Type string `mapstructure:"type" json:"type"`

	// text, test_print
	Content   string `mapstructure:"content" json:"content,omitempty"`
	Align     string `mapstructure:"align" json:"align,omitempty"`
	Bold      bool   `mapstructure:"bold" json:"bold,omitempty"`
	Italic    bool   `mapstructure:"italic" json:"italic,omitempty"`
	Underline bool   `mapstructure:"underline" json:"underline,omitempty"`
	// Size is a font size name for text and a module size for qr_code
	Size string `mapstructure:"size" json:"size,omitempty"`

	// line_separator
	Char  string `mapstructure:"char" json:"char,omitempty"`
	Width int    `mapstructure:"width" json:"width,omitempty"`

	// line_feed
	Lines int `mapstructure:"lines" json:"lines,omitempty"`

	// qr_code
	Data string `mapstructure:"data" json:"data,omitempty"`

	// cut_paper
	Mode string `mapstructure:"mode" json:"mode,omitempty"`

	// buzzer
	Times    int `mapstructure:"times" json:"times,omitempty"`
	Duration int `mapstructure:"duration" json:"duration,omitempty"`

	// drawer_pulse
	Pin int `mapstructure:"pin" json:"pin,omitempty"`
	On  int `mapstructure:"on" json:"on,omitempty"`
	Off int `mapstructure:"off" json:"off,omitempty"`

	// items_list
	Source     string `mapstructure:"source" json:"source,omitempty"`
	NameField  string `mapstructure:"name_field" json:"name_field,omitempty"`
	QtyField   string `mapstructure:"qty_field" json:"qty_field,omitempty"`
	PriceField string `mapstructure:"price_field" json:"price_field,omitempty"`
	Currency   string `mapstructure:"currency" json:"currency,omitempty"`

	// err records a decode failure; the renderer skips such elements
	err error
}

// Template is a receipt layout in three ordered sections
type Template struct {
	Header []Element `json:"header"`
	Body   []Element `json:"body"`
	Footer []Element `json:"footer"`
}

// Sections returns the sections in print order with their names
func (t Template) Sections() []Section {
	return []Section{
		{Name: "header", Elements: t.Header},
		{Name: "body", Elements: t.Body},
		{Name: "footer", Elements: t.Footer},
	}
}

// Section is a named slice of elements
type Section struct {
	Name     string
	Elements []Element
}

// Len counts all elements
func (t Template) Len() int {
	return len(t.Header) + len(t.Body) + len(t.Footer)
}

// Decode builds a template from generic maps, as produced by JSON, YAML or TOML decoders.
// A malformed element is kept and reported at render time; a malformed section fails the decode.
func Decode(raw map[string]any) (Template, error) {
	var t Template
	for _, s := range []struct {
		name string
		dst  *[]Element
	}{{"header", &t.Header}, {"body", &t.Body}, {"footer", &t.Footer}} {
		v, ok := raw[s.name]
		if !ok || v == nil {
			continue
		}
		var items []map[string]any
		if err := mapstructure.Decode(v, &items); err != nil {
			return Template{}, fmt.Errorf("template %s: %w", s.name, err)
		}
		for _, item := range items {
			*s.dst = append(*s.dst, decodeElement(item))
		}
	}
	return t, nil
}

func decodeElement(item map[string]any) Element {
	var el Element
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      false,
		Result:           &el,
	})
	if err != nil {
		return Element{err: err}
	}
	if err := dec.Decode(item); err != nil {
		typ, _ := item["type"].(string)
		return Element{Type: typ, err: err}
	}
	el.Type = strings.ToLower(strings.TrimSpace(el.Type))
	return el
}

// ParseTemplate decodes template bytes in the given format: json, yaml or toml
func ParseTemplate(data []byte, format string) (Template, error) {
	raw := map[string]any{}
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return Template{}, fmt.Errorf("parse json template: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Template{}, fmt.Errorf("parse yaml template: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return Template{}, fmt.Errorf("parse toml template: %w", err)
		}
	default:
		return Template{}, fmt.Errorf("unsupported template format %q", format)
	}
	return Decode(raw)
}

// LoadTemplate reads a template file; the extension selects the format
func LoadTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template: %w", err)
	}
	return ParseTemplate(data, filepath.Ext(path))
}

// LoadData reads receipt data from a JSON or YAML file
func LoadData(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read receipt data: %w", err)
	}
	out := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	case ".json":
		err = json.Unmarshal(data, &out)
	default:
		err = errors.New("want .json, .yaml or .yml")
	}
	if err != nil {
		return nil, fmt.Errorf("parse receipt data %s: %w", path, err)
	}
	return out, nil
}
