package render

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-printkit/escpos"
)

func testRenderer() *Renderer {
	return NewWithLogger(escpos.NewEncoder(escpos.Profile{}), log.New(io.Discard, "", 0))
}

func sampleData() map[string]any {
	return map[string]any{
		"store": map[string]any{"name": "Corner Café", "address": "Rua Augusta 1"},
		"items": []any{
			map[string]any{"name": "Espresso", "quantity": 2, "price": 2.4},
			map[string]any{"name": "Pastel de nata", "quantity": 1, "price": 1.5},
		},
		"total":    "3.90",
		"order_id": "ORD-1001",
	}
}

func TestRenderStartsWithInit(t *testing.T) {
	res := testRenderer().Render(Template{}, nil)
	assert.Equal(t, escpos.Init(), res.Commands)
	assert.Zero(t, res.Rendered)
}

func TestRenderOrder(t *testing.T) {
	tmpl := Template{
		Footer: []Element{{Type: TypeText, Content: "C"}},
		Header: []Element{{Type: TypeText, Content: "A"}},
		Body:   []Element{{Type: TypeText, Content: "B"}},
	}
	out := testRenderer().Render(tmpl, nil).Commands

	a := bytes.Index(out, []byte("A\n"))
	b := bytes.Index(out, []byte("B\n"))
	c := bytes.Index(out, []byte("C\n"))
	assert.True(t, a > 0 && a < b && b < c)
}

func TestRenderSkipsUnknownElement(t *testing.T) {
	valid := []Element{
		{Type: TypeText, Content: "hello"},
		{Type: TypeLineSeparator, Char: "="},
		{Type: TypeLineFeed, Lines: 2},
		{Type: TypeQRCode, Data: "https://example.com"},
		{Type: TypeCutPaper, Mode: "full"},
		{Type: TypeBuzzer},
		{Type: TypeDrawerPulse},
		{Type: TypeTestPrint},
		{Type: TypeItemsList},
	}

	var expected []byte
	expected = append(expected, escpos.Init()...)
	r := testRenderer()
	for _, el := range valid {
		cmd, err := r.element(el, sampleData())
		require.NoError(t, err, el.Type)
		expected = append(expected, cmd...)
	}

	body := append([]Element{}, valid[:4]...)
	body = append(body, Element{Type: "hologram"})
	body = append(body, valid[4:]...)

	res := r.Render(Template{Body: body}, sampleData())
	assert.Equal(t, len(valid), res.Rendered)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], ErrUnknownElement)

	var ee *ElementError
	require.ErrorAs(t, res.Warnings[0], &ee)
	assert.Equal(t, "body", ee.Section)
	assert.Equal(t, 4, ee.Index)
	assert.Equal(t, expected, res.Commands)
}

func TestRenderSkipsMalformedElements(t *testing.T) {
	tmpl := Template{Body: []Element{
		{Type: TypeQRCode, Data: ""},
		{Type: TypeQRCode, Data: "x", Size: "huge"},
		{Type: TypeBuzzer, Times: 42},
		{Type: TypeItemsList, Source: "missing"},
		{Type: TypeText, Content: "still here"},
	}}
	res := testRenderer().Render(tmpl, sampleData())
	assert.Equal(t, 1, res.Rendered)
	assert.Len(t, res.Warnings, 4)
	assert.True(t, bytes.Contains(res.Commands, []byte("still here\n")))
}

func TestCommandsFailsWhenNothingRendered(t *testing.T) {
	_, err := testRenderer().Commands(Template{Body: []Element{{Type: "nope"}}}, nil)
	assert.ErrorIs(t, err, ErrNothingRendered)

	out, err := testRenderer().Commands(Template{}, nil)
	require.NoError(t, err)
	assert.Equal(t, escpos.Init(), out)
}

func TestTextSubstitution(t *testing.T) {
	tmpl := Template{Header: []Element{{Type: TypeText, Content: "Welcome to {{store.name}} {{store.phone}}"}}}
	out := testRenderer().Render(tmpl, sampleData()).Commands
	assert.True(t, bytes.Contains(out, []byte("Welcome to Corner Café {{store.phone}}\n")))
}

func TestItemsListAlignment(t *testing.T) {
	r := NewWithLogger(escpos.NewEncoder(escpos.Profile{Columns: 24}), log.New(io.Discard, "", 0))
	data := map[string]any{"items": []any{
		map[string]any{"name": "Café crème", "quantity": 1, "price": 3.5},
		map[string]any{"name": "東京ラーメン", "price": 12},
		map[string]any{"name": "An extremely long product name", "price": "9.99"},
	}}

	out, err := r.element(Element{Type: TypeItemsList, Currency: "€"}, data)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	require.Len(t, lines, 3)

	prefix := string(escpos.Align(escpos.AlignLeft))
	for _, line := range lines {
		line = strings.TrimPrefix(line, prefix)
		assert.Equal(t, 24, utf8.RuneCountInString(line), line)
	}
	assert.True(t, strings.HasSuffix(lines[0], "€3.50"))
	assert.True(t, strings.HasSuffix(lines[1], "€12.00"))
	assert.True(t, strings.HasSuffix(lines[2], "€9.99"))
	assert.Contains(t, lines[0], "1x Café crème")
}

func TestPadLine(t *testing.T) {
	assert.Equal(t, "Tea        1.00", PadLine("Tea", "1.00", 15))
	assert.Equal(t, "Ñandú      1.00", PadLine("Ñandú", "1.00", 15))
	assert.Equal(t, "Very long 1.00", PadLine("Very long name", "1.00", 14))
	assert.Equal(t, " 123456", PadLine("abc", "123456", 3))
}

func TestDecode(t *testing.T) {
	raw := map[string]any{
		"header": []any{
			map[string]any{"type": "text", "content": "Hi", "bold": "true", "align": "center"},
		},
		"body": []any{
			map[string]any{"type": "qr_code", "data": "x", "size": 4},
			map[string]any{"type": "text", "content": map[string]any{"oops": 1}},
		},
	}

	tmpl, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, tmpl.Header, 1)
	assert.True(t, tmpl.Header[0].Bold)
	assert.Equal(t, "4", tmpl.Body[0].Size)
	assert.Error(t, tmpl.Body[1].err)

	res := testRenderer().Render(tmpl, nil)
	assert.Equal(t, 2, res.Rendered)
	assert.Len(t, res.Warnings, 1)
}

func TestDecodeRejectsBadSection(t *testing.T) {
	_, err := Decode(map[string]any{"body": "not a list"})
	assert.Error(t, err)
}

func TestParseTemplateFormats(t *testing.T) {
	jsonSrc := `{"body":[{"type":"text","content":"json"}]}`
	yamlSrc := "body:\n  - type: text\n    content: yaml\n"
	tomlSrc := "[[body]]\ntype = \"text\"\ncontent = \"toml\"\n"

	for format, src := range map[string]string{"json": jsonSrc, "yaml": yamlSrc, "toml": tomlSrc} {
		tmpl, err := ParseTemplate([]byte(src), format)
		require.NoError(t, err, format)
		require.Len(t, tmpl.Body, 1, format)
		assert.Equal(t, format, tmpl.Body[0].Content)
	}

	_, err := ParseTemplate([]byte("x"), "xml")
	assert.Error(t, err)
}

func TestLoadTemplateAndData(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "receipt.yaml")
	dataPath := filepath.Join(dir, "order.json")
	require.NoError(t, os.WriteFile(tmplPath, []byte("header:\n  - type: text\n    content: \"{{store.name}}\"\n"), 0o644))
	require.NoError(t, os.WriteFile(dataPath, []byte(`{"store":{"name":"Deli"}}`), 0o644))

	tmpl, err := LoadTemplate(tmplPath)
	require.NoError(t, err)
	data, err := LoadData(dataPath)
	require.NoError(t, err)

	out := testRenderer().Render(tmpl, data).Commands
	assert.True(t, bytes.Contains(out, []byte("Deli\n")))

	_, err = LoadTemplate(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestDefaultReceipt(t *testing.T) {
	res := testRenderer().Render(DefaultReceipt(), sampleData())
	assert.Empty(t, res.Warnings)
	assert.Equal(t, DefaultReceipt().Len(), res.Rendered)
	assert.True(t, bytes.HasSuffix(res.Commands, []byte{0x0A, 0x0A, 0x0A, 0x1D, 0x56, 0x00}))
}
