package render

// TestPage is the template used to confirm a printer is reachable
func TestPage(label string) Template {
	return Template{
		Body: []Element{
			{Type: TypeTestPrint, Content: label},
			{Type: TypeLineFeed, Lines: 1},
		},
		Footer: []Element{
			{Type: TypeCutPaper, Mode: "partial"},
		},
	}
}

// DefaultReceipt is a plain sales receipt over store, items, total and order_id
func DefaultReceipt() Template {
	return Template{
		Header: []Element{
			{Type: TypeText, Content: "{{store.name}}", Align: "center", Bold: true, Size: "double"},
			{Type: TypeText, Content: "{{store.address}}", Align: "center"},
			{Type: TypeLineSeparator},
		},
		Body: []Element{
			{Type: TypeItemsList},
			{Type: TypeLineSeparator},
			{Type: TypeText, Content: "TOTAL {{total}}", Align: "right", Bold: true},
		},
		Footer: []Element{
			{Type: TypeLineFeed},
			{Type: TypeQRCode, Data: "{{order_id}}", Size: "6"},
			{Type: TypeText, Content: "Thank you!", Align: "center"},
			{Type: TypeCutPaper, Mode: "full"},
		},
	}
}
