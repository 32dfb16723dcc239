package driver

import (
	"context"
	"time"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/escpos"
	"github.com/nixxel-company-limited/escpos-printkit/identify"
)

// Set-IP prefixes as sent by the vendors' configuration utilities.
// They are opaque and only valid for their own model family.
var (
	epsonSetIPPrefix    = []byte{0x1D, 0x28, 0x45, 0x06, 0x00, 0x0B, 0x49}
	xprinterSetIPPrefix = []byte{0x1F, 0x1B, 0x1F, 0x91, 0x00, 0x49, 0x50}
	hprtSetIPPrefix     = []byte{0x1F, 0x1B, 0x1F, 0xB1, 0x49, 0x50}
	genericSetIPPrefix  = []byte{0x1F, 0x1B, 0x1F, 0x22, 0x49, 0x50}
)

func defaultLAN(ip string) LANConfig {
	return LANConfig{IP: ip, Netmask: "255.255.255.0", Gateway: "", Port: adapter.DefaultRawPort}
}

// EpsonTMT20 drives the Epson TM-T20 family
type EpsonTMT20 struct{ *model }

// NewEpsonTMT20 creates the Epson TM-T20 driver
func NewEpsonTMT20() *EpsonTMT20 {
	return &EpsonTMT20{&model{
		name:         "Epson TM-T20",
		manufacturer: "EPSON",
		aliases:      []string{"TM-T20"},
		lan:          defaultLAN("192.168.192.168"),
		setIPPrefix:  epsonSetIPPrefix,
		restartDelay: 10 * time.Second,
		profile: escpos.Profile{
			Columns: 42,
			// GS V 66 0: feed to cut position and partial cut
			PartialCut: []byte{escpos.GS, 0x56, 0x42, 0x00},
		},
	}}
}

// Xprinter drives Xprinter XP-58/XP-80 models
type Xprinter struct{ *model }

// NewXprinter creates the Xprinter driver
func NewXprinter() *Xprinter {
	return &Xprinter{&model{
		name:         "Xprinter",
		manufacturer: "Xprinter",
		aliases:      []string{"XP-"},
		lan:          defaultLAN("192.168.123.100"),
		setIPPrefix:  xprinterSetIPPrefix,
		restartDelay: 5 * time.Second,
		profile: escpos.Profile{
			Columns:    escpos.DefaultColumns,
			PartialCut: []byte{escpos.GS, 0x56, 0x01},
		},
	}}
}

// HPRT drives HPRT TP80x models
type HPRT struct{ *model }

// NewHPRT creates the HPRT driver
func NewHPRT() *HPRT {
	return &HPRT{&model{
		name:         "HPRT",
		manufacturer: "HPRT",
		aliases:      []string{"Hanin"},
		lan:          defaultLAN("192.168.1.87"),
		setIPPrefix:  hprtSetIPPrefix,
		restartDelay: 8 * time.Second,
		profile: escpos.Profile{
			Columns:    escpos.DefaultColumns,
			PartialCut: []byte{escpos.GS, 0x56, 0x31},
		},
	}}
}

// Generic drives unbranded ESC/POS printers. It is the registry fallback and
// accepts any device that answered or stayed silent.
type Generic struct{ *model }

// NewGeneric creates the generic ESC/POS driver
func NewGeneric() *Generic {
	return &Generic{&model{
		name:         "Generic ESC/POS",
		manufacturer: "",
		lan:          defaultLAN("192.168.1.100"),
		setIPPrefix:  genericSetIPPrefix,
		restartDelay: 6 * time.Second,
		profile: escpos.Profile{
			Columns: escpos.DefaultColumns,
		},
	}}
}

// Accepts any answer; silence is accepted unless a response is required
func (g *Generic) Accepts(r identify.Result) bool {
	switch r.Status {
	case identify.StatusSuccess:
		return true
	case identify.StatusNoResponse:
		return !g.strict
	}
	return false
}

// Identify uses the generic acceptance rule
func (g *Generic) Identify(ctx context.Context, port adapter.Port) bool {
	if g.identifier == nil {
		return false
	}
	return g.Accepts(g.identifier.Identify(ctx, port))
}
