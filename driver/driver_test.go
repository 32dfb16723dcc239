package driver

import (
	"context"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/identify"
	"github.com/nixxel-company-limited/escpos-printkit/render"
)

type mockIdentifier struct {
	mock.Mock
}

func (m *mockIdentifier) Identify(ctx context.Context, port adapter.Port) identify.Result {
	args := m.Called(ctx, port)
	return args.Get(0).(identify.Result)
}

func success(s string) identify.Result {
	return identify.Result{Status: identify.StatusSuccess, Data: []byte(s)}
}

var silent = identify.Result{Status: identify.StatusNoResponse}

func testRegistry(t *testing.T, id identify.Identifier, opts Options) *Registry {
	t.Helper()
	opts.Logger = log.New(io.Discard, "", 0)
	r, err := NewRegistry(id, opts)
	require.NoError(t, err)
	return r
}

func TestHPRTIdentify(t *testing.T) {
	port := adapter.LANPort("192.168.1.87")
	id := &mockIdentifier{}
	id.On("Identify", mock.Anything, port).Return(success("hprt TP805\x00"))

	r := testRegistry(t, id, Options{})
	d, ok := r.Lookup("HPRT")
	require.True(t, ok)

	assert.True(t, d.Identify(context.Background(), port))
	id.AssertExpectations(t)
}

func TestIdentifyRejectsOtherManufacturer(t *testing.T) {
	port := adapter.LANPort("10.0.0.2")
	id := &mockIdentifier{}
	id.On("Identify", mock.Anything, port).Return(success("EPSON TM-T20II"))

	r := testRegistry(t, id, Options{})
	hprt, _ := r.Lookup("HPRT")
	epson, _ := r.Lookup("EPSON")

	assert.False(t, hprt.Identify(context.Background(), port))
	assert.True(t, epson.Identify(context.Background(), port))
}

func TestIdentifyAcceptsSilence(t *testing.T) {
	for _, d := range []Driver{NewEpsonTMT20(), NewXprinter(), NewHPRT(), NewGeneric()} {
		assert.True(t, d.Accepts(silent), d.Name())
		assert.False(t, d.Accepts(identify.Result{Status: identify.StatusError}), d.Name())
		assert.False(t, d.Accepts(identify.Result{Status: identify.StatusTimeout}), d.Name())
	}
}

func TestStrictModeRejectsSilence(t *testing.T) {
	r := testRegistry(t, nil, Options{RequireResponse: true})
	for _, d := range r.Drivers() {
		assert.False(t, d.Accepts(silent), d.Name())
	}

	_, err := r.Select(silent)
	assert.ErrorIs(t, err, ErrUnidentified)
}

func TestSelectOrder(t *testing.T) {
	r := testRegistry(t, nil, Options{})

	d, err := r.Select(success("Xprinter XP-80C"))
	require.NoError(t, err)
	assert.Equal(t, "Xprinter", d.Name())

	// Silence goes to the first driver in order, or the preferred one
	d, err = r.Select(silent)
	require.NoError(t, err)
	assert.Equal(t, "Epson TM-T20", d.Name())

	d, err = r.Select(silent, "HPRT")
	require.NoError(t, err)
	assert.Equal(t, "HPRT", d.Name())
}

func TestSelectMismatchReturnsFallback(t *testing.T) {
	r := testRegistry(t, nil, Options{})

	d, err := r.Select(success("ACME POS-9000"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolMismatch)

	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "ACME POS-9000", me.Identity)
	assert.Same(t, r.Fallback(), d)
}

func TestSelectUnreachable(t *testing.T) {
	r := testRegistry(t, nil, Options{})
	d, err := r.Select(identify.Result{Status: identify.StatusError, Message: "refused"})
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrUnidentified)
}

func TestMatchIdentifiesOnce(t *testing.T) {
	port := adapter.USBPort(0x0525, 0xa700, 1, 3)
	id := &mockIdentifier{}
	id.On("Identify", mock.Anything, port).Return(success("HPRT")).Once()

	r := testRegistry(t, id, Options{})
	d, res, err := r.Match(context.Background(), port)
	require.NoError(t, err)
	assert.Equal(t, "HPRT", d.Name())
	assert.Equal(t, identify.StatusSuccess, res.Status)
	id.AssertNumberOfCalls(t, "Identify", 1)
}

func TestSetIPCommand(t *testing.T) {
	ip := net.ParseIP("192.168.1.200")

	cmd, err := NewXprinter().SetIPCommand(ip)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1F, 0x1B, 0x1F, 0x91, 0x00, 0x49, 0x50, 192, 168, 1, 200}, cmd)

	for _, d := range []Driver{NewEpsonTMT20(), NewHPRT(), NewGeneric()} {
		cmd, err := d.SetIPCommand(ip)
		require.NoError(t, err)
		assert.Equal(t, []byte{192, 168, 1, 200}, cmd[len(cmd)-4:], d.Name())
		assert.Greater(t, len(cmd), 4)
	}

	_, err = NewHPRT().SetIPCommand(net.ParseIP("fe80::1"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	for _, d := range []Driver{NewEpsonTMT20(), NewXprinter(), NewHPRT(), NewGeneric()} {
		lan := d.DefaultLANConfig()
		assert.NotNil(t, net.ParseIP(lan.IP), d.Name())
		assert.Equal(t, 9100, lan.Port)
		assert.GreaterOrEqual(t, d.RestartDelay(), time.Second)
		assert.Positive(t, d.Profile().Columns)
	}
}

func TestHPRTFullCut(t *testing.T) {
	r := testRegistry(t, nil, Options{})
	hprt, _ := r.Lookup("HPRT")

	tmpl := render.Template{Footer: []render.Element{{Type: render.TypeCutPaper, Mode: "full"}}}
	out, err := hprt.GeneratePrintCommands(nil, tmpl)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1B, 0x40, 0x0A, 0x0A, 0x0A, 0x1D, 0x56, 0x00}, out)
}

func TestGeneratePrintCommandsUsesModelProfile(t *testing.T) {
	r := testRegistry(t, nil, Options{Codepage: "cp437"})
	epson, _ := r.Lookup("Epson TM-T20")

	tmpl := render.Template{Body: []render.Element{
		{Type: render.TypeLineSeparator},
		{Type: render.TypeCutPaper, Mode: "partial"},
	}}
	out, err := epson.GeneratePrintCommands(nil, tmpl)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x1B, 0x40, 0x1B, 0x74, 0x00}, out[:5])
	assert.Contains(t, string(out), string(make42('-')))
	assert.Equal(t, []byte{0x0A, 0x0A, 0x0A, 0x1D, 0x56, 0x42, 0x00}, out[len(out)-7:])

	_, err = epson.GeneratePrintCommands(nil, render.Template{Body: []render.Element{{Type: "bogus"}}})
	assert.ErrorIs(t, err, render.ErrNothingRendered)
}

func TestRegistryRejectsUnknownCodepage(t *testing.T) {
	_, err := NewRegistry(nil, Options{Codepage: "ebcdic", Logger: log.New(io.Discard, "", 0)})
	assert.Error(t, err)
}

func make42(c byte) []byte {
	out := make([]byte, 42)
	for i := range out {
		out[i] = c
	}
	return out
}
