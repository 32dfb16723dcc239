package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-printkit/driver"
)

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:9100", c.Server.Address)
	assert.Equal(t, "localhost:8080", c.API.Address)
	assert.Equal(t, 3*time.Second, c.Transport.ConnectTimeout)
	assert.Equal(t, 10*time.Second, c.Transport.WriteTimeout)
	assert.Equal(t, time.Second, c.Transport.Grace)
	assert.Equal(t, 2*time.Second, c.Identify.Timeout)
	assert.False(t, c.Identify.RequireResponse)
	assert.Equal(t, 9100, c.Discovery.Port)
	assert.Equal(t, time.Second, c.Discovery.Timeout)
	assert.Equal(t, 24, c.Discovery.WindowBits)
	assert.Empty(t, c.Discovery.CIDR)
	assert.Zero(t, c.Printer.Columns)

	assert.Zero(t, c.DriverOptions().Columns)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ESCPOS_SERVER_ADDRESS", "0.0.0.0:9200")
	t.Setenv("ESCPOS_IDENTIFY_REQUIRE_RESPONSE", "true")
	t.Setenv("ESCPOS_DISCOVERY_TIMEOUT", "250ms")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9200", c.Server.Address)
	assert.True(t, c.Identify.RequireResponse)
	assert.Equal(t, 250*time.Millisecond, c.Discovery.Timeout)
	assert.True(t, c.DriverOptions().RequireResponse)
}

func TestColumnsOverrideAtDefaultWidth(t *testing.T) {
	t.Setenv("ESCPOS_PRINTER_COLUMNS", "32")

	c, err := Load("")
	require.NoError(t, err)
	opts := c.DriverOptions()
	assert.Equal(t, 32, opts.Columns)

	opts.Logger = log.New(io.Discard, "", 0)
	reg, err := driver.NewRegistry(nil, opts)
	require.NoError(t, err)
	epson, ok := reg.Lookup("Epson TM-T20")
	require.True(t, ok)
	assert.Equal(t, 32, epson.Profile().Columns)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escpos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discovery:
  cidr: 192.168.50.0/30
  max_concurrency: 64
printer:
  columns: 48
  codepage: cp866
transport:
  grace: 500ms
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.50.0/30", c.Discovery.CIDR)
	assert.Equal(t, 64, c.ScanConfig().MaxConcurrency)
	assert.Equal(t, 500*time.Millisecond, c.TransportOptions().Grace)

	opts := c.DriverOptions()
	assert.Equal(t, 48, opts.Columns)
	assert.Equal(t, "cp866", opts.Codepage)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
