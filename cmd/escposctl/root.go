package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/config"
	"github.com/nixxel-company-limited/escpos-printkit/discovery"
	"github.com/nixxel-company-limited/escpos-printkit/driver"
	"github.com/nixxel-company-limited/escpos-printkit/identify"
	"github.com/nixxel-company-limited/escpos-printkit/metrics"
	"github.com/nixxel-company-limited/escpos-printkit/spool"
)

var rootCmd = &cobra.Command{
	Use:   "escposctl",
	Short: "Find, identify and print to ESC/POS receipt printers",
	Long: `escposctl discovers thermal receipt printers on the LAN and on USB, identifies their model,
renders receipt templates into ESC/POS commands and sends them. It can also bridge a USB printer
to a raw TCP port and serve an HTTP API.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (yaml, toml or json)")
}

// app is every component wired from one configuration
type app struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	transport *adapter.Transport
	registry  *driver.Registry
	scanner   *discovery.Scanner
	spooler   *spool.Spooler
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	topts := cfg.TransportOptions()
	topts.Events = func(e adapter.Event) { m.DeviceEvent(e.Type.String()) }
	transport := adapter.NewTransport(topts)
	prober := identify.NewProber(transport, cfg.Identify.Timeout).
		WithObserver(func(port adapter.Port, r identify.Result) {
			m.Identification(string(port.Kind), string(r.Status))
		})

	opts := cfg.DriverOptions()
	registry, err := driver.NewRegistry(prober, opts)
	if err != nil {
		return nil, err
	}

	scanner := discovery.NewScanner(cfg.ScanConfig()).
		WithObserver(func(r discovery.ProbeResult) { m.Probe(r.Open) })

	return &app{
		cfg:       cfg,
		metrics:   m,
		transport: transport,
		registry:  registry,
		scanner:   scanner,
		spooler:   spool.New(transport).WithMetrics(m),
	}, nil
}

func (a *app) usbDiscovery() *discovery.USBDiscovery {
	return discovery.NewUSBDiscovery(discovery.NewUSBScanner(), a.registry, a.transport)
}

func (a *app) close() {
	a.spooler.Close()
}
