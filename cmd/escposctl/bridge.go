package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/server"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Expose a printer as a raw TCP print port",
	Long: `Listens on server.address and forwards every client's bytes to one printer, typically USB.
Without --printer or server.printer the first attached USB printer is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		address, _ := cmd.Flags().GetString("address")
		if address == "" {
			address = a.cfg.Server.Address
		}
		spec, _ := cmd.Flags().GetString("printer")
		if spec == "" {
			spec = a.cfg.Server.Printer
		}

		port, err := bridgePort(spec)
		if err != nil {
			return err
		}

		srv := server.New(a.transport, port, address)
		if err := srv.StartAsync(); err != nil {
			return err
		}

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		sig := <-shutdown
		fmt.Printf("\nShutting down... Signal: %v\n", sig)
		return srv.Stop()
	},
}

func bridgePort(spec string) (adapter.Port, error) {
	if spec != "" {
		return adapter.ParsePort(spec)
	}
	ports, err := adapter.FindPrinterPorts()
	if err != nil {
		return adapter.Port{}, err
	}
	if len(ports) == 0 {
		return adapter.Port{}, fmt.Errorf("no USB printer found")
	}
	return ports[0], nil
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringP("address", "a", "", "Address to listen on (default server.address)")
	bridgeCmd.Flags().String("printer", "", "Printer port to forward to")
}
