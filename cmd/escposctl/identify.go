package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/driver"
)

var identifyCmd = &cobra.Command{
	Use:   "identify PORT",
	Short: "Ask a printer for its model and pick a driver",
	Long: `Sends the identification queries to PORT and matches the answer against the known models.
PORT is lan:HOST[:PORT], usb:VID:PID[:BUS:DEV] or com:PATH[@BAUD]; a bare host means LAN.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := adapter.ParsePort(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		d, res, err := a.registry.Match(cmd.Context(), port)
		fmt.Printf("Port:     %s\n", port)
		fmt.Printf("Status:   %s\n", res.Status)
		if id := res.Identity(); id != "" {
			fmt.Printf("Identity: %s\n", id)
		}
		switch {
		case err == nil:
			fmt.Printf("Driver:   %s\n", d.Name())
		case errors.Is(err, driver.ErrProtocolMismatch):
			fmt.Printf("Driver:   %s (blind)\n", d.Name())
		default:
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}
