package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/discovery"
)

var provisionCmd = &cobra.Command{
	Use:   "provision USB-PORT IP",
	Short: "Move a USB printer onto the LAN",
	Long: `Sends the model's set-IP command to the USB printer, waits for it to restart and prints a
test page at IP. The printer counts as provisioned only when the test page prints.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := adapter.ParsePort(args[0])
		if err != nil {
			return err
		}
		if port.Kind != adapter.KindUSB {
			return fmt.Errorf("%s is not a USB port", port)
		}
		ip := net.ParseIP(args[1])
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("%q is not an IPv4 address", args[1])
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		usb := a.usbDiscovery()
		matches, err := usb.Discover(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range matches {
			if !sameDevice(m.Device.Port, port) {
				continue
			}
			res := usb.Provision(cmd.Context(), m, ip)
			fmt.Printf("%s: %s %s\n", port, res.State, res.Message)
			return provisionError(res)
		}
		return fmt.Errorf("no known printer attached at %s", port)
	},
}

// provisionError fails the command unless the printer was verified or only identified
func provisionError(res discovery.ProvisionResult) error {
	switch res.State {
	case discovery.StateVerified, discovery.StateIdentified:
		return nil
	}
	if res.Message != "" {
		return fmt.Errorf("provisioning %s: %s", res.State, res.Message)
	}
	return fmt.Errorf("provisioning %s", res.State)
}

// sameDevice matches on IDs, and on bus and address when want names them
func sameDevice(have, want adapter.Port) bool {
	if have.VendorID != want.VendorID || have.ProductID != want.ProductID {
		return false
	}
	if want.Bus == 0 && want.Device == 0 {
		return true
	}
	return have.Bus == want.Bus && have.Device == want.Device
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}
