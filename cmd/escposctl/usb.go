package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-printkit/discovery"
)

var usbCmd = &cobra.Command{
	Use:   "usb",
	Short: "List attached USB printers and their drivers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()

		if serial, _ := cmd.Flags().GetBool("serial"); serial {
			ports, err := discovery.SerialPorts(0)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "PORT")
			for _, p := range ports {
				fmt.Fprintln(w, p)
			}
			return nil
		}

		matches, err := a.usbDiscovery().Discover(cmd.Context())
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No known USB printers attached")
			return nil
		}

		fmt.Fprintln(w, "PORT\tMODEL\tDRIVER\tSTATUS\tNOTE")
		for _, m := range matches {
			driverName := m.DriverName
			if driverName == "" {
				driverName = "-"
			}
			note := m.Message
			if m.Blind {
				note = "blind: " + note
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Device.Port, m.Device.Signature.Model, driverName, m.Identification.Status, note)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usbCmd)
	usbCmd.Flags().Bool("serial", false, "List serial ports instead")
}
