package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the local network for printers",
	Long: `Probes every host of the local IPv4 segments (or --cidr) for an open raw printing port.
Large subnets are limited to the window around this host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		cidr, _ := cmd.Flags().GetString("cidr")
		if cidr == "" {
			cidr = a.cfg.Discovery.CIDR
		}
		ident, _ := cmd.Flags().GetBool("identify")

		open, err := a.scanner.Discover(cmd.Context(), cidr)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			fmt.Println("No printers found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()
		if !ident {
			fmt.Fprintln(w, "ADDRESS")
			for _, addr := range open {
				fmt.Fprintln(w, addr)
			}
			return nil
		}

		fmt.Fprintln(w, "ADDRESS\tDRIVER\tSTATUS\tIDENTITY")
		for _, addr := range open {
			port := adapter.LANPort(fmt.Sprintf("%s:%d", addr, a.cfg.Discovery.Port))
			d, res, err := a.registry.Match(cmd.Context(), port)
			name := "-"
			if d != nil {
				name = d.Name()
			}
			if err != nil && d == nil {
				name = "unidentified"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", addr, name, res.Status, res.Identity())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().String("cidr", "", "Scan this IPv4 range instead of the local segments")
	discoverCmd.Flags().Bool("identify", false, "Identify every printer found")
}
