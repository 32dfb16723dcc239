package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/driver"
	"github.com/nixxel-company-limited/escpos-printkit/render"
)

var printCmd = &cobra.Command{
	Use:   "print PORT",
	Short: "Render a template and print it",
	Long: `Renders a receipt template (json, yaml or toml) with data (json or yaml) and sends it to PORT.
Without --template the built-in receipt is used; --test prints a test page instead.`,
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

		tmplPath, _ := cmd.Flags().GetString("template")
		dataPath, _ := cmd.Flags().GetString("data")
		name, _ := cmd.Flags().GetString("driver")
		test, _ := cmd.Flags().GetBool("test")

		tmpl := render.DefaultReceipt()
		switch {
		case test:
			tmpl = render.TestPage(port.String())
		case tmplPath != "":
			if tmpl, err = render.LoadTemplate(tmplPath); err != nil {
				return err
			}
		}

		var data any
		if dataPath != "" {
			if data, err = render.LoadData(dataPath); err != nil {
				return err
			}
		}

		d, err := pickDriver(cmd, a, port, name)
		if err != nil {
			return err
		}
		cmds, err := d.GeneratePrintCommands(data, tmpl)
		if err != nil {
			return err
		}

		res := a.spooler.Print(cmd.Context(), port, cmds)
		fmt.Println(res.Message)
		if !res.OK {
			return res.Err
		}
		return nil
	},
}

func pickDriver(cmd *cobra.Command, a *app, port adapter.Port, name string) (driver.Driver, error) {
	if name != "" {
		d, ok := a.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown driver %q", name)
		}
		return d, nil
	}
	d, _, err := a.registry.Match(cmd.Context(), port)
	if errors.Is(err, driver.ErrProtocolMismatch) {
		fmt.Printf("Warning: %v, printing with %s\n", err, d.Name())
		return d, nil
	}
	return d, err
}

func init() {
	rootCmd.AddCommand(printCmd)
	printCmd.Flags().StringP("template", "t", "", "Template file")
	printCmd.Flags().StringP("data", "d", "", "Data file for placeholders")
	printCmd.Flags().String("driver", "", "Driver name; skips identification")
	printCmd.Flags().Bool("test", false, "Print a test page")
}
