package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-printkit/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Serves discovery, identification and printing over HTTP, with Prometheus metrics at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		address, _ := cmd.Flags().GetString("address")
		if address == "" {
			address = a.cfg.API.Address
		}

		handler := api.New(api.Deps{
			Scanner: a.scanner,
			USB:     a.usbDiscovery(),
			Drivers: a.registry,
			Printer: a.spooler,
			Metrics: a.metrics,
		}).Handler()

		srv := &http.Server{Addr: address, Handler: handler}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("Starting API on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				return srv.Close()
			}
			fmt.Println("API stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("address", "a", "", "Address to listen on (default api.address)")
}
