package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Face Attendance HTTP API.
The server enrolls identities, runs recognition passes on submitted embeddings
or images and serves the attendance log. Prometheus metrics are exposed on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8085, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().StringSlice("allowed-origins", nil, "Extra CORS origins (overrides WEB_ALLOWED_ORIGINS)")
	addMatchFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, matchOverrides(cmd))
	if err != nil {
		return err
	}

	webCfg := a.cfg.Web
	if cmd.Flags().Changed("port") {
		webCfg.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		webCfg.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("allowed-origins") {
		webCfg.AllowedOrigins = mustGetStringSlice(cmd, "allowed-origins")
	}

	fmt.Printf("Matcher: %s (threshold %.2f), attendance dedup: %s\n",
		a.service.Algorithm(), a.service.Threshold(), a.ledger.Dedup())

	server := web.NewServer(&webCfg, web.Deps{
		Store:       a.store,
		Ledger:      a.ledger,
		Recognition: a.service,
		Metrics:     a.metrics,
		Logger:      a.logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance API on http://%s:%d\n", webCfg.Host, webCfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	err = server.Start()
	a.Close()
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
