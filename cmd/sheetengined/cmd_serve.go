package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetengine/sheetengine/internal/daemon"
	"github.com/sheetengine/sheetengine/internal/daemonapi"
	"github.com/sheetengine/sheetengine/internal/logging"
	"github.com/sheetengine/sheetengine/pkg/config"
)

const gracefulShutdownTimeout = 10 * time.Second

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway daemon in the foreground",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (overrides config)")
}

func runServe() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if servePort > 0 {
		cfg.RestAPI.Port = servePort
	}
	if serveHost != "" {
		cfg.RestAPI.Host = serveHost
	}

	if err := cfg.EnsureConfigDir(); err != nil {
		fmt.Fprintf(os.Stderr, "error creating category directory: %v\n", err)
		os.Exit(1)
	}

	d := daemon.New(config.ConfigPath(), Version)
	if d.IsRunning() {
		status := d.Status()
		fmt.Fprintf(os.Stderr, "gateway is already running (PID %d)\n", status.PID)
		os.Exit(1)
	}

	if err := d.Start(cfg.RestAPI.Host, cfg.RestAPI.Port); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not register daemon state: %v\n", err)
	}
	defer d.Cleanup()

	server := daemonapi.NewServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Printf("received %v, shutting down\n", sig)
		cancel()
	}()

	fmt.Printf("sheetengined v%s listening on %s:%d\n", Version, cfg.RestAPI.Host, cfg.RestAPI.Port)
	if err := server.StartWithContext(ctx, gracefulShutdownTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		os.Exit(1)
	}
}
