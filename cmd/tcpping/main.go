package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tkjaer/tcpping/internal/config"
	"github.com/tkjaer/tcpping/internal/metrics"
	"github.com/tkjaer/tcpping/internal/probe"
	"github.com/tkjaer/tcpping/internal/version"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup happens before exit
func run() int {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if args.ShowVersion {
		fmt.Println(version.FullVersion("tcpping"))
		return 0
	}

	// Setup logging
	logFile, err := config.SetupLogging(args.LogOptions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	slog.Debug("Starting TCP ping",
		"host", args.Host,
		"port", args.Port,
		"size", args.Size,
		"threads", args.Threads,
		"count", args.Count,
		"keep_alive", args.KeepAlive,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reg prometheus.Registerer
	if args.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		reg = registry
		go func() {
			if err := metrics.Serve(ctx, args.MetricsAddr, registry); err != nil {
				slog.Error("Metrics endpoint failed", "error", err)
			}
		}()
	}

	pm, err := probe.NewProbeManager(args, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create probe manager: %v\n", err)
		return 1
	}

	// Set up signal handling for Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Run in a goroutine so we can handle signals
	done := make(chan error)
	go func() {
		done <- pm.Run(ctx)
	}()

	// Wait for either completion or interrupt
	select {
	case err = <-done:
	case <-sigChan:
		slog.Debug("Received interrupt signal, stopping...")
		cancel()
		// Workers stop after their in-flight probe
		err = <-done
	}
	if err != nil {
		slog.Error("Probe manager error", "error", err)
		return 1
	}

	slog.Debug("TCP ping completed")
	return 0
}
