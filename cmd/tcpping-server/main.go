package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tkjaer/tcpping/internal/config"
	"github.com/tkjaer/tcpping/internal/echo"
	"github.com/tkjaer/tcpping/internal/metrics"
	"github.com/tkjaer/tcpping/internal/version"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup happens before exit
func run() int {
	args, err := config.ParseServerArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if args.ShowVersion {
		fmt.Println(version.FullVersion("tcpping-server"))
		return 0
	}

	logFile, err := config.SetupLogging(args.LogOptions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	addr := net.JoinHostPort(args.Host, strconv.Itoa(int(args.Port)))
	srv, err := echo.NewServer(addr, int(args.BufferSize), reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		return 1
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("Server error", "addr", addr, "error", err)
		return 1
	}
	slog.Debug("Server stopped")
	return 0
}
