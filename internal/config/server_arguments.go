package config

import (
	"errors"

	flag "github.com/spf13/pflag"
)

type ServerArgs struct {
	Host        string
	Port        uint
	BufferSize  uint
	MetricsAddr string

	LogOptions

	Config      string
	ShowVersion bool
}

func ParseServerArgs() (ServerArgs, error) {
	var args ServerArgs

	flag.Usage = func() {
		println("tcpping-server - TCP echo responder for tcpping")
		println()
		println("Usage:")
		println("  tcpping-server [OPTIONS]")
		println()
		println("Options:")
		flag.PrintDefaults()
	}

	flag.BoolVarP(&args.ShowVersion, "version", "v", false, "Show version information")
	flag.StringVar(&args.Host, "host", DefaultListenHost, "Listen address")
	flag.UintVarP(&args.Port, "port", "p", DefaultPort, "Listen port")
	flag.UintVar(&args.BufferSize, "buffer-size", DefaultPacketSize, "Per-connection read buffer size in bytes")
	flag.StringVar(&args.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9101)")
	addLogFlags(&args.LogOptions)
	flag.StringVar(&args.Config, "config", "", "Config file (yaml, toml or json)")
	flag.Parse()

	if args.ShowVersion {
		return args, nil
	}

	v, err := newViper(flag.CommandLine)
	if err != nil {
		return args, err
	}

	args.Host = v.GetString("host")
	args.Port = v.GetUint("port")
	args.BufferSize = v.GetUint("buffer-size")
	args.MetricsAddr = v.GetString("metrics-addr")
	readLogOptions(v, &args.LogOptions)

	switch {
	case args.Port > 65535:
		return args, errors.New("port must be between 0 and 65535")
	case args.BufferSize == 0:
		return args, errors.New("buffer size must be greater than 0")
	}

	if err := args.LogOptions.validate(); err != nil {
		return args, err
	}

	return args, nil
}
