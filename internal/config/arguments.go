package config

import (
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPort       = 8080
	DefaultPacketSize = 1024
	DefaultThreads    = 1
	DefaultListenHost = "0.0.0.0"

	envPrefix = "TCPPING"
)

// LogOptions are shared by the client and the server
type LogOptions struct {
	Log       string // log file path, empty means stderr only
	LogLevel  string // log level: debug, info, warn, error
	LogFormat string // log format: auto, text, json
}

type Args struct {
	Host      string
	Port      uint
	Size      uint
	Threads   uint
	Count     uint
	KeepAlive bool

	// Output
	Json        bool   // output json to stdout
	JsonFile    string // output json to file
	MetricsAddr string // address for the Prometheus endpoint, empty disables it

	LogOptions

	Config      string // optional config file
	ShowVersion bool
}

func ParseArgs() (Args, error) {
	var args Args

	flag.Usage = func() {
		println("tcpping - TCP round-trip latency probe")
		println()
		println("Measures connect + echo latency against a tcpping-server.")
		println()
		println("Usage:")
		println("  tcpping [OPTIONS] --host HOST")
		println()
		println("Examples:")
		println("  tcpping --host 192.0.2.10                 # One worker, new connection per probe")
		println("  tcpping --host 192.0.2.10 -k -t 4 -c 100  # Four workers on persistent connections")
		println("  tcpping --host 192.0.2.10 -J -s 64        # JSON lines to stdout, 64 byte payload")
		println()
		println("Every option can also be set as TCPPING_<OPTION> (e.g. TCPPING_KEEP_ALIVE=true).")
		println()
		println("Options:")
		flag.PrintDefaults()
	}

	flag.BoolVarP(&args.ShowVersion, "version", "v", false, "Show version information")
	flag.StringVar(&args.Host, "host", "", "Target host (may also be given as the first argument)")
	flag.UintVarP(&args.Port, "port", "p", DefaultPort, "Target port")
	flag.UintVarP(&args.Size, "size", "s", DefaultPacketSize, "Packet size in bytes")
	flag.UintVarP(&args.Threads, "threads", "t", DefaultThreads, "Number of concurrent workers")
	flag.UintVarP(&args.Count, "count", "c", 0, "Number of probes per worker (0 = infinite)")
	flag.BoolVarP(&args.KeepAlive, "keep-alive", "k", false, "Reuse one TCP connection per worker between probes")
	flag.BoolVarP(&args.Json, "json", "J", false, "Write JSON output to stdout")
	flag.StringVarP(&args.JsonFile, "json-file", "j", "", "Write JSON output to file")
	flag.StringVar(&args.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
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
	if args.Host == "" {
		args.Host = flag.Arg(0)
	}
	args.Port = v.GetUint("port")
	args.Size = v.GetUint("size")
	args.Threads = v.GetUint("threads")
	args.Count = v.GetUint("count")
	args.KeepAlive = v.GetBool("keep-alive")
	args.Json = v.GetBool("json")
	args.JsonFile = v.GetString("json-file")
	args.MetricsAddr = v.GetString("metrics-addr")
	readLogOptions(v, &args.LogOptions)

	switch {
	case args.Host == "":
		return args, errors.New("host is required")
	case args.Port == 0 || args.Port > 65535:
		return args, errors.New("port must be between 1 and 65535")
	case args.Size == 0:
		return args, errors.New("packet size must be greater than 0")
	case args.Threads == 0:
		return args, errors.New("thread count must be greater than 0")
	case args.Json && args.JsonFile != "":
		return args, errors.New("cannot use both --json and --json-file")
	}

	if err := args.LogOptions.validate(); err != nil {
		return args, err
	}

	return args, nil
}

func addLogFlags(o *LogOptions) {
	flag.StringVarP(&o.Log, "log", "l", "", "Also write logs to this file")
	flag.StringVar(&o.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&o.LogFormat, "log-format", "auto", "Log format: auto, text, json")
}

func readLogOptions(v *viper.Viper, o *LogOptions) {
	o.Log = v.GetString("log")
	o.LogLevel = v.GetString("log-level")
	o.LogFormat = v.GetString("log-format")
}

func (o LogOptions) validate() error {
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("log level must be one of debug, info, warn, error")
	}
	switch o.LogFormat {
	case "auto", "text", "json":
	default:
		return errors.New("log format must be one of auto, text, json")
	}
	return nil
}

// newViper layers environment variables and an optional config file
// underneath the parsed flags. Explicitly set flags always win.
func newViper(fs *flag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}
	return v, nil
}
