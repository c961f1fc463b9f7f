// Beacon - command line entry point
//
// beacon captures Go errors as structured events. This command manages the
// configuration, sends test events and inspects the local event store.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/armorclaw/beacon/pkg/config"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

type cliConfig struct {
	command      string
	args         []string
	configPath   string
	configOutput string
	logLevel     string
	verbose      bool
	version      bool
	help         bool
	// capture flags
	message string
	// events flags
	level   string
	excType string
	release string
	since   time.Duration
	limit   int
	jsonOut bool
	// metrics and serve flags
	listen string
	addr   string
}

func main() {
	cliCfg := parseFlags()

	if cliCfg.version {
		printVersion()
		return
	}

	if cliCfg.help {
		printHelp()
		return
	}

	if err := run(cliCfg, os.Stdout); err != nil {
		if errors.Is(err, errUnknownCommand) {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cliCfg.command)
			printHelp()
			os.Exit(2)
		}
		log.Fatalf("Error: %v", err)
	}
}

var errUnknownCommand = errors.New("unknown command")

// run dispatches a parsed command line
func run(cliCfg cliConfig, out io.Writer) error {
	switch cliCfg.command {
	case "init":
		return runInitCommand(cliCfg, out)
	case "validate":
		return runValidateCommand(cliCfg, out)
	case "capture":
		return runCaptureCommand(cliCfg, out)
	case "events":
		return runEventsCommand(cliCfg, out)
	case "show":
		return runShowCommand(cliCfg, out)
	case "cleanup":
		return runCleanupCommand(cliCfg, out)
	case "stats":
		return runStatsCommand(cliCfg, out)
	case "metrics":
		return runMetricsCommand(cliCfg, out)
	case "serve":
		return runServeCommand(cliCfg, out)
	case "version":
		printVersion()
		return nil
	case "help", "":
		printHelp()
		return nil
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, cliCfg.command)
}

func parseFlags() cliConfig {
	cfg := cliConfig{}

	flag.StringVar(&cfg.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&cfg.configOutput, "config-output", "", "Output path for 'init' command")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.verbose, "v", false, "Verbose logging (sets log level to debug)")
	flag.BoolVar(&cfg.version, "version", false, "Print version and exit")
	flag.BoolVar(&cfg.help, "help", false, "Show help message")

	flag.StringVar(&cfg.message, "message", "connection refused", "Root cause message for 'capture'")

	flag.StringVar(&cfg.level, "level", "", "Filter events by level")
	flag.StringVar(&cfg.excType, "type", "", "Filter events by exception type")
	flag.StringVar(&cfg.release, "release", "", "Filter events by release")
	flag.DurationVar(&cfg.since, "since", 0, "Only events newer than this duration, e.g. 24h")
	flag.IntVar(&cfg.limit, "limit", 20, "Maximum number of events to list")
	flag.BoolVar(&cfg.jsonOut, "json", false, "Print JSON instead of a table")

	flag.StringVar(&cfg.listen, "listen", "", "Listen address for 'metrics' (overrides config)")
	flag.StringVar(&cfg.addr, "addr", "", "Listen address for 'serve' (overrides config)")

	flag.Parse()

	args := flag.Args()
	if len(args) > 0 {
		cfg.command = args[0]
		cfg.args = args[1:]
	}

	if cfg.verbose {
		cfg.logLevel = "debug"
	}

	return cfg
}

// loadConfig loads configuration and applies command line overrides
func loadConfig(cliCfg cliConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cliCfg.logLevel != "" {
		cfg.Logging.Level = cliCfg.logLevel
	}
	return cfg, nil
}

func printVersion() {
	fmt.Printf("Beacon v%s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
}

func printHelp() {
	helpText := `USAGE:
    beacon [flags] [command] [args]

COMMANDS:
    init        Write an example configuration file
    validate    Validate configuration
    capture     Capture a chained test error through the configured transports
    events      List stored events
    show <id>   Show one stored event as JSON
    cleanup     Remove events older than the retention period
    stats       Show event store statistics
    metrics     Serve Prometheus metrics until interrupted
    serve       Receive events over HTTP and WebSocket into the local store
    version     Show version information
    help        Show this help message

FLAGS:
    -config <path>        Configuration file (default: search ~/.beacon, /etc/beacon, ./beacon.toml)
    -config-output <path> Output path for init
    -log-level <level>    debug, info, warn, error
    -v                    Verbose logging
    -message <text>       Root cause message for capture
    -level <level>        Filter events by level
    -type <name>          Filter events by exception type
    -release <release>    Filter events by release
    -since <duration>     Only events newer than duration (e.g. 24h)
    -limit <n>            Maximum events to list (default 20)
    -json                 JSON output for events, stats
    -listen <addr>        Metrics listen address
    -addr <addr>          Ingest server listen address

EXAMPLES:
    beacon init
    beacon -message "disk full" capture
    beacon -level error -since 24h events
    beacon show 0f8fad5bd9cb469fa16570867728950e
    beacon -addr :8790 serve
`
	fmt.Print(helpText)
}
